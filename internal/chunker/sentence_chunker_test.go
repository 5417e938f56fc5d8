package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"ragchat/internal/domain"
)

// longSentence builds a sentence of n three-letter words ending in a period.
func longSentence(prefix byte, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%c%02d", prefix, i%100)
	}
	return strings.Join(words, " ") + "."
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestSplit_EmptyInput(t *testing.T) {
	if got := Split("", 500, 50); len(got) != 0 {
		t.Fatalf("expected no chunks, got %d", len(got))
	}
	if got := Split(" \n\t ", 500, 50); len(got) != 0 {
		t.Fatalf("expected no chunks for whitespace, got %q", got)
	}
}

func TestSplit_SingleShortDocument(t *testing.T) {
	got := Split("One sentence. Two sentence! Three?", 500, 50)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %q", len(got), got)
	}
	if got[0] != "One sentence. Two sentence! Three?" {
		t.Errorf("unexpected chunk %q", got[0])
	}
}

func TestSplit_SentenceBoundaries(t *testing.T) {
	got := splitSentences("Hi. There!  How are you?\nFine.3.14 stays")
	want := []string{"Hi.", "There!", "How are you?", "Fine.3.14 stays"}
	if len(got) != len(want) {
		t.Fatalf("splitSentences = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit_LongParagraphScenario(t *testing.T) {
	text := longSentence('a', 100) + " " + longSentence('b', 100) + " " + longSentence('c', 100)
	if n := len(text); n < 1150 || n > 1250 {
		t.Fatalf("fixture length %d, want about 1200", n)
	}

	plain := Split(text, 500, 0)
	overlapped := Split(text, 500, 50)

	if len(overlapped) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(overlapped))
	}
	if len(plain) != len(overlapped) {
		t.Fatalf("overlap changed chunk count: %d vs %d", len(plain), len(overlapped))
	}
	for i, c := range plain {
		if utf8.RuneCountInString(c) > 500 {
			t.Errorf("chunk %d has %d chars before overlap", i, utf8.RuneCountInString(c))
		}
	}
	firstWords := strings.Fields(plain[0])
	wantPrefix := strings.Join(firstWords[len(firstWords)-50:], " ") + " "
	if !strings.HasPrefix(overlapped[1], wantPrefix) {
		t.Errorf("second chunk does not start with last 50 words of first:\n%q", overlapped[1][:80])
	}
	if !strings.HasPrefix(wantPrefix, "a50 ") {
		t.Errorf("unexpected overlap prefix start %q", wantPrefix[:10])
	}
}

func TestSplit_OverlapUsesOriginalBoundaries(t *testing.T) {
	text := longSentence('a', 30) + " " + longSentence('b', 30) + " " + longSentence('c', 30)
	plain := Split(text, 130, 0)
	overlapped := Split(text, 130, 5)
	if len(plain) < 3 {
		t.Fatalf("fixture should produce 3+ chunks, got %d", len(plain))
	}
	for i := 1; i < len(plain); i++ {
		prefix := OverlapPrefix(plain[i-1], 5)
		if !strings.HasPrefix(overlapped[i], prefix) {
			t.Fatalf("chunk %d prefix mismatch: %q", i, overlapped[i])
		}
		if rest := strings.TrimPrefix(overlapped[i], prefix); rest != plain[i] {
			t.Errorf("chunk %d carries more than one overlap: %q", i, rest)
		}
	}
}

func TestSplit_OversizeSentenceIsSliced(t *testing.T) {
	long := strings.Repeat("x", 1200)
	got := Split(long, 500, 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, want := range []int{500, 500, 200} {
		if len(got[i]) != want {
			t.Errorf("chunk %d len = %d, want %d", i, len(got[i]), want)
		}
	}
}

func TestSplit_OversizeTailSeedsNextBuffer(t *testing.T) {
	text := strings.Repeat("y", 25) + ". Short one."
	got := Split(text, 10, 0)
	// yyyyyyyyyy | yyyyyyyyyy | yyyyy. + "Short one." does not fit -> flush
	want := []string{"yyyyyyyyyy", "yyyyyyyyyy", "yyyyy.", "Short one."}
	if len(got) != len(want) {
		t.Fatalf("Split = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit_ReconstructsText(t *testing.T) {
	inputs := []string{
		"Alpha beta. Gamma delta! Epsilon zeta? Eta theta iota kappa. Lambda.",
		longSentence('q', 120) + " Tail sentence here. " + strings.Repeat("z", 333) + " end.",
		"Unicode sentences are counted by rune. Ünïcödé wörds stay intact! Ok.",
	}
	for i, text := range inputs {
		for _, size := range []int{20, 64, 500} {
			plain := Split(text, size, 0)
			if got, want := stripSpace(strings.Join(plain, "")), stripSpace(text); got != want {
				t.Errorf("input %d size %d: reconstruction mismatch", i, size)
			}
			for j, c := range plain[:max(0, len(plain)-1)] {
				if n := utf8.RuneCountInString(c); n > size {
					t.Errorf("input %d size %d: chunk %d has %d chars", i, size, j, n)
				}
			}
		}
	}
}

func TestSentenceChunker_ChunkMetadata(t *testing.T) {
	c := NewSentenceChunker(40, 2)
	doc := domain.Document{
		ID:     "/docs/intro.md",
		Text:   "First sentence is here. Second sentence is here. Third sentence is here.",
		Source: "intro.md",
		Metadata: domain.Metadata{
			Filename:     "intro.md",
			RelativePath: "intro.md",
			Size:         72,
		},
	}
	chunks := c.Chunk(doc)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ID != fmt.Sprintf("/docs/intro.md_chunk_%d", i) {
			t.Errorf("chunk %d id = %s", i, ch.ID)
		}
		if ch.Metadata.ChunkIndex != i || ch.Metadata.TotalChunks != 3 {
			t.Errorf("chunk %d metadata = %+v", i, ch.Metadata)
		}
		if ch.Metadata.Filename != "intro.md" || ch.Source != "intro.md" {
			t.Errorf("chunk %d lost document metadata: %+v", i, ch)
		}
	}
	if !strings.HasPrefix(chunks[1].Text, "is here. Second") {
		t.Errorf("chunk 1 missing overlap: %q", chunks[1].Text)
	}
}

func TestNewSentenceChunker_Defaults(t *testing.T) {
	c := NewSentenceChunker(0, -3)
	if c.ChunkSize() != DefaultChunkSize || c.Overlap() != 0 {
		t.Errorf("defaults = (%d, %d)", c.ChunkSize(), c.Overlap())
	}
}

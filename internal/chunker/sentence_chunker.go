package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"ragchat/internal/domain"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// sentenceBoundary matches a terminator plus the whitespace after it. The
// terminator stays with the preceding sentence; the whitespace is dropped.
var sentenceBoundary = regexp.MustCompile(`[.!?][\s\v\p{Zs}]+`)

// SentenceChunker packs sentences into chunks of at most chunkSize characters
// and prefixes every chunk after the first with the trailing overlap words of
// its predecessor.
type SentenceChunker struct {
	chunkSize int
	overlap   int
}

func NewSentenceChunker(chunkSize, overlap int) *SentenceChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &SentenceChunker{chunkSize: chunkSize, overlap: overlap}
}

func (c *SentenceChunker) ChunkSize() int { return c.chunkSize }
func (c *SentenceChunker) Overlap() int   { return c.overlap }

// Chunk splits a document and attaches ids and positional metadata.
func (c *SentenceChunker) Chunk(doc domain.Document) []domain.Chunk {
	texts := Split(doc.Text, c.chunkSize, c.overlap)
	if len(texts) == 0 {
		return nil
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		meta := doc.Metadata
		meta.ChunkIndex = i
		meta.TotalChunks = len(texts)
		chunks[i] = domain.Chunk{
			ID:       ChunkID(doc.ID, i),
			Text:     text,
			Source:   doc.Source,
			Metadata: meta,
		}
	}
	return chunks
}

// ChunkID is the id a chunk is submitted with before store normalization.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// Split chunks text. Lengths are counted in characters (runes).
func Split(text string, maxSize, overlap int) []string {
	if text == "" || maxSize <= 0 {
		return nil
	}
	var chunks []string
	current := ""
	for _, sentence := range splitSentences(text) {
		if runeLen(current)+1+runeLen(sentence) <= maxSize {
			if current != "" {
				current += " " + sentence
			} else {
				current = sentence
			}
			continue
		}
		chunks = flush(chunks, current)
		if runeLen(sentence) > maxSize {
			parts := sliceRunes(sentence, maxSize)
			chunks = append(chunks, parts[:len(parts)-1]...)
			current = parts[len(parts)-1]
		} else {
			current = sentence
		}
	}
	chunks = flush(chunks, current)
	if overlap > 0 && len(chunks) > 1 {
		return withOverlap(chunks, overlap)
	}
	return chunks
}

// flush drops buffers that hold only whitespace.
func flush(chunks []string, buf string) []string {
	if t := strings.TrimSpace(buf); t != "" {
		return append(chunks, t)
	}
	return chunks
}

// withOverlap reads prefixes from the original chunks only, so injected words
// never propagate past one boundary.
func withOverlap(chunks []string, overlap int) []string {
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		out[i] = OverlapPrefix(chunks[i-1], overlap) + chunks[i]
	}
	return out
}

// OverlapPrefix returns the last n words of prev followed by a single space.
func OverlapPrefix(prev string, n int) string {
	words := strings.Fields(prev)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ") + " "
}

func splitSentences(text string) []string {
	var sentences []string
	prev := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		// the terminator is a single ASCII byte
		sentences = append(sentences, text[prev:loc[0]+1])
		prev = loc[1]
	}
	return append(sentences, text[prev:])
}

func sliceRunes(s string, width int) []string {
	runes := []rune(s)
	parts := make([]string, 0, len(runes)/width+1)
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

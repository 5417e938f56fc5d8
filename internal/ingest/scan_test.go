package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"ragchat/internal/chunker"
)

func TestScan(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"z.md":            "Zeta.",
		"module1/ch1.md":  "Robots move. They sense.",
		"module1/img.png": "binary",
		"README.MD":       "upper-case extension is not markdown here",
	}
	for rel, body := range files {
		p := filepath.Join(root, rel)
		_ = os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	docs, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan() = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	d := docs[0]
	if d.Source != "module1/ch1.md" || d.Metadata.RelativePath != "module1/ch1.md" || d.Metadata.Filename != "ch1.md" {
		t.Errorf("unexpected document %+v", d)
	}
	if !filepath.IsAbs(d.ID) {
		t.Errorf("document id %q is not absolute", d.ID)
	}
	if d.Metadata.Size != len("Robots move. They sense.") {
		t.Errorf("size = %d", d.Metadata.Size)
	}

	chunks := Plan(docs, chunker.NewSentenceChunker(500, 0))
	if len(chunks) != 2 || chunks[0].Metadata.TotalChunks != 1 || chunks[1].Source != "z.md" {
		t.Errorf("unexpected plan %+v", chunks)
	}
}

func TestScan_NotADirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.md")
	_ = os.WriteFile(f, []byte("x"), 0o644)
	if _, err := Scan(f); err == nil {
		t.Error("expected error for file root")
	}
	if _, err := Scan(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

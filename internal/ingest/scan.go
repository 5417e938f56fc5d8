package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
)

// Scan walks root recursively and loads every .md file in lexical path order.
// Document ids are absolute paths; sources are slash-separated paths relative
// to root.
func Scan(root string) ([]domain.Document, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("documents path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents path %s is not a directory", root)
	}
	var docs []domain.Document
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		text := string(data)
		docs = append(docs, domain.Document{
			ID:     path,
			Text:   text,
			Source: rel,
			Metadata: domain.Metadata{
				Filename:     d.Name(),
				RelativePath: rel,
				Size:         utf8.RuneCountInString(text),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Plan chunks every document and flattens the result: all chunks of document
// i precede those of document i+1, each document's chunks in index order.
// The position of a chunk in this list is its resume position.
func Plan(docs []domain.Document, c *chunker.SentenceChunker) []domain.Chunk {
	var out []domain.Chunk
	for _, d := range docs {
		out = append(out, c.Chunk(d)...)
	}
	return out
}

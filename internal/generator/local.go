package generator

import (
	"context"

	"ragchat/internal/domain"
)

// Local needs no model: it echoes the question and the context it would have
// been answered from. Useful offline and for wiring checks.
type Local struct{}

func (Local) Generate(ctx context.Context, query, contextText string, _ domain.Mode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if contextText == "" {
		return Fallback, nil
	}
	return "Context: " + contextText + "\n\nQuestion: " + query + "\n\n[no language model configured]", nil
}

// Package retrieval turns a query into a context block and its sources.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ragchat/internal/domain"
	"ragchat/internal/telemetry"
)

// DefaultTopK is used when neither the caller nor the assembler sets one.
const DefaultTopK = 5

// Context is the assembled input for the generator.
type Context struct {
	Text    string
	Sources []string
	Mode    domain.Mode
	Results []domain.SearchResult
}

// Assembler is safe for concurrent use; it only reads from the store.
type Assembler struct {
	embedder domain.Embedder
	store    domain.VectorStore
	topK     int
	metrics  *telemetry.Metrics
	log      logr.Logger
}

func NewAssembler(embedder domain.Embedder, store domain.VectorStore, topK int, metrics *telemetry.Metrics, log logr.Logger) *Assembler {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Assembler{embedder: embedder, store: store, topK: topK, metrics: metrics, log: log}
}

// Retrieve embeds query, searches the store and assembles the results in the
// store's rank order. topK <= 0 uses the assembler default. Failures are not
// retried.
func (a *Assembler) Retrieve(ctx context.Context, query string, topK int) (Context, error) {
	if topK <= 0 {
		topK = a.topK
	}
	started := time.Now()
	ctx, span := telemetry.Tracer.Start(ctx, "retrieval.retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("ragchat.top_k", topK))

	res, err := a.search(ctx, query, topK)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.Retrieval(string(domain.ModeFullBook), "error", elapsed)
		return Context{}, err
	}
	a.metrics.Retrieval(string(domain.ModeFullBook), "ok", elapsed)
	span.SetAttributes(attribute.Int("ragchat.results", len(res)))

	text, sources := Assemble(res)
	a.log.V(1).Info("retrieved context", "results", len(res), "sources", len(sources), "seconds", elapsed)
	return Context{Text: text, Sources: sources, Mode: domain.ModeFullBook, Results: res}, nil
}

func (a *Assembler) search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	vec, err := a.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	res, err := a.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return res, nil
}

// Selected uses text verbatim as the context. It never touches the store.
func (a *Assembler) Selected(text string) Context {
	a.metrics.Retrieval(string(domain.ModeSelectedText), "ok", 0)
	return Context{Text: text, Sources: []string{}, Mode: domain.ModeSelectedText}
}

// Assemble joins result texts with a blank line and collects the first-seen
// source of each result, both in result order.
func Assemble(results []domain.SearchResult) (string, []string) {
	texts := make([]string, len(results))
	sources := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for i, r := range results {
		texts[i] = r.Text
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		sources = append(sources, r.Source)
	}
	return strings.Join(texts, "\n\n"), sources
}

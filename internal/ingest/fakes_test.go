package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore/memory"
)

// fakeEmbedder returns a fixed vector per text and fails according to failAt.
type fakeEmbedder struct {
	mu     sync.Mutex
	dim    int
	calls  [][]string
	failAt map[int]error // 1-based call number -> error
	always error
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, failAt: map[int]error{}}
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.always != nil {
		return nil, f.always
	}
	if err, ok := f.failAt[len(f.calls)]; ok {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (f *fakeEmbedder) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// flakyStore wraps the memory store and fails selected upsert calls.
type flakyStore struct {
	*memory.Storage
	upserts    int
	failUpsert map[int]error
	countErr   error
}

func (s *flakyStore) Upsert(ctx context.Context, points []domain.Point) error {
	s.upserts++
	if err, ok := s.failUpsert[s.upserts]; ok {
		return err
	}
	return s.Storage.Upsert(ctx, points)
}

func (s *flakyStore) PointsCount(ctx context.Context) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.Storage.PointsCount(ctx)
}

func newStore(preloaded, dim int) *flakyStore {
	s := memory.NewStorage("book")
	ctx := context.Background()
	_ = s.CreateCollection(ctx, dim)
	for i := 0; i < preloaded; i++ {
		v := make([]float32, dim)
		v[0] = 1
		_ = s.Upsert(ctx, []domain.Point{{ID: fmt.Sprint(i), Vector: v}})
	}
	return &flakyStore{Storage: s, failUpsert: map[int]error{}}
}

func makeChunks(n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{
			ID:     fmt.Sprintf("/docs/book.md_chunk_%d", i),
			Text:   fmt.Sprintf("chunk %d", i+1),
			Source: "book.md",
			Metadata: domain.Metadata{
				Filename: "book.md", RelativePath: "book.md", ChunkIndex: i, TotalChunks: n,
			},
		}
	}
	return out
}

func corpusOf(n int) Corpus {
	return Corpus{Documents: []domain.Document{{ID: "/docs/book.md"}}, Chunks: makeChunks(n)}
}

// sleepRecorder records waits without blocking.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

type transientErr struct{}

func (transientErr) Error() string { return "503 service unavailable" }

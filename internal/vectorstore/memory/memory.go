package memory

import (
	"context"
	"fmt"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore/pointid"
	"ragchat/internal/vectorstore/similarity"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Points with an existing id are replaced in place.
type Storage struct {
	mu         sync.RWMutex
	collection string
	dimension  int // 0 while the collection does not exist
	ids        []string
	index      map[string]int
	points     []domain.Point
}

func NewStorage(collection string) *Storage {
	return &Storage{collection: collection}
}

func (s *Storage) CollectionName() string { return s.collection }

// CreateCollection is a no-op when the collection already exists, whatever its size.
func (s *Storage) CreateCollection(_ context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("%w: invalid vector size %d", domain.ErrConfiguration, vectorSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 {
		return nil
	}
	s.dimension = vectorSize
	s.index = make(map[string]int)
	return nil
}

func (s *Storage) Upsert(ctx context.Context, points []domain.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return fmt.Errorf("%s: %w", s.collection, domain.ErrCollectionNotFound)
	}
	// validate the whole batch before touching state
	for _, p := range points {
		if err := domain.CheckDimension(len(p.Vector), s.dimension); err != nil {
			return err
		}
	}
	for _, p := range points {
		p.ID = pointid.Normalize(p.ID)
		if i, ok := s.index[p.ID]; ok {
			s.points[i] = p
			continue
		}
		s.index[p.ID] = len(s.points)
		s.ids = append(s.ids, p.ID)
		s.points = append(s.points, p)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return nil, fmt.Errorf("%s: %w", s.collection, domain.ErrCollectionNotFound)
	}
	if err := domain.CheckDimension(len(vector), s.dimension); err != nil {
		return nil, err
	}
	scores := make([]float64, len(s.points))
	for i := range s.points {
		scores[i] = similarity.Cosine(s.points[i].Vector, vector)
	}
	idxs := similarity.TopK(scores, topK)
	results := make([]domain.SearchResult, 0, len(idxs))
	for _, j := range idxs {
		p := s.points[j].Payload
		results = append(results, domain.SearchResult{
			Text:     p.Text,
			Source:   p.Source,
			Metadata: p.Metadata,
			Score:    scores[j],
			ChunkID:  p.ChunkID,
		})
	}
	return results, nil
}

// PointsCount returns 0 for a missing collection.
func (s *Storage) PointsCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points), nil
}

// IDs returns the stored point ids in insertion order.
func (s *Storage) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...)
}

func (s *Storage) DeleteCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.ids = nil
	s.index = nil
	s.points = nil
	return nil
}

func (s *Storage) Close() error { return nil }

// Package local is the on-disk fallback vector store. Each collection is a
// top-level bbolt bucket holding a meta record and a nested points bucket;
// search is exact cosine over every stored point.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore/pointid"
	"ragchat/internal/vectorstore/similarity"
)

// DBFile is the database file created inside the configured directory.
const DBFile = "collections.db"

var (
	keyMeta      = []byte("meta")
	bucketPoints = []byte("points")
)

type meta struct {
	Dimension int    `json:"dimension"`
	Distance  string `json:"distance"`
}

type record struct {
	Seq     uint64         `json:"seq"`
	Vector  []float32      `json:"vector"`
	Payload domain.Payload `json:"payload"`
}

// Storage is a single-collection view over a bbolt database.
type Storage struct {
	db         *bbolt.DB
	collection string
}

// Open creates dir if needed and opens the database inside it.
func Open(dir, collection string) (*Storage, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection name required", domain.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local store dir: %w", err)
	}
	db, err := bbolt.Open(filepath.Join(dir, DBFile), 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &Storage{db: db, collection: collection}, nil
}

func (s *Storage) CollectionName() string { return s.collection }

// CreateCollection leaves an existing collection untouched.
func (s *Storage) CreateCollection(_ context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("%w: invalid vector size %d", domain.ErrConfiguration, vectorSize)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(s.collection)) != nil {
			return nil
		}
		b, err := tx.CreateBucket([]byte(s.collection))
		if err != nil {
			return err
		}
		if _, err := b.CreateBucket(bucketPoints); err != nil {
			return err
		}
		data, err := json.Marshal(meta{Dimension: vectorSize, Distance: "Cosine"})
		if err != nil {
			return err
		}
		return b.Put(keyMeta, data)
	})
}

// Upsert writes the batch in a single transaction.
func (s *Storage) Upsert(ctx context.Context, points []domain.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, m, err := s.open(tx)
		if err != nil {
			return err
		}
		pts := b.Bucket(bucketPoints)
		for _, p := range points {
			if err := domain.CheckDimension(len(p.Vector), m.Dimension); err != nil {
				return err
			}
			id := []byte(pointid.Normalize(p.ID))
			rec := record{Vector: p.Vector, Payload: p.Payload}
			if prev := pts.Get(id); prev != nil {
				var old record
				if err := json.Unmarshal(prev, &old); err != nil {
					return err
				}
				rec.Seq = old.Seq
			} else if rec.Seq, err = pts.NextSequence(); err != nil {
				return err
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := pts.Put(id, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var recs []record
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, m, err := s.open(tx)
		if err != nil {
			return err
		}
		if err := domain.CheckDimension(len(vector), m.Dimension); err != nil {
			return err
		}
		return b.Bucket(bucketPoints).ForEach(func(_, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			recs = append(recs, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// keys iterate in id order; rank ties by insertion instead
	byInsertion(recs)
	scores := make([]float64, len(recs))
	for i, r := range recs {
		scores[i] = similarity.Cosine(r.Vector, vector)
	}
	idxs := similarity.TopK(scores, topK)
	out := make([]domain.SearchResult, 0, len(idxs))
	for _, i := range idxs {
		p := recs[i].Payload
		out = append(out, domain.SearchResult{
			Text:     p.Text,
			Source:   p.Source,
			Metadata: p.Metadata,
			Score:    scores[i],
			ChunkID:  p.ChunkID,
		})
	}
	return out, nil
}

// PointsCount returns 0 for a missing collection.
func (s *Storage) PointsCount(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.collection))
		if b == nil {
			return nil
		}
		n = b.Bucket(bucketPoints).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Storage) DeleteCollection(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(s.collection))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) open(tx *bbolt.Tx) (*bbolt.Bucket, meta, error) {
	var m meta
	b := tx.Bucket([]byte(s.collection))
	if b == nil {
		return nil, m, fmt.Errorf("%s: %w", s.collection, domain.ErrCollectionNotFound)
	}
	if err := json.Unmarshal(b.Get(keyMeta), &m); err != nil {
		return nil, m, fmt.Errorf("read collection meta: %w", err)
	}
	return b, m, nil
}

func byInsertion(recs []record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
}

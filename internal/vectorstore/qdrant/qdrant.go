package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore/pointid"
)

// Storage is a minimal REST client to Qdrant bound to one collection.
// It assumes cosine distance.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// errNotFound is returned by the request helpers on a 404.
var errNotFound = errors.New("not found")

// NewStorage builds the client and probes the server once. A failed probe is
// returned as an error so callers can fall back to another store.
func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: qdrant url is required", domain.ErrConfiguration)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection is required", domain.ErrConfiguration)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	s := &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
	if err := s.getJSON(ctx, s.url+"/collections", nil); err != nil {
		return nil, fmt.Errorf("qdrant not reachable: %w", err)
	}
	return s, nil
}

func (s *Storage) CollectionName() string { return s.collection }

// CreateCollection creates the collection only when the existence check
// reports it missing. An existing collection of another vector size is a
// configuration error; its schema is never altered.
func (s *Storage) CreateCollection(ctx context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("%w: invalid vector size %d", domain.ErrConfiguration, vectorSize)
	}
	var info collectionInfo
	err := s.getJSON(ctx, s.collectionURL(), &info)
	if err == nil {
		existing := info.Result.Config.Params.Vectors.Size
		if existing == 0 {
			return fmt.Errorf("%w: collection %s has no single unnamed vector", domain.ErrConfiguration, s.collection)
		}
		return domain.CheckDimension(vectorSize, existing)
	}
	if !errors.Is(err, errNotFound) {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	return s.putJSON(ctx, s.collectionURL(), body)
}

// collectionInfo is the part of GET /collections/{name} the client reads.
// Named-vector collections decode with Size 0.
type collectionInfo struct {
	Result struct {
		PointsCount int `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type wirePoint struct {
	ID      any            `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload domain.Payload `json:"payload"`
}

// Upsert sends the whole batch in one request and waits for it to be applied.
func (s *Storage) Upsert(ctx context.Context, points []domain.Point) error {
	wire := make([]wirePoint, len(points))
	for i, p := range points {
		wire[i] = wirePoint{
			ID:      pointid.Value(pointid.Normalize(p.ID)),
			Vector:  p.Vector,
			Payload: p.Payload,
		}
	}
	err := s.putJSON(ctx, s.collectionURL()+"/points?wait=true", map[string]any{"points": wire})
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("%s: %w", s.collection, domain.ErrCollectionNotFound)
	}
	return err
}

// Search returns results in the order Qdrant ranked them.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	req := map[string]any{
		"query":        vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result struct {
			Points []struct {
				Score   float64        `json:"score"`
				Payload domain.Payload `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, s.collectionURL()+"/points/query", req, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%s: %w", s.collection, domain.ErrCollectionNotFound)
		}
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result.Points))
	for _, r := range resp.Result.Points {
		results = append(results, domain.SearchResult{
			Text:     r.Payload.Text,
			Source:   r.Payload.Source,
			Metadata: r.Payload.Metadata,
			Score:    r.Score,
			ChunkID:  r.Payload.ChunkID,
		})
	}
	return results, nil
}

// PointsCount returns 0 for a missing collection.
func (s *Storage) PointsCount(ctx context.Context) (int, error) {
	var resp collectionInfo
	err := s.getJSON(ctx, s.collectionURL(), &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.PointsCount, nil
}

func (s *Storage) DeleteCollection(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func (s *Storage) getJSON(ctx context.Context, url string, out any) error {
	return s.do(ctx, http.MethodGet, url, nil, out)
}

func (s *Storage) putJSON(ctx context.Context, url string, body any) error {
	return s.do(ctx, http.MethodPut, url, body, nil)
}

func (s *Storage) postJSON(ctx context.Context, url string, body, out any) error {
	return s.do(ctx, http.MethodPost, url, body, out)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: qdrant %s %s: %s", domain.ErrMissingCredential, method, url, resp.Status)
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("qdrant %s %s failed: %s %s", method, url, resp.Status, strings.TrimSpace(string(b)))
		// the request itself is wrong (schema, vector size); resending cannot help
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
		}
		return err
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

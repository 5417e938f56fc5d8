package domain

import "context"

// Metadata describes where a chunk came from. Document-level fields are set by
// the directory scan; ChunkIndex and TotalChunks are filled in once every chunk
// of the owning document is known.
type Metadata struct {
	Filename     string `json:"filename"`
	RelativePath string `json:"relative_path"`
	Size         int    `json:"size"`
	ChunkIndex   int    `json:"chunk_index"`
	TotalChunks  int    `json:"total_chunks"`
}

// Document represents a single markdown file loaded into the system.
type Document struct {
	ID       string
	Text     string
	Source   string
	Metadata Metadata
}

// Chunk is a bounded span of a document used for embedding and storage.
type Chunk struct {
	ID       string
	Text     string
	Source   string
	Metadata Metadata
}

// Payload is the data stored next to a vector.
type Payload struct {
	Text     string   `json:"text"`
	Source   string   `json:"source"`
	Metadata Metadata `json:"metadata"`
	ChunkID  string   `json:"chunk_id"`
}

// Point is one vector plus payload as submitted to a VectorStore. The store may
// rewrite ID, see pointid.Normalize.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Text     string   `json:"text"`
	Source   string   `json:"source"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
	ChunkID  string   `json:"chunk_id"`
}

// Embedder maps text to fixed-length vectors. EmbedDocuments preserves input
// order and length.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists vectors in a single named cosine collection.
type VectorStore interface {
	CollectionName() string
	CreateCollection(ctx context.Context, vectorSize int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	PointsCount(ctx context.Context) (int, error)
	DeleteCollection(ctx context.Context) error
	Close() error
}

// Mode selects how the generator frames the supplied context.
type Mode string

const (
	ModeFullBook     Mode = "full_book"
	ModeSelectedText Mode = "selected_text"
)

// Generator produces an answer from a query and a context block.
type Generator interface {
	Generate(ctx context.Context, query, context string, mode Mode) (string, error)
}

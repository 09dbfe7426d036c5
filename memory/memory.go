package memory

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned by writes while the store or embedder is down.
	ErrUnavailable = errors.New("memory: backend unavailable")

	// ErrDimensionMismatch is returned when a vector does not match the store dimension.
	ErrDimensionMismatch = errors.New("memory: vector dimension mismatch")

	// ErrInvalidVector is returned for vectors containing NaN/Inf or with zero norm.
	ErrInvalidVector = errors.New("memory: vector is non-finite or zero")

	// ErrEmptyText is returned when a record has no text.
	ErrEmptyText = errors.New("memory: empty text")

	// ErrInvalidImportance is returned for importance outside [0,1].
	ErrInvalidImportance = errors.New("memory: importance out of range")
)

// Store is the vector storage backend interface.
// Implementations: chromem.Store (embedded), pgvector.Store (PostgreSQL).
//
// A Store constructed against a backend that could not be opened reports
// Available() == false; reads then return empty results and Put returns
// ErrUnavailable.
type Store interface {
	// Put appends a record. The vector must have Dimensions() elements.
	// Ids are not checked for uniqueness.
	Put(ctx context.Context, rec *Record) error

	// Search returns up to limit records nearest to vector by cosine
	// similarity, best first. An empty store yields an empty result.
	Search(ctx context.Context, vector []float32, limit int) ([]Record, error)

	// Delete removes the given ids. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// UpdateAccessCount sets the access count of a single record.
	UpdateAccessCount(ctx context.Context, id string, count int64) error

	// Scan returns the most recent limit records, newest first.
	// An empty kind matches every kind.
	Scan(ctx context.Context, limit int, kind Kind) ([]Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	Dimensions() int
	Available() bool

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock.Embedder (testing), onnx.Embedder (local model),
// openai.Embedder (API), cache.Embedder (memoizing wrapper).
//
// Embed must be deterministic for a given text.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Summary is what a Summarizer makes of a cluster of memories.
type Summary struct {
	Text  string            `json:"summary"`
	Facts map[string]string `json:"facts,omitempty"`
}

// Summarizer condenses related memory texts into one summary and extracts
// any durable key/value facts it can find.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string) (Summary, error)
}

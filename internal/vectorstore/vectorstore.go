// Package vectorstore persists document embeddings and answers
// nearest-neighbor queries over them.
//
// Two backends implement Index: chromem-go (embedded, on-disk, the default)
// and Qdrant (networked, gRPC). Both use cosine similarity, overwrite entries
// by document id, and order equal-score results by first insertion.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("productqa/vectorstore")

var (
	// ErrIndexFailure indicates the index is unreachable or corrupt.
	ErrIndexFailure = errors.New("vector index failure")

	// ErrInvalidConfig indicates invalid index configuration.
	ErrInvalidConfig = errors.New("invalid vector index configuration")

	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidK indicates a non-positive result count.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidEntry indicates an entry with no id or no vector.
	ErrInvalidEntry = errors.New("invalid index entry")
)

// maxK bounds a single query.
const maxK = 10000

// Result is one ranked match.
type Result struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`

	seq int64
}

// Index stores (id, vector, text) entries.
//
// Upsert replaces any entry with the same id. Query returns up to k entries
// by descending similarity and an empty slice, not an error, when the index
// is empty. Queries may run concurrently with each other; writes are
// expected from a single ingestion run at a time.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, text string) error
	Query(ctx context.Context, vector []float32, k int) ([]Result, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Provider is chromem (default) or qdrant.
	Provider   string
	Collection string
	// Dimension is the expected vector length. Zero accepts the first
	// length written and enforces it afterwards.
	Dimension int
	Timeout   time.Duration

	Chromem ChromemConfig
	Qdrant  QdrantConfig
}

// NewIndex opens the configured backend.
func NewIndex(ctx context.Context, cfg Config, logger *zap.Logger) (Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "chromem", "":
		c := cfg.Chromem
		if c.Collection == "" {
			c.Collection = cfg.Collection
		}
		if c.Dimension == 0 {
			c.Dimension = cfg.Dimension
		}
		return NewChromemIndex(c, logger)
	case "qdrant":
		q := cfg.Qdrant
		if q.Collection == "" {
			q.Collection = cfg.Collection
		}
		if q.Dimension == 0 {
			q.Dimension = cfg.Dimension
		}
		if q.Timeout == 0 {
			q.Timeout = cfg.Timeout
		}
		return NewQdrantIndex(ctx, q, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func checkVector(vector []float32, dimension int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEntry)
	}
	if dimension > 0 && len(vector) != dimension {
		return fmt.Errorf("%w: got %d, index holds %d", ErrDimensionMismatch, len(vector), dimension)
	}
	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: vector contains NaN or Inf", ErrInvalidEntry)
		}
	}
	return nil
}

func checkK(k int) (int, error) {
	if k <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if k > maxK {
		k = maxK
	}
	return k, nil
}

// rank orders results by score, breaking ties by insertion sequence, and
// keeps the first k.
func rank(results []Result, k int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].seq < results[j].seq
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

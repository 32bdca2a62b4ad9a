// Package retrieval finds the catalog context for a question.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/embeddings"
	"github.com/fyrsmithlabs/productqa/internal/vectorstore"
)

var tracer = otel.Tracer("productqa/retrieval")

// NoRelevantInformation is the context used when the index has no match.
const NoRelevantInformation = "No relevant information found."

var (
	// ErrInvalidRequest marks caller errors such as an empty question.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyQuestion is returned for blank questions, before any
	// embedding call is made.
	ErrEmptyQuestion = fmt.Errorf("%w: no question provided", ErrInvalidRequest)

	// ErrRetrievalUnavailable wraps embedding and index failures at query time.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrInvalidConfig indicates an invalid fetch/use policy.
	ErrInvalidConfig = errors.New("invalid retrieval configuration")
)

// Config is the fetch-k/use-n policy. TopKFetch results are requested from
// the index and the best TopKUsed of them become the context.
type Config struct {
	TopKFetch int
	TopKUsed  int
}

// DefaultConfig fetches three matches and uses the best one.
func DefaultConfig() Config {
	return Config{TopKFetch: 3, TopKUsed: 1}
}

// Validate validates the policy.
func (c Config) Validate() error {
	if c.TopKFetch < 1 {
		return fmt.Errorf("%w: top_k_fetch must be >= 1, got %d", ErrInvalidConfig, c.TopKFetch)
	}
	if c.TopKUsed < 1 || c.TopKUsed > c.TopKFetch {
		return fmt.Errorf("%w: top_k_used must be between 1 and %d, got %d", ErrInvalidConfig, c.TopKFetch, c.TopKUsed)
	}
	return nil
}

// Retrieval is the outcome of one lookup.
type Retrieval struct {
	// Context is the text handed to the composer. It is never empty.
	Context string
	// Results are every fetched match, best first.
	Results []vectorstore.Result
	// Found is false when Context is the NoRelevantInformation sentinel.
	Found bool
}

// Retriever embeds questions and queries the index.
type Retriever struct {
	embedder embeddings.Embedder
	index    vectorstore.Index
	config   Config
	logger   *zap.Logger
}

// New creates a Retriever.
func New(embedder embeddings.Embedder, index vectorstore.Index, cfg Config, logger *zap.Logger) (*Retriever, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, index: index, config: cfg, logger: logger}, nil
}

// Retrieve returns the context for question.
func (r *Retriever) Retrieve(ctx context.Context, question string) (*Retrieval, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	ctx, span := tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("top_k_fetch", r.config.TopKFetch),
		attribute.Int("top_k_used", r.config.TopKUsed),
	)

	fail := func(stage string, err error) (*Retrieval, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		r.logger.Warn("retrieval failed", zap.String("stage", stage), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrRetrievalUnavailable, stage, err)
	}

	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return fail("embedding question", err)
	}

	results, err := r.index.Query(ctx, vector, r.config.TopKFetch)
	if err != nil {
		return fail("querying index", err)
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	if len(results) == 0 {
		return &Retrieval{Context: NoRelevantInformation, Results: results}, nil
	}

	used := results
	if len(used) > r.config.TopKUsed {
		used = used[:r.config.TopKUsed]
	}
	texts := make([]string, 0, len(used))
	for _, res := range used {
		texts = append(texts, res.Text)
	}
	return &Retrieval{
		Context: strings.Join(texts, "\n\n"),
		Results: results,
		Found:   true,
	}, nil
}

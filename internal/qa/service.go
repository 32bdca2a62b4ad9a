// Package qa answers one product question end to end: validate, retrieve
// context, compose the answer.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/productqa/internal/retrieval"
)

var tracer = otel.Tracer("productqa/qa")

var (
	// ErrInvalidRequest marks caller errors. It is the same value as
	// retrieval.ErrInvalidRequest so either can be matched with errors.Is.
	ErrInvalidRequest = retrieval.ErrInvalidRequest

	// ErrQuestionTooLong is returned for questions over MaxQuestionLength.
	// It wraps ErrInvalidRequest.
	ErrQuestionTooLong = fmt.Errorf("%w: question too long", ErrInvalidRequest)

	// ErrBusy is returned when no request slot frees up before the context ends.
	ErrBusy = errors.New("too many concurrent questions")
)

// MaxQuestionLength bounds a question in bytes.
const MaxQuestionLength = 2000

// Retriever finds context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string) (*retrieval.Retrieval, error)
}

// Composer produces the answer text.
type Composer interface {
	Compose(ctx context.Context, contextText, question string) (string, error)
}

// Answer is the result of Ask.
type Answer struct {
	Text string `json:"answer"`
	// Context is the text the answer was conditioned on.
	Context string `json:"context,omitempty"`
	// Found is false when no catalog entry matched.
	Found bool `json:"found"`
	// Sources are the ids of the fetched matches, best first.
	Sources []string `json:"sources,omitempty"`
}

// Service runs the question pipeline with a bound on concurrent requests.
type Service struct {
	retriever Retriever
	composer  Composer
	slots     *semaphore.Weighted
	logger    *zap.Logger
}

// NewService creates a Service allowing maxConcurrent questions in flight.
func NewService(r Retriever, c Composer, maxConcurrent int, logger *zap.Logger) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		retriever: r,
		composer:  c,
		slots:     semaphore.NewWeighted(int64(maxConcurrent)),
		logger:    logger,
	}
}

// Ask answers question. Errors wrap ErrInvalidRequest,
// retrieval.ErrRetrievalUnavailable or answer.ErrGenerationFailure.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, retrieval.ErrEmptyQuestion
	}
	if len(question) > MaxQuestionLength {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrQuestionTooLong, len(question), MaxQuestionLength)
	}

	ctx, span := tracer.Start(ctx, "qa.Ask")
	defer span.End()
	span.SetAttributes(attribute.Int("question_chars", len(question)))

	if err := s.slots.Acquire(ctx, 1); err != nil {
		span.SetStatus(codes.Error, "busy")
		return nil, fmt.Errorf("%w: %w", ErrBusy, err)
	}
	defer s.slots.Release(1)

	start := time.Now()
	r, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, err
	}

	text, err := s.composer.Compose(ctx, r.Context, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "composition failed")
		return nil, err
	}

	sources := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		sources = append(sources, res.ID)
	}
	span.SetAttributes(attribute.Bool("found", r.Found))
	s.logger.Debug("question answered",
		zap.Bool("found", r.Found),
		zap.Strings("sources", sources),
		zap.Duration("duration", time.Since(start)))

	return &Answer{Text: text, Context: r.Context, Found: r.Found, Sources: sources}, nil
}

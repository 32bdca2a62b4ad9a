// Package answer turns retrieved context and a question into a short answer.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/generation"
)

var tracer = otel.Tracer("productqa/answer")

const (
	// Fallback is the sentence the model is told to use when the context
	// does not answer the question.
	Fallback = "I'm sorry, I don't have enough details."

	// WordLimit is the length the model is asked to stay within.
	WordLimit = 30
)

// ErrGenerationFailure indicates the generative model failed or returned
// nothing usable. It is distinct from retrieval failures.
var ErrGenerationFailure = errors.New("answer generation failed")

const promptTemplate = `You are an AI assistant answering product-related questions.
Use the following retrieved product information to generate a concise response.

Below is the relevant product information retrieved from the database: "%s"

The user asked: "%s"

If the context contains the answer, reply concisely using the provided details.
If the context does not have the answer, say: "%s"

Always keep the response within %d words.
`

// BuildPrompt renders the fixed answer prompt.
func BuildPrompt(contextText, question string) string {
	return fmt.Sprintf(promptTemplate, contextText, question, Fallback, WordLimit)
}

// Config tunes the composer.
type Config struct {
	// MaxWords hard-truncates answers when positive. The prompt's word limit
	// is otherwise only a request to the model.
	MaxWords int
}

// Composer builds the prompt and calls the generator.
type Composer struct {
	generator generation.Generator
	config    Config
	logger    *zap.Logger
}

// NewComposer creates a Composer.
func NewComposer(g generation.Generator, cfg Config, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{generator: g, config: cfg, logger: logger}
}

// Compose returns the model's trimmed answer. Off-policy output (too long,
// ignoring the fallback) is accepted as is unless MaxWords is set.
func (c *Composer) Compose(ctx context.Context, contextText, question string) (string, error) {
	ctx, span := tracer.Start(ctx, "answer.Compose")
	defer span.End()

	text, err := c.generator.Generate(ctx, BuildPrompt(contextText, question))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		c.logger.Warn("answer generation failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrGenerationFailure, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		err := fmt.Errorf("%w: %w", ErrGenerationFailure, generation.ErrEmptyResponse)
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty answer")
		return "", err
	}

	words := len(strings.Fields(text))
	span.SetAttributes(attribute.Int("answer_words", words), attribute.Bool("fallback", text == Fallback))
	if c.config.MaxWords > 0 && words > c.config.MaxWords {
		c.logger.Debug("truncating answer", zap.Int("words", words), zap.Int("max_words", c.config.MaxWords))
		text = Truncate(text, c.config.MaxWords)
	}
	return text, nil
}

// Truncate keeps the first n words of text, joined by single spaces.
func Truncate(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/productqa/internal/gemini"
)

// DefaultGeminiModel is the generative model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

type generateClient interface {
	Generate(ctx context.Context, model, prompt string, opts gemini.GenerateOptions) (string, error)
}

// GeminiGenerator generates text with a Gemini model.
type GeminiGenerator struct {
	client generateClient
	model  string
	opts   gemini.GenerateOptions
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator wraps client. An empty model selects gemini-2.0-flash.
func NewGeminiGenerator(client generateClient, model string, opts gemini.GenerateOptions) *GeminiGenerator {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{client: client, model: model, opts: opts}
}

// Generate returns the model's raw text for prompt.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.client.Generate(ctx, g.model, prompt, g.opts)
	if err != nil {
		if errors.Is(err, gemini.ErrEmptyResponse) {
			return "", fmt.Errorf("%w: %w", ErrEmptyResponse, err)
		}
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return text, nil
}

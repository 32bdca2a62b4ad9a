package embeddings

import (
	"context"
	"fmt"
	"strings"
)

// Gemini task types. Documents and queries are embedded asymmetrically.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"

	DefaultGeminiModel = "text-embedding-004"
)

// embedClient is the subset of *gemini.Client the provider calls.
type embedClient interface {
	Embed(ctx context.Context, model, text, taskType string) ([]float32, error)
}

// GeminiProvider embeds text with a Gemini embedding model.
type GeminiProvider struct {
	client    embedClient
	model     string
	dimension int
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider wraps client. An empty model selects text-embedding-004.
func NewGeminiProvider(client embedClient, model string, dimension int) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{
		client:    client,
		model:     model,
		dimension: resolveDimension(model, dimension),
	}
}

// EmbedDocuments embeds each text in order. The first failure aborts the batch.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.embed(ctx, text, TaskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedQuery embeds a single question.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return p.embed(ctx, text, TaskRetrievalQuery)
}

func (p *GeminiProvider) embed(ctx context.Context, text, task string) ([]float32, error) {
	vec, err := p.client.Embed(ctx, p.model, text, task)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if p.dimension > 0 && len(vec) != p.dimension {
		return nil, fmt.Errorf("%w: model %s returned %d dimensions, expected %d",
			ErrEmbeddingFailed, p.model, len(vec), p.dimension)
	}
	return vec, nil
}

// Dimension returns the model's output dimension.
func (p *GeminiProvider) Dimension() int { return p.dimension }

// Close is a no-op; the shared gemini client has no resources to release.
func (p *GeminiProvider) Close() error { return nil }

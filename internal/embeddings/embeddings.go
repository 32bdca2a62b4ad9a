// Package embeddings turns text into vectors through one of several
// providers: Gemini (default), a TEI server, any OpenAI-compatible API via
// langchaingo, or local ONNX models via fastembed.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/gemini"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure. Every
	// provider wraps its failures with it.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder converts documents and queries into vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder with a known output dimension.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension, or 0 when unknown.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	// Provider is one of: gemini, tei, openai, fastembed.
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	// Dimension overrides the known model dimension when positive.
	Dimension int
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string

	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64
}

// NewProvider creates the configured provider, instrumented with metrics
// and tracing.
func NewProvider(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "gemini", "":
		var client *gemini.Client
		client, err = gemini.New(ctx, gemini.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			RateLimit:  cfg.RateLimit,
		}, logger.Named("gemini"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		p = NewGeminiProvider(client, cfg.Model, cfg.Dimension)
	case "tei":
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case "fastembed":
		p, err = NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", p.Dimension()))

	return Instrument(p, cfg.Model, NewMetrics(logger)), nil
}

// knownDimensions maps hosted model names to their output dimension.
var knownDimensions = map[string]int{
	"text-embedding-004":        768,
	"models/text-embedding-004": 768,
	"gemini-embedding-001":      3072,
	"text-embedding-3-small":    1536,
	"text-embedding-3-large":    3072,
	"text-embedding-ada-002":    1536,
}

// DetectDimension returns the dimension for model, or 0 when unknown.
func DetectDimension(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	case strings.Contains(lower, "small"), strings.Contains(lower, "minilm"):
		return 384
	}
	return 0
}

func resolveDimension(model string, override int) int {
	if override > 0 {
		return override
	}
	return DetectDimension(model)
}

func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: text %d is empty", ErrEmptyInput, i)
		}
	}
	return nil
}

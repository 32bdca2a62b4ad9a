// Package generation produces text from a prompt with a generative model.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/gemini"
)

const instrumentationName = "productqa/generation"

var tracer = otel.Tracer(instrumentationName)

var (
	// ErrGenerationFailed indicates the model call failed.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("generation returned no text")

	// ErrInvalidConfig indicates invalid generator configuration.
	ErrInvalidConfig = errors.New("invalid generation configuration")
)

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures a generator.
type Config struct {
	// Provider is gemini (default) or openai.
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	// MaxOutputTokens caps the response length; zero leaves the model default.
	MaxOutputTokens int
	Timeout         time.Duration
	MaxRetries      int
	RateLimit       float64
}

// New creates the configured generator, instrumented with metrics and tracing.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		g   Generator
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
		g = NewGeminiGenerator(client, cfg.Model, gemini.GenerateOptions{
			Temperature:     float32(cfg.Temperature),
			MaxOutputTokens: int32(cfg.MaxOutputTokens),
		})
	case "openai":
		g, err = NewOpenAIGenerator(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("generator ready", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
	return Instrument(g, cfg.Model, NewMetrics(logger)), nil
}

// Metrics holds generation metrics.
type Metrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates generation metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{}
	var err error
	m.duration, err = meter.Float64Histogram(
		"productqa.generation.duration_seconds",
		metric.WithDescription("Duration of generative model calls by model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	m.errors, err = meter.Int64Counter(
		"productqa.generation.errors_total",
		metric.WithDescription("Generative model call failures by model"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}
	return m
}

func (m *Metrics) record(ctx context.Context, model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

type instrumented struct {
	next    Generator
	model   string
	metrics *Metrics
}

// Instrument wraps g so each call is traced and measured.
func Instrument(g Generator, model string, m *Metrics) Generator {
	return &instrumented{next: g, model: model, metrics: m}
}

func (i *instrumented) Generate(ctx context.Context, prompt string) (text string, err error) {
	ctx, span := tracer.Start(ctx, "generation.Generate", trace.WithAttributes(
		attribute.String("model", i.model),
		attribute.Int("prompt_chars", len(prompt)),
	))
	start := time.Now()
	defer func() {
		i.metrics.record(ctx, i.model, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return i.next.Generate(ctx, prompt)
}

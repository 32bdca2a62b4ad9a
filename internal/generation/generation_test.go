package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/productqa/internal/gemini"
	"github.com/fyrsmithlabs/productqa/internal/telemetry"
)

type fakeGeminiClient struct {
	model  string
	prompt string
	opts   gemini.GenerateOptions
	text   string
	err    error
}

func (f *fakeGeminiClient) Generate(_ context.Context, model, prompt string, opts gemini.GenerateOptions) (string, error) {
	f.model, f.prompt, f.opts = model, prompt, opts
	return f.text, f.err
}

func TestGeminiGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("returns raw text", func(t *testing.T) {
		fake := &fakeGeminiClient{text: " Yes, OmegaGel is in stock.\n"}
		g := NewGeminiGenerator(fake, "", gemini.GenerateOptions{Temperature: 0.2})

		text, err := g.Generate(ctx, "prompt")
		require.NoError(t, err)
		assert.Equal(t, " Yes, OmegaGel is in stock.\n", text)
		assert.Equal(t, DefaultGeminiModel, fake.model)
		assert.Equal(t, float32(0.2), fake.opts.Temperature)
	})

	t.Run("empty response", func(t *testing.T) {
		g := NewGeminiGenerator(&fakeGeminiClient{err: gemini.ErrEmptyResponse}, "m", gemini.GenerateOptions{})
		_, err := g.Generate(ctx, "prompt")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("api failure", func(t *testing.T) {
		g := NewGeminiGenerator(&fakeGeminiClient{err: errors.New("503")}, "m", gemini.GenerateOptions{})
		_, err := g.Generate(ctx, "prompt")
		assert.ErrorIs(t, err, ErrGenerationFailed)
	})
}

type fakeLLM struct {
	content string
	err     error
	options llms.CallOptions
}

func (f *fakeLLM) GenerateContent(_ context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&f.options)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestOpenAIGenerator(t *testing.T) {
	ctx := context.Background()

	llm := &fakeLLM{content: "It is gluten free."}
	text, err := newOpenAIGenerator(llm, 0.2, 64).Generate(ctx, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "It is gluten free.", text)
	assert.Equal(t, 0.2, llm.options.Temperature)
	assert.Equal(t, 64, llm.options.MaxTokens)

	_, err = newOpenAIGenerator(&fakeLLM{content: "  "}, 0, 0).Generate(ctx, "prompt")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = newOpenAIGenerator(&fakeLLM{err: errors.New("429")}, 0, 0).Generate(ctx, "prompt")
	assert.ErrorIs(t, err, ErrGenerationFailed)

	_, err = NewOpenAIGenerator(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Provider: "palm"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(ctx, Config{Provider: "gemini"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInstrument_RecordsErrors(t *testing.T) {
	ctx := context.Background()
	tt := telemetry.NewTestTelemetry()

	g := Instrument(
		NewGeminiGenerator(&fakeGeminiClient{err: errors.New("boom")}, "gemini-2.0-flash", gemini.GenerateOptions{}),
		"gemini-2.0-flash",
		newMetrics(tt.Meter(instrumentationName), nil),
	)
	_, err := g.Generate(ctx, "prompt")
	require.Error(t, err)

	m, ok := tt.CollectMetric(ctx, "productqa.generation.errors_total")
	require.True(t, ok)
	assert.Equal(t, int64(1), telemetry.Int64Sum(m))
}

package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/productqa/internal/telemetry"
)

type fakeGemini struct {
	calls []string
	tasks []string
	err   error
	dim   int
}

func (f *fakeGemini) Embed(_ context.Context, model, text, taskType string) ([]float32, error) {
	f.calls = append(f.calls, text)
	f.tasks = append(f.tasks, taskType)
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, f.dim)
	vec[0] = float32(len(text))
	return vec, nil
}

func TestGeminiProvider(t *testing.T) {
	ctx := context.Background()
	fake := &fakeGemini{dim: 768}
	p := NewGeminiProvider(fake, "", 0)

	assert.Equal(t, 768, p.Dimension())

	vectors, err := p.EmbedDocuments(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(2), vectors[1][0])

	_, err = p.EmbedQuery(ctx, "is it gluten free?")
	require.NoError(t, err)

	assert.Equal(t, []string{TaskRetrievalDocument, TaskRetrievalDocument, TaskRetrievalQuery}, fake.tasks)
}

func TestGeminiProvider_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query never calls the api", func(t *testing.T) {
		fake := &fakeGemini{dim: 768}
		_, err := NewGeminiProvider(fake, "", 0).EmbedQuery(ctx, "  ")
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Empty(t, fake.calls)
	})

	t.Run("api failure wraps sentinel", func(t *testing.T) {
		cause := errors.New("quota exceeded")
		_, err := NewGeminiProvider(&fakeGemini{err: cause}, "", 0).EmbedQuery(ctx, "q")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := NewGeminiProvider(&fakeGemini{dim: 3}, "", 0).EmbedQuery(ctx, "q")
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Contains(t, err.Error(), "returned 3 dimensions")
	})
}

func newTEIServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		if status != http.StatusOK {
			http.Error(w, "model overloaded", status)
			return
		}
		var req struct {
			Inputs   json.RawMessage `json:"inputs"`
			Truncate bool            `json:"truncate"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		n := 1
		var many []string
		if json.Unmarshal(req.Inputs, &many) == nil {
			n = len(many)
		}
		out := make([][]float32, n)
		for i := range out {
			out[i] = []float32{float32(i), 1, 0}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTEIProvider(t *testing.T) {
	ctx := context.Background()
	srv := newTEIServer(t, http.StatusOK)

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL + "/", Model: "BAAI/bge-small-en-v1.5"})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 384, p.Dimension())

	vectors, err := p.EmbedDocuments(ctx, []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(2), vectors[2][0])

	vec, err := p.EmbedQuery(ctx, "one")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestTEIProvider_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewTEIProvider(TEIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	srv := newTEIServer(t, http.StatusServiceUnavailable)
	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.EmbedQuery(ctx, "q")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "status 503")

	_, err = p.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedDocuments(ctx, []string{"ok", ""})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

type fakeLCEmbedder struct {
	vectors [][]float32
	err     error
}

func (f *fakeLCEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return f.vectors, f.err
}

func (f *fakeLCEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if len(f.vectors) == 0 {
		return nil, f.err
	}
	return f.vectors[0], f.err
}

func TestOpenAIProvider(t *testing.T) {
	ctx := context.Background()

	p := newOpenAIProvider(&fakeLCEmbedder{vectors: [][]float32{{1, 2}}}, "text-embedding-3-small", 0)
	assert.Equal(t, 1536, p.Dimension())

	_, err := p.EmbedDocuments(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed, "vector count must match input count")

	vec, err := p.EmbedQuery(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)

	_, err = newOpenAIProvider(&fakeLCEmbedder{err: errors.New("401")}, "m", 8).EmbedQuery(ctx, "a")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	_, err = NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProvider_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewProvider(ctx, ProviderConfig{Provider: "word2vec"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewProvider(ctx, ProviderConfig{Provider: "gemini"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig, "gemini requires an api key")

	srv := newTEIServer(t, http.StatusOK)
	p, err := NewProvider(ctx, ProviderConfig{Provider: "tei", BaseURL: srv.URL, Dimension: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Dimension())
	_, err = p.EmbedQuery(ctx, "hello")
	assert.NoError(t, err)
}

func TestDetectDimension(t *testing.T) {
	tests := map[string]int{
		"text-embedding-004":     768,
		"BAAI/bge-base-en-v1.5":  768,
		"text-embedding-3-large": 3072,
		"some-large-model":       1024,
		"all-minilm-custom":      384,
		"mystery":                0,
	}
	for model, want := range tests {
		assert.Equal(t, want, DetectDimension(model), model)
	}
}

func TestInstrument_RecordsMetricsAndSpans(t *testing.T) {
	ctx := context.Background()
	tt := telemetry.NewTestTelemetry()

	m := newMetrics(tt.Meter(instrumentationName), nil)
	p := Instrument(NewGeminiProvider(&fakeGemini{dim: 768}, "", 0), "text-embedding-004", m)

	_, err := p.EmbedQuery(ctx, "q")
	require.NoError(t, err)
	_, err = p.EmbedQuery(ctx, "")
	require.Error(t, err)

	errs, ok := tt.CollectMetric(ctx, "productqa.embedding.errors_total")
	require.True(t, ok)
	assert.Equal(t, int64(1), telemetry.Int64Sum(errs))

	_, ok = tt.CollectMetric(ctx, "productqa.embedding.duration_seconds")
	assert.True(t, ok)
	assert.Equal(t, 768, p.Dimension())
}

package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	embedCalls    atomic.Int32
	generateCalls atomic.Int32
	embedErrs     []error
	generateErrs  []error
	vector        []float32
	text          string
	lastModel     string
	lastTaskType  string
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	n := int(f.embedCalls.Add(1))
	f.lastModel = model
	if cfg != nil {
		f.lastTaskType = cfg.TaskType
	}
	if n <= len(f.embedErrs) && f.embedErrs[n-1] != nil {
		return nil, f.embedErrs[n-1]
	}
	if f.vector == nil {
		return &genai.EmbedContentResponse{}, nil
	}
	return &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: f.vector}},
	}, nil
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	n := int(f.generateCalls.Add(1))
	f.lastModel = model
	if n <= len(f.generateErrs) && f.generateErrs[n-1] != nil {
		return nil, f.generateErrs[n-1]
	}
	if f.text == "" {
		return &genai.GenerateContentResponse{}, nil
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func newTestClient(m models, maxRetries int) *Client {
	c := newClient(m, Config{MaxRetries: maxRetries, RateLimit: 1000, Timeout: time.Second}, nil)
	c.backoff = time.Millisecond
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClient_Embed(t *testing.T) {
	fm := &fakeModels{vector: []float32{0.1, 0.2, 0.3}}
	c := newTestClient(fm, 2)

	vec, err := c.Embed(context.Background(), "text-embedding-004", "OmegaGel", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "text-embedding-004", fm.lastModel)
	assert.Equal(t, "RETRIEVAL_DOCUMENT", fm.lastTaskType)
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	fm := &fakeModels{
		vector: []float32{1},
		embedErrs: []error{
			genai.APIError{Code: http.StatusTooManyRequests, Message: "quota"},
			genai.APIError{Code: http.StatusServiceUnavailable, Message: "overloaded"},
		},
	}
	c := newTestClient(fm, 3)

	vec, err := c.Embed(context.Background(), "m", "q", "")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(3), fm.embedCalls.Load())
}

func TestClient_RetriesAreBounded(t *testing.T) {
	unavailable := genai.APIError{Code: http.StatusInternalServerError}
	fm := &fakeModels{
		text:         "never",
		generateErrs: []error{unavailable, unavailable, unavailable, unavailable, unavailable},
	}
	c := newTestClient(fm, 2)

	_, err := c.Generate(context.Background(), "gemini-2.0-flash", "prompt", GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(3), fm.generateCalls.Load(), "one call plus two retries")

	var apiErr genai.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestClient_ZeroRetriesMakesOneAttempt(t *testing.T) {
	fm := &fakeModels{
		vector:    []float32{1},
		embedErrs: []error{genai.APIError{Code: http.StatusServiceUnavailable, Message: "overloaded"}},
	}
	c := newTestClient(fm, 0)

	_, err := c.Embed(context.Background(), "m", "q", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), fm.embedCalls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	fm := &fakeModels{
		vector:    []float32{1},
		embedErrs: []error{genai.APIError{Code: http.StatusBadRequest, Message: "bad"}},
	}
	c := newTestClient(fm, 3)

	_, err := c.Embed(context.Background(), "m", "q", "")
	require.Error(t, err)
	assert.Equal(t, int32(1), fm.embedCalls.Load())
}

func TestClient_EmptyResponses(t *testing.T) {
	c := newTestClient(&fakeModels{}, 3)

	_, err := c.Embed(context.Background(), "m", "q", "")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = c.Generate(context.Background(), "m", "p", GenerateOptions{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestClient_Generate(t *testing.T) {
	fm := &fakeModels{text: "  OmegaGel is in stock.  "}
	c := newTestClient(fm, 0)

	text, err := c.Generate(context.Background(), "gemini-2.0-flash", "prompt", GenerateOptions{Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "  OmegaGel is in stock.  ", text)
}

func TestClient_CanceledContext(t *testing.T) {
	fm := &fakeModels{vector: []float32{1}}
	c := newTestClient(fm, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Embed(ctx, "m", "q", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(genai.APIError{Code: 429}))
	assert.True(t, IsRetryable(genai.APIError{Code: 502}))
	assert.False(t, IsRetryable(genai.APIError{Code: 403}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(errors.New("boom")))
}

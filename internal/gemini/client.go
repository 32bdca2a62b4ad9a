// Package gemini is the shared Google Gemini client used for embeddings and
// generation. It adds a token-bucket rate limit, a per-attempt timeout and a
// bounded number of retries on top of the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 5.0
	defaultBurst     = 2
	baseBackoff      = 500 * time.Millisecond
	maxBackoff       = 8 * time.Second
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("gemini: API key required (set GOOGLE_API_KEY)")

	// ErrEmptyResponse is returned when the API answers without usable content.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// Config configures a Client.
type Config struct {
	APIKey string
	// BaseURL overrides the Gemini endpoint. Used for tests and proxies.
	BaseURL    string
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retries.
	MaxRetries int
	// RateLimit is requests per second; zero uses the default.
	RateLimit float64
}

// models is the subset of *genai.Models the client calls.
type models interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client calls the Gemini API with rate limiting and bounded retries.
type Client struct {
	models     models
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// New creates a Client backed by the genai SDK.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	sdk, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newClient(sdk.Models, cfg, logger), nil
}

func newClient(m models, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := max(cfg.MaxRetries, 0)
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	return &Client{
		models:     m,
		limiter:    rate.NewLimiter(rate.Limit(limit), defaultBurst),
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    baseBackoff,
		logger:     logger,
	}
}

// Embed returns the embedding of text under model.
func (c *Client) Embed(ctx context.Context, model, text, taskType string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	return call(ctx, c, "embed", func(ctx context.Context) ([]float32, error) {
		resp, err := c.models.EmbedContent(ctx, model, genai.Text(text), cfg)
		if err != nil {
			return nil, err
		}
		if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
			return nil, backoff.Permanent(ErrEmptyResponse)
		}
		return resp.Embeddings[0].Values, nil
	})
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature     float32
	MaxOutputTokens int32
}

// Generate returns the text of the first candidate for prompt.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: opts.MaxOutputTokens}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(opts.Temperature)
	}
	return call(ctx, c, "generate", func(ctx context.Context) (string, error) {
		resp, err := c.models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
		if err != nil {
			return "", err
		}
		if resp == nil {
			return "", backoff.Permanent(ErrEmptyResponse)
		}
		text := resp.Text()
		if text == "" {
			return "", backoff.Permanent(ErrEmptyResponse)
		}
		return text, nil
	})
}

// call runs op under the limiter with a per-attempt timeout, retrying
// transient failures up to maxRetries times.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	attempt := 0
	operation := func() (T, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		v, err := fn(attemptCtx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(ctx.Err())
		}
		if !IsRetryable(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxInterval = maxBackoff

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("gemini call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return zero, fmt.Errorf("gemini %s failed after %d attempt(s): %w", op, attempt, err)
	}
	return v, nil
}

// IsRetryable reports whether err is worth another attempt: rate limiting,
// server errors, network failures and per-attempt timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

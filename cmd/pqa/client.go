package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiError is a non-2xx response from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// client calls the productqa HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(opts *globalOptions) *client {
	return &client{
		baseURL: strings.TrimRight(opts.serverURL, "/"),
		http:    &http.Client{Timeout: opts.timeout},
	}
}

// do sends body as JSON (when non-nil) and decodes the response into out.
// Non-2xx responses become *apiError; out is still filled when the body
// decodes, which /ready relies on.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if out != nil {
			_ = json.Unmarshal(raw, out)
		}
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *client) ask(ctx context.Context, question string) (string, error) {
	var resp struct {
		Answer string `json:"answer"`
	}
	if err := c.do(ctx, http.MethodPost, "/ask", map[string]string{"question": question}, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// ingestStatus mirrors the server's /api/v1/ingest/status body.
type ingestStatus struct {
	State        string    `json:"state"`
	Total        int       `json:"total"`
	Indexed      int       `json:"indexed"`
	FailedIDs    []string  `json:"failed_ids"`
	Duplicates   int       `json:"duplicates"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Error        string    `json:"error"`
	IndexEntries int       `json:"index_entries"`
}

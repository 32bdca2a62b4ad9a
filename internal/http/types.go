package http

import "github.com/fyrsmithlabs/productqa/internal/ingest"

// AskRequest is the request body for POST /ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the response body for POST /ask.
type AskResponse struct {
	Answer string `json:"answer"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ReadyResponse is the response body for GET /ready.
type ReadyResponse struct {
	Ready  bool         `json:"ready"`
	Ingest ingest.State `json:"ingest"`
}

// IngestStatusResponse is the response body for GET /api/v1/ingest/status.
type IngestStatusResponse struct {
	ingest.Report
	// IndexEntries is -1 when the index cannot be counted.
	IndexEntries int `json:"index_entries"`
}

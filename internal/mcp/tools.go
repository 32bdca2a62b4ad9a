package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/answer"
	"github.com/fyrsmithlabs/productqa/internal/ingest"
	"github.com/fyrsmithlabs/productqa/internal/qa"
	"github.com/fyrsmithlabs/productqa/internal/retrieval"
)

const (
	toolAskProduct   = "ask_product"
	toolIngestStatus = "ingest_status"
)

var (
	errNoQuestion           = errors.New("no question provided")
	errQuestionTooLong      = errors.New("question is too long")
	errNotReady             = errors.New("product information is still loading, try again shortly")
	errRetrievalUnavailable = errors.New("product information is temporarily unavailable")
	errGenerationFailure    = errors.New("answer generation is temporarily unavailable")
	errBusy                 = errors.New("server is busy, try again later")
	errInternal             = errors.New("internal error")
)

type askProductInput struct {
	Question string `json:"question" jsonschema:"The product question, e.g. 'Is OmegaGel in stock?'"`
}

type askProductOutput struct {
	Answer  string   `json:"answer" jsonschema:"Answer of at most about 30 words"`
	Found   bool     `json:"found" jsonschema:"Whether a catalog entry matched the question"`
	Sources []string `json:"sources,omitempty" jsonschema:"Product names of the matched catalog entries, best first"`
}

type ingestStatusInput struct{}

type ingestStatusOutput struct {
	State      string   `json:"state" jsonschema:"not_started, running, completed, partially_completed or failed"`
	Ready      bool     `json:"ready" jsonschema:"Whether questions can be answered from the index"`
	Total      int      `json:"total" jsonschema:"Records read from the catalog"`
	Indexed    int      `json:"indexed" jsonschema:"Documents written to the index"`
	FailedIDs  []string `json:"failed_ids,omitempty" jsonschema:"Records skipped because projection or embedding failed"`
	Duplicates int      `json:"duplicates" jsonschema:"Records that overwrote an earlier record with the same name"`
	Error      string   `json:"error,omitempty" jsonschema:"Reason a failed run stopped"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolAskProduct,
		Description: "Answer a natural-language question about a functional product in the catalog (stock, price, allergens, storage, certifications and so on).",
	}, s.handleAskProduct)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolIngestStatus,
		Description: "Report the state of the catalog ingestion run that populates the product index.",
	}, s.handleIngestStatus)
}

func (s *Server) handleAskProduct(ctx context.Context, _ *mcp.CallToolRequest, args askProductInput) (*mcp.CallToolResult, askProductOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, toolAskProduct)
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, toolAskProduct)
		s.metrics.RecordInvocation(ctx, toolAskProduct, time.Since(start), toolErr)
	}()

	if strings.TrimSpace(args.Question) == "" {
		toolErr = errNoQuestion
		return nil, askProductOutput{}, toolErr
	}

	if !s.skipIngest && !s.ingest.Status().State.Finished() {
		toolErr = errNotReady
		return nil, askProductOutput{}, toolErr
	}

	ans, err := s.asker.Ask(ctx, args.Question)
	if err != nil {
		toolErr = s.publicError(err)
		return nil, askProductOutput{}, toolErr
	}

	out := askProductOutput{Answer: ans.Text, Found: ans.Found, Sources: ans.Sources}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: ans.Text}},
	}, out, nil
}

// publicError maps a pipeline failure to a message safe to return to clients.
func (s *Server) publicError(err error) error {
	switch {
	case errors.Is(err, qa.ErrQuestionTooLong):
		return errQuestionTooLong
	case errors.Is(err, qa.ErrInvalidRequest):
		return errNoQuestion
	case errors.Is(err, retrieval.ErrRetrievalUnavailable):
		s.logger.Warn("retrieval unavailable", zap.Error(err))
		return errRetrievalUnavailable
	case errors.Is(err, answer.ErrGenerationFailure):
		s.logger.Warn("generation failed", zap.Error(err))
		return errGenerationFailure
	case errors.Is(err, qa.ErrBusy):
		return errBusy
	default:
		s.logger.Error("ask_product failed", zap.Error(err))
		return errInternal
	}
}

func (s *Server) handleIngestStatus(ctx context.Context, _ *mcp.CallToolRequest, _ ingestStatusInput) (*mcp.CallToolResult, ingestStatusOutput, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordInvocation(ctx, toolIngestStatus, time.Since(start), nil)
	}()

	r := s.ingest.Status()
	out := ingestStatusOutput{
		State:      string(r.State),
		Ready:      s.ingest.Ready(),
		Total:      r.Total,
		Indexed:    r.Indexed,
		FailedIDs:  r.FailedIDs,
		Duplicates: r.Duplicates,
		Error:      r.Error,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: summarize(r)}},
	}, out, nil
}

func summarize(r ingest.Report) string {
	switch r.State {
	case ingest.StateNotStarted, ingest.StateRunning:
		return fmt.Sprintf("Ingestion %s.", strings.ReplaceAll(string(r.State), "_", " "))
	case ingest.StateFailed:
		return fmt.Sprintf("Ingestion failed: %s", r.Error)
	default:
		return fmt.Sprintf("Ingestion %s: %d of %d records indexed, %d skipped.",
			strings.ReplaceAll(string(r.State), "_", " "), r.Indexed, r.Total, len(r.FailedIDs))
	}
}

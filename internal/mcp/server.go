package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/ingest"
	"github.com/fyrsmithlabs/productqa/internal/qa"
)

// Asker answers a product question.
type Asker interface {
	Ask(ctx context.Context, question string) (*qa.Answer, error)
}

// IngestStatus reports ingestion progress.
type IngestStatus interface {
	Status() ingest.Report
	Ready() bool
}

// Server serves productqa tools over MCP.
type Server struct {
	mcp     *mcp.Server
	asker   Asker
	ingest  IngestStatus
	metrics *Metrics
	logger  *zap.Logger

	skipIngest bool
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "productqa")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging. MCP owns stdout, so it must not write there.
	Logger *zap.Logger

	// SkipIngest serves questions without waiting for ingestion, for an
	// index populated by an earlier run.
	SkipIngest bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "productqa",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server backed by the given services.
func NewServer(cfg *Config, asker Asker, status IngestStatus) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if asker == nil {
		return nil, fmt.Errorf("asker is required")
	}
	if status == nil {
		return nil, fmt.Errorf("ingest status is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		asker:   asker,
		ingest:  status,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,

		skipIngest: cfg.SkipIngest,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport and blocks until the
// client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Package http provides the productqa HTTP gateway.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/answer"
	"github.com/fyrsmithlabs/productqa/internal/ingest"
	"github.com/fyrsmithlabs/productqa/internal/logging"
	"github.com/fyrsmithlabs/productqa/internal/qa"
	"github.com/fyrsmithlabs/productqa/internal/retrieval"
)

// User-visible error messages. Provider details are logged, never returned.
const (
	msgNoQuestion           = "No question provided"
	msgInvalidBody          = "Invalid request body"
	msgQuestionTooLong      = "Question is too long"
	msgRetrievalUnavailable = "Product information is temporarily unavailable."
	msgGenerationFailure    = "Answer generation is temporarily unavailable."
	msgBusy                 = "Server is busy, try again later."
	msgNotReady             = "Product information is still loading, try again shortly."
	msgInternal             = "Internal server error"
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

// Counter reports the number of indexed entries.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Server provides HTTP endpoints for productqa.
type Server struct {
	echo    *echo.Echo
	asker   Asker
	ingest  IngestStatus
	index   Counter
	metrics *HTTPMetrics
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RequestTimeout bounds a single /ask call.
	RequestTimeout time.Duration
	CORSOrigins    []string
	// BodyLimit uses echo's size syntax, e.g. "64K".
	BodyLimit string
	Version   string
	// SkipIngest makes /ask and /ready independent of the ingestion state.
	// Otherwise /ask answers 503 until the first ingestion run finishes.
	SkipIngest bool
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 5001
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.BodyLimit == "" {
		c.BodyLimit = "64K"
	}
}

// NewServer creates a new HTTP server. index may be nil.
func NewServer(asker Asker, status IngestStatus, index Counter, logger *zap.Logger, cfg *Config) (*Server, error) {
	if asker == nil {
		return nil, fmt.Errorf("asker cannot be nil")
	}
	if status == nil {
		return nil, fmt.Errorf("ingest status cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		asker:   asker,
		ingest:  status,
		index:   index,
		metrics: NewHTTPMetrics(logger),
		logger:  logger,
		config:  cfg,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

// requestLogger carries the request ID into the request context and logs
// each request once it completes.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		req := c.Request()
		c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info("http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", id),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.POST("/ask", s.handleAsk)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/ingest/status", s.handleIngestStatus)
}

// handleAsk answers a single product question.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Debug("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidBody)
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, msgNoQuestion)
	}
	if !s.config.SkipIngest && !s.ingest.Status().State.Finished() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgNotReady)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer cancel()

	ans, err := s.asker.Ask(ctx, req.Question)
	if err != nil {
		return s.askError(ctx, err)
	}
	return c.JSON(http.StatusOK, AskResponse{Answer: ans.Text})
}

// askError maps a question pipeline failure to a status and a fixed message.
func (s *Server) askError(ctx context.Context, err error) error {
	fields := append(logging.ContextFields(ctx), zap.Error(err))
	switch {
	case errors.Is(err, qa.ErrQuestionTooLong):
		return echo.NewHTTPError(http.StatusBadRequest, msgQuestionTooLong).SetInternal(err)
	case errors.Is(err, qa.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, msgNoQuestion).SetInternal(err)
	case errors.Is(err, retrieval.ErrRetrievalUnavailable):
		s.logger.Warn("retrieval unavailable", fields...)
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgRetrievalUnavailable).SetInternal(err)
	case errors.Is(err, answer.ErrGenerationFailure):
		s.logger.Warn("generation failed", fields...)
		return echo.NewHTTPError(http.StatusBadGateway, msgGenerationFailure).SetInternal(err)
	case errors.Is(err, qa.ErrBusy):
		s.logger.Warn("request rejected", fields...)
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgBusy).SetInternal(err)
	default:
		s.logger.Error("ask failed", fields...)
		return echo.NewHTTPError(http.StatusInternalServerError, msgInternal).SetInternal(err)
	}
}

// handleError renders every error as {"error": message}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := msgInternal
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	} else {
		s.logger.Error("unhandled error", zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Warn("writing error response", zap.Error(err))
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

// handleReady reports whether questions can be answered from a populated index.
func (s *Server) handleReady(c echo.Context) error {
	report := s.ingest.Status()
	resp := ReadyResponse{Ready: true, Ingest: report.State}

	if !s.config.SkipIngest && !s.ingest.Ready() {
		resp.Ready = false
	}
	if s.index != nil {
		if _, err := s.index.Count(c.Request().Context()); err != nil {
			s.logger.Warn("index not reachable", zap.Error(err))
			resp.Ready = false
		}
	}

	if !resp.Ready {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleIngestStatus returns the latest ingestion report.
func (s *Server) handleIngestStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, IngestStatusResponse{
		Report:       s.ingest.Status(),
		IndexEntries: CountEntries(c.Request().Context(), s.index),
	})
}

// CountEntries returns the index size, or -1 if it cannot be determined.
func CountEntries(ctx context.Context, index Counter) int {
	if index == nil {
		return -1
	}
	n, err := index.Count(ctx)
	if err != nil {
		return -1
	}
	return n
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

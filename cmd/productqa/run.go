package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/config"
	httpserver "github.com/fyrsmithlabs/productqa/internal/http"
	"github.com/fyrsmithlabs/productqa/internal/ingest"
	"github.com/fyrsmithlabs/productqa/internal/logging"
	"github.com/fyrsmithlabs/productqa/internal/mcp"
	"github.com/fyrsmithlabs/productqa/internal/services"
	"github.com/fyrsmithlabs/productqa/internal/telemetry"
)

type options struct {
	configPath string
	envFile    string
}

// run loads configuration, builds the services and executes command. It
// blocks until the command finishes or ctx is cancelled.
func run(ctx context.Context, command string, opts options) error {
	if opts.envFile != "" {
		if err := config.LoadDotEnv(opts.envFile); err != nil {
			return err
		}
	}
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel, command == "mcp")
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	zl.Info("starting productqa",
		zap.String("command", command),
		zap.String("version", version),
		zap.String("embeddings", cfg.Embeddings.Provider+"/"+cfg.Embeddings.Model),
		zap.String("generation", cfg.Generation.Provider+"/"+cfg.Generation.Model),
		zap.String("vectorstore", cfg.VectorStore.Provider))

	reg, err := services.Build(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			zl.Warn("closing services", zap.Error(err))
		}
	}()

	switch command {
	case "ingest":
		return runIngest(ctx, reg, os.Stdout)
	case "mcp":
		return runMCP(ctx, cfg, reg)
	default:
		return runServe(ctx, cfg, reg)
	}
}

// initLogger builds the zap logger. MCP mode logs to stderr because the
// protocol owns stdout.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry, stderr bool) (*logging.Logger, error) {
	lc, err := logging.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	lc.Output.Stderr = stderr
	return logging.NewLogger(lc, tel.LoggerProvider())
}

// runIngest runs one ingestion pass and prints the report as JSON.
func runIngest(ctx context.Context, reg services.Registry, out io.Writer) error {
	report, err := reg.Ingest().Run(ctx)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		return encErr
	}
	return err
}

// startIngest runs ingestion in the background. The channel receives the
// run's error, or nil, and is then closed.
func startIngest(ctx context.Context, reg services.Registry) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		report, err := reg.Ingest().Run(ctx)
		if err != nil {
			reg.Logger().Error("ingestion failed", zap.Error(err))
		} else if report.State == ingest.StatePartiallyCompleted {
			reg.Logger().Warn("ingestion skipped records", zap.Strings("failed_ids", report.FailedIDs))
		}
		done <- err
	}()
	return done
}

func httpConfig(cfg *config.Config) *httpserver.Config {
	return &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		Version:        version,
		SkipIngest:     cfg.Ingest.SkipOnStart,
	}
}

// runServe serves HTTP until ctx is cancelled. A fatal ingestion error stops
// the server.
func runServe(ctx context.Context, cfg *config.Config, reg services.Registry) error {
	logger := reg.Logger()

	srv, err := httpserver.NewServer(reg.QA(), reg.Ingest(), reg.Index(), logger.Named("http"), httpConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	var ingestDone <-chan error
	if !cfg.Ingest.SkipOnStart {
		ingestDone = startIngest(ctx, reg)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case err := <-ingestDone:
		if err != nil {
			runErr = fmt.Errorf("ingestion: %w", err)
			break
		}
		// Ingestion finished; keep serving.
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = err
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutting down http server: %w", err)
	}
	return runErr
}

// runMCP serves MCP tools over stdio. ask_product reports "still loading"
// until background ingestion finishes, and a fatal ingestion error stops the
// server.
func runMCP(ctx context.Context, cfg *config.Config, reg services.Registry) error {
	srv, err := mcp.NewServer(&mcp.Config{
		Name:       "productqa",
		Version:    version,
		Logger:     reg.Logger().Named("mcp"),
		SkipIngest: cfg.Ingest.SkipOnStart,
	}, reg.QA(), reg.Ingest())
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ingestDone <-chan error
	if !cfg.Ingest.SkipOnStart {
		ingestDone = startIngest(ctx, reg)
	}
	return serveUntilIngestFails(ctx, cancel, func() error { return srv.Run(ctx) }, ingestDone)
}

// serveUntilIngestFails runs serve until it returns. If ingestDone delivers
// an error first, serving is cancelled and that error is returned.
func serveUntilIngestFails(ctx context.Context, cancel context.CancelFunc, serve func() error, ingestDone <-chan error) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- serve()
	}()

	for {
		select {
		case err := <-serveErr:
			return err
		case err, ok := <-ingestDone:
			if !ok {
				ingestDone = nil
				continue
			}
			if err != nil {
				cancel()
				<-serveErr
				return fmt.Errorf("ingestion: %w", err)
			}
		case <-ctx.Done():
			return <-serveErr
		}
	}
}

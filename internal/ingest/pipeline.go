// Package ingest populates the vector index from the product catalog.
//
// A run reads every record, projects it into a document, embeds documents
// concurrently and upserts them in source order. Per-document projection or
// embedding failures, including vectors the index rejects as malformed, are
// skipped and reported; an unreachable source or a failing index stops the run. Because upserts overwrite by id, running the
// pipeline again over the same catalog is safe.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/productqa/internal/catalog"
	"github.com/fyrsmithlabs/productqa/internal/embeddings"
	"github.com/fyrsmithlabs/productqa/internal/vectorstore"
)

var tracer = otel.Tracer("productqa/ingest")

// ErrAlreadyRunning is returned by Run while another run is in progress.
var ErrAlreadyRunning = errors.New("ingestion already running")

// State is the lifecycle state of the pipeline.
type State string

const (
	StateNotStarted         State = "not_started"
	StateRunning            State = "running"
	StateCompleted          State = "completed"
	StatePartiallyCompleted State = "partially_completed"
	StateFailed             State = "failed"
)

// Finished reports whether the state is terminal.
func (s State) Finished() bool {
	return s == StateCompleted || s == StatePartiallyCompleted || s == StateFailed
}

// Report describes the latest run.
type Report struct {
	State State `json:"state"`
	// Total is the number of records read from the source.
	Total   int `json:"total"`
	Indexed int `json:"indexed"`
	// FailedIDs lists records skipped for projection or embedding failures.
	// Records without a name are listed as "#<row>".
	FailedIDs  []string  `json:"failed_ids,omitempty"`
	Duplicates int       `json:"duplicates"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Config tunes a run.
type Config struct {
	// Concurrency bounds in-flight embedding calls.
	Concurrency int
	// DocumentTimeout bounds a single document's embedding call.
	DocumentTimeout time.Duration
}

// Pipeline drives catalog records into the vector index.
type Pipeline struct {
	source   catalog.Source
	embedder embeddings.Embedder
	index    vectorstore.Index
	config   Config
	logger   *zap.Logger

	mu     sync.Mutex
	report Report
}

// New creates a Pipeline.
func New(source catalog.Source, embedder embeddings.Embedder, index vectorstore.Index, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.DocumentTimeout <= 0 {
		cfg.DocumentTimeout = 30 * time.Second
	}
	return &Pipeline{
		source:   source,
		embedder: embedder,
		index:    index,
		config:   cfg,
		logger:   logger,
		report:   Report{State: StateNotStarted},
	}
}

// Status returns a copy of the latest report.
func (p *Pipeline) Status() Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.report
	r.FailedIDs = append([]string(nil), p.report.FailedIDs...)
	return r
}

// Ready reports whether a run has finished, successfully or partially.
func (p *Pipeline) Ready() bool {
	s := p.Status().State
	return s == StateCompleted || s == StatePartiallyCompleted
}

// Run performs one ingestion pass. The returned error is non-nil only for
// fatal failures; skipped documents are listed in the report.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	p.mu.Lock()
	if p.report.State == StateRunning {
		p.mu.Unlock()
		return Report{}, ErrAlreadyRunning
	}
	p.report = Report{State: StateRunning, StartedAt: time.Now()}
	p.mu.Unlock()

	ctx, span := tracer.Start(ctx, "ingest.Run")
	defer span.End()

	report, err := p.run(ctx)
	report.StartedAt = p.Status().StartedAt
	report.FinishedAt = time.Now()
	switch {
	case err != nil:
		report.State = StateFailed
		report.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		runsTotal.WithLabelValues(string(StateFailed)).Inc()
		p.logger.Error("ingestion failed", zap.Error(err))
	case len(report.FailedIDs) > 0:
		report.State = StatePartiallyCompleted
	default:
		report.State = StateCompleted
	}
	if err == nil {
		runsTotal.WithLabelValues(string(report.State)).Inc()
		p.logger.Info("ingestion finished",
			zap.String("state", string(report.State)),
			zap.Int("total", report.Total),
			zap.Int("indexed", report.Indexed),
			zap.Int("failed", len(report.FailedIDs)),
			zap.Int("duplicates", report.Duplicates),
			zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	}
	runDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	span.SetAttributes(
		attribute.String("state", string(report.State)),
		attribute.Int("indexed", report.Indexed),
		attribute.Int("failed", len(report.FailedIDs)),
	)

	p.mu.Lock()
	p.report = report
	p.mu.Unlock()
	return p.Status(), err
}

func (p *Pipeline) run(ctx context.Context) (Report, error) {
	var report Report

	records, err := p.source.Records(ctx)
	if err != nil {
		return report, fmt.Errorf("reading catalog: %w", err)
	}
	report.Total = len(records)

	docs, failed, dups := p.project(records)
	report.FailedIDs = append(report.FailedIDs, failed...)
	report.Duplicates = dups

	vectors, embedErrs := p.embed(ctx, docs)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	for i, doc := range docs {
		if embedErrs[i] != nil {
			p.logger.Warn("skipping document: embedding failed",
				zap.String("id", doc.ID), zap.Error(embedErrs[i]))
			report.FailedIDs = append(report.FailedIDs, doc.ID)
			documentsTotal.WithLabelValues("embedding_failed").Inc()
			continue
		}
		if err := p.index.Upsert(ctx, doc.ID, vectors[i], doc.Text); err != nil {
			// A vector the index rejects is a bad embedding, not a broken index.
			if errors.Is(err, vectorstore.ErrDimensionMismatch) || errors.Is(err, vectorstore.ErrInvalidEntry) {
				p.logger.Warn("skipping document: index rejected vector",
					zap.String("id", doc.ID), zap.Error(err))
				report.FailedIDs = append(report.FailedIDs, doc.ID)
				documentsTotal.WithLabelValues("embedding_failed").Inc()
				continue
			}
			return report, fmt.Errorf("indexing %q: %w", doc.ID, err)
		}
		report.Indexed++
		documentsTotal.WithLabelValues("indexed").Inc()
	}
	return report, nil
}

// project renders records into documents in source order. A repeated name
// replaces the earlier document's text but keeps its position.
func (p *Pipeline) project(records []catalog.ProductRecord) (docs []catalog.Document, failed []string, duplicates int) {
	position := make(map[string]int, len(records))
	for row, r := range records {
		doc, err := catalog.Project(r)
		if err != nil {
			id := r.ProductName
			if id == "" {
				id = fmt.Sprintf("#%d", row+1)
			}
			p.logger.Warn("skipping record: projection failed", zap.String("id", id), zap.Error(err))
			failed = append(failed, id)
			documentsTotal.WithLabelValues("projection_failed").Inc()
			continue
		}
		if i, seen := position[doc.ID]; seen {
			p.logger.Warn("duplicate product name, last record wins", zap.String("id", doc.ID), zap.Int("row", row+1))
			docs[i] = doc
			duplicates++
			documentsTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		position[doc.ID] = len(docs)
		docs = append(docs, doc)
	}
	return docs, failed, duplicates
}

// embed computes one vector per document with bounded concurrency. Errors
// are collected per document rather than cancelling the group.
func (p *Pipeline) embed(ctx context.Context, docs []catalog.Document) ([][]float32, []error) {
	vectors := make([][]float32, len(docs))
	errs := make([]error, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(gctx, p.config.DocumentTimeout)
			defer cancel()

			out, err := p.embedder.EmbedDocuments(dctx, []string{doc.Text})
			switch {
			case err != nil:
				errs[i] = err
			case len(out) != 1 || len(out[0]) == 0:
				errs[i] = fmt.Errorf("%w: no vector returned", embeddings.ErrEmbeddingFailed)
			case !finite(out[0]):
				errs[i] = fmt.Errorf("%w: vector contains NaN or Inf", embeddings.ErrEmbeddingFailed)
			default:
				vectors[i] = out[0]
			}
			return nil
		})
	}
	_ = g.Wait()
	return vectors, errs
}

func finite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

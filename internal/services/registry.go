package services

import (
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/answer"
	"github.com/fyrsmithlabs/productqa/internal/catalog"
	"github.com/fyrsmithlabs/productqa/internal/embeddings"
	"github.com/fyrsmithlabs/productqa/internal/generation"
	"github.com/fyrsmithlabs/productqa/internal/ingest"
	"github.com/fyrsmithlabs/productqa/internal/qa"
	"github.com/fyrsmithlabs/productqa/internal/retrieval"
	"github.com/fyrsmithlabs/productqa/internal/vectorstore"
)

// Registry provides access to the productqa services.
type Registry interface {
	Catalog() catalog.Source
	Embedder() embeddings.Embedder
	Index() vectorstore.Index
	Generator() generation.Generator
	Retriever() *retrieval.Retriever
	Composer() *answer.Composer
	Ingest() *ingest.Pipeline
	QA() *qa.Service
	Logger() *zap.Logger

	// Close releases every closable component. It is safe to call twice.
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	Catalog   catalog.Source
	Embedder  embeddings.Embedder
	Index     vectorstore.Index
	Generator generation.Generator
	Retriever *retrieval.Retriever
	Composer  *answer.Composer
	Ingest    *ingest.Pipeline
	QA        *qa.Service
	Logger    *zap.Logger

	// Closers run in order on Close, in addition to Index.
	Closers []func() error
}

type registry struct {
	catalog   catalog.Source
	embedder  embeddings.Embedder
	index     vectorstore.Index
	generator generation.Generator
	retriever *retrieval.Retriever
	composer  *answer.Composer
	ingest    *ingest.Pipeline
	qa        *qa.Service
	logger    *zap.Logger
	closers   []func() error
}

// NewRegistry creates a registry with the given services.
func NewRegistry(opts Options) Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	closers := append([]func() error(nil), opts.Closers...)
	if opts.Index != nil {
		closers = append(closers, opts.Index.Close)
	}
	return &registry{
		catalog:   opts.Catalog,
		embedder:  opts.Embedder,
		index:     opts.Index,
		generator: opts.Generator,
		retriever: opts.Retriever,
		composer:  opts.Composer,
		ingest:    opts.Ingest,
		qa:        opts.QA,
		logger:    logger,
		closers:   closers,
	}
}

func (r *registry) Catalog() catalog.Source { return r.catalog }
func (r *registry) Embedder() embeddings.Embedder { return r.embedder }
func (r *registry) Index() vectorstore.Index { return r.index }
func (r *registry) Generator() generation.Generator { return r.generator }
func (r *registry) Retriever() *retrieval.Retriever { return r.retriever }
func (r *registry) Composer() *answer.Composer { return r.composer }
func (r *registry) Ingest() *ingest.Pipeline { return r.ingest }
func (r *registry) QA() *qa.Service { return r.qa }
func (r *registry) Logger() *zap.Logger { return r.logger }

func (r *registry) Close() error {
	closers := r.closers
	r.closers = nil
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Registry = (*registry)(nil)

package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/productqa/internal/answer"
	"github.com/fyrsmithlabs/productqa/internal/catalog"
	"github.com/fyrsmithlabs/productqa/internal/config"
	"github.com/fyrsmithlabs/productqa/internal/embeddings"
	"github.com/fyrsmithlabs/productqa/internal/generation"
	"github.com/fyrsmithlabs/productqa/internal/ingest"
	"github.com/fyrsmithlabs/productqa/internal/qa"
	"github.com/fyrsmithlabs/productqa/internal/retrieval"
	"github.com/fyrsmithlabs/productqa/internal/vectorstore"
)

// Build constructs every service from cfg. On error, anything already
// opened is closed before returning.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var closers []func() error
	fail := func(err error) (Registry, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	source, err := catalog.OpenSQLite(cfg.Catalog.Path, cfg.Catalog.Table, logger.Named("catalog"))
	if err != nil {
		return fail(fmt.Errorf("opening catalog: %w", err))
	}
	closers = append(closers, source.Close)

	provider, err := embeddings.NewProvider(ctx, EmbeddingConfig(cfg), logger.Named("embeddings"))
	if err != nil {
		return fail(fmt.Errorf("creating embedding provider: %w", err))
	}
	closers = append(closers, provider.Close)

	vcfg := IndexConfig(cfg)
	if vcfg.Dimension == 0 {
		vcfg.Dimension = provider.Dimension()
	}
	index, err := vectorstore.NewIndex(ctx, vcfg, logger.Named("vectorstore"))
	if err != nil {
		return fail(fmt.Errorf("opening vector index: %w", err))
	}
	closers = append(closers, index.Close)

	generator, err := generation.New(ctx, GenerationConfig(cfg), logger.Named("generation"))
	if err != nil {
		return fail(fmt.Errorf("creating generator: %w", err))
	}

	retriever, err := retrieval.New(provider, index, retrieval.Config{
		TopKFetch: cfg.Retrieval.TopKFetch,
		TopKUsed:  cfg.Retrieval.TopKUsed,
	}, logger.Named("retrieval"))
	if err != nil {
		return fail(fmt.Errorf("creating retriever: %w", err))
	}

	composer := answer.NewComposer(generator, answer.Config{MaxWords: cfg.Answer.MaxWords}, logger.Named("answer"))
	pipeline := ingest.New(source, provider, index, ingest.Config{
		Concurrency:     cfg.Ingest.Concurrency,
		DocumentTimeout: cfg.Ingest.DocumentTimeout,
	}, logger.Named("ingest"))

	// Index is closed by the registry itself.
	closers = closers[:len(closers)-1]
	return NewRegistry(Options{
		Catalog:   source,
		Embedder:  provider,
		Index:     index,
		Generator: generator,
		Retriever: retriever,
		Composer:  composer,
		Ingest:    pipeline,
		QA:        qa.NewService(retriever, composer, cfg.Server.MaxConcurrentRequests, logger.Named("qa")),
		Logger:    logger,
		Closers:   closers,
	}), nil
}

// EmbeddingConfig maps the application config onto the provider config.
func EmbeddingConfig(cfg *config.Config) embeddings.ProviderConfig {
	e := cfg.Embeddings
	return embeddings.ProviderConfig{
		Provider:   e.Provider,
		Model:      e.Model,
		BaseURL:    e.BaseURL,
		APIKey:     e.APIKey.Value(),
		Dimension:  e.Dimension,
		CacheDir:   e.CacheDir,
		Timeout:    e.Timeout,
		MaxRetries: e.MaxRetries,
		RateLimit:  e.RateLimit,
	}
}

// IndexConfig maps the application config onto the vector index config.
func IndexConfig(cfg *config.Config) vectorstore.Config {
	v := cfg.VectorStore
	return vectorstore.Config{
		Provider:   v.Provider,
		Collection: v.Collection,
		Dimension:  cfg.Embeddings.Dimension,
		Timeout:    v.Timeout,
		Chromem: vectorstore.ChromemConfig{
			Path:     v.Path,
			Compress: v.Compress,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:   v.QdrantHost,
			Port:   v.QdrantPort,
			APIKey: v.QdrantKey.Value(),
			UseTLS: v.QdrantTLS,
		},
	}
}

// GenerationConfig maps the application config onto the generator config.
func GenerationConfig(cfg *config.Config) generation.Config {
	g := cfg.Generation
	return generation.Config{
		Provider:    g.Provider,
		Model:       g.Model,
		BaseURL:     g.BaseURL,
		APIKey:      g.APIKey.Value(),
		Temperature: g.Temperature,
		Timeout:     g.Timeout,
		MaxRetries:  g.MaxRetries,
		RateLimit:   g.RateLimit,
	}
}

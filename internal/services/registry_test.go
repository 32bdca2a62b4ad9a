package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/productqa/internal/config"
	"github.com/fyrsmithlabs/productqa/internal/embeddings"
	"github.com/fyrsmithlabs/productqa/internal/ingest"
	"github.com/fyrsmithlabs/productqa/internal/vectorstore"
)

type closingIndex struct {
	vectorstore.Index
	closed int
	err    error
}

func (c *closingIndex) Close() error {
	c.closed++
	return c.err
}

func TestRegistryAccessors(t *testing.T) {
	reg := NewRegistry(Options{})

	assert.Nil(t, reg.Catalog())
	assert.Nil(t, reg.Embedder())
	assert.Nil(t, reg.Index())
	assert.Nil(t, reg.Generator())
	assert.Nil(t, reg.Retriever())
	assert.Nil(t, reg.Composer())
	assert.Nil(t, reg.Ingest())
	assert.Nil(t, reg.QA())
	assert.NotNil(t, reg.Logger())
	assert.NoError(t, reg.Close())
}

func TestRegistry_CloseJoinsErrors(t *testing.T) {
	idx := &closingIndex{err: errors.New("index busy")}
	calls := 0
	reg := NewRegistry(Options{
		Index: idx,
		Closers: []func() error{
			func() error { calls++; return errors.New("catalog locked") },
		},
	})

	err := reg.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index busy")
	assert.Contains(t, err.Error(), "catalog locked")

	assert.NoError(t, reg.Close())
	assert.Equal(t, 1, idx.closed)
	assert.Equal(t, 1, calls)
}

func testConfig(t *testing.T) *config.Config {
	t.Setenv("GOOGLE_API_KEY", "")
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Catalog.Path = filepath.Join(dir, "functional_products.db")
	cfg.VectorStore.Path = filepath.Join(dir, "chroma_db")
	return cfg
}

func TestBuild(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embeddings.APIKey = "test-key"
	cfg.Generation.APIKey = "test-key"

	reg, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	assert.NotNil(t, reg.Catalog())
	assert.NotNil(t, reg.Index())
	assert.NotNil(t, reg.Generator())
	assert.NotNil(t, reg.Retriever())
	assert.NotNil(t, reg.Composer())
	assert.NotNil(t, reg.QA())
	require.NotNil(t, reg.Ingest())
	assert.Equal(t, ingest.StateNotStarted, reg.Ingest().Status().State)
	assert.False(t, reg.Ingest().Ready())

	n, err := reg.Index().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuild_MissingAPIKey(t *testing.T) {
	cfg := testConfig(t)

	reg, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, reg)
	assert.ErrorIs(t, err, embeddings.ErrInvalidConfig)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.TopKUsed = 5

	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_k_used")
}

func TestConfigMapping(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embeddings.APIKey = "embed-key"
	cfg.VectorStore.Provider = "qdrant"
	cfg.VectorStore.QdrantKey = "qdrant-key"

	e := EmbeddingConfig(cfg)
	assert.Equal(t, "gemini", e.Provider)
	assert.Equal(t, "text-embedding-004", e.Model)
	assert.Equal(t, "embed-key", e.APIKey)

	v := IndexConfig(cfg)
	assert.Equal(t, "qdrant", v.Provider)
	assert.Equal(t, "functional_products", v.Collection)
	assert.Equal(t, "localhost", v.Qdrant.Host)
	assert.Equal(t, 6334, v.Qdrant.Port)
	assert.Equal(t, "qdrant-key", v.Qdrant.APIKey)

	g := GenerationConfig(cfg)
	assert.Equal(t, "gemini-2.0-flash", g.Model)
	assert.InDelta(t, 0.2, g.Temperature, 1e-9)
}

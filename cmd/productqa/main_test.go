package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/productqa/internal/catalog"
	"github.com/fyrsmithlabs/productqa/internal/config"
	"github.com/fyrsmithlabs/productqa/internal/ingest"
	"github.com/fyrsmithlabs/productqa/internal/services"
	"github.com/fyrsmithlabs/productqa/internal/vectorstore"
)

// lengthEmbedder maps text to a two-dimensional vector derived from its length.
type lengthEmbedder struct{}

func (lengthEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t))}
	}
	return out, nil
}

func (e lengthEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, _ := e.EmbedDocuments(ctx, []string{text})
	return v[0], nil
}

type unavailableSource struct{}

func (unavailableSource) Records(context.Context) ([]catalog.ProductRecord, error) {
	return nil, catalog.ErrSourceUnavailable
}

func testRegistry(t *testing.T, source catalog.Source) services.Registry {
	t.Helper()
	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{Path: filepath.Join(t.TempDir(), "chroma_db")}, nil)
	require.NoError(t, err)
	pipeline := ingest.New(source, lengthEmbedder{}, idx, ingest.Config{}, nil)
	reg := services.NewRegistry(services.Options{Catalog: source, Index: idx, Ingest: pipeline})
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestRunIngest(t *testing.T) {
	source := catalog.StaticSource{
		{ProductName: "OmegaGel", Manufacturer: "NutriCo", InStock: "1"},
		{ProductName: "VitaBoost", Manufacturer: "HealthCorp", InStock: "0"},
	}
	reg := testRegistry(t, source)

	var out bytes.Buffer
	require.NoError(t, runIngest(context.Background(), reg, &out))

	var report ingest.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, ingest.StateCompleted, report.State)
	assert.Equal(t, 2, report.Indexed)

	n, err := reg.Index().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunIngest_SourceUnavailable(t *testing.T) {
	reg := testRegistry(t, unavailableSource{})

	var out bytes.Buffer
	err := runIngest(context.Background(), reg, &out)
	require.ErrorIs(t, err, catalog.ErrSourceUnavailable)

	var report ingest.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, ingest.StateFailed, report.State)
}

func TestStartIngest(t *testing.T) {
	reg := testRegistry(t, catalog.StaticSource{{ProductName: "OmegaGel", InStock: "1"}})

	select {
	case err := <-startIngest(context.Background(), reg):
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ingestion did not finish")
	}
	assert.True(t, reg.Ingest().Ready())
}

func TestHTTPConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Ingest.SkipOnStart = true

	hc := httpConfig(cfg)
	assert.Equal(t, "127.0.0.1", hc.Host)
	assert.Equal(t, 5001, hc.Port)
	assert.Equal(t, "64K", hc.BodyLimit)
	assert.Equal(t, version, hc.Version)
	assert.True(t, hc.SkipIngest)
}

func TestRun_RejectsConfigOutsideAllowedDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := run(context.Background(), "serve", options{configPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)
	assert.Contains(t, out.String(), "productqa by Fyrsmith Labs")
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestServeUntilIngestFails_StopsOnFatalIngestion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := testRegistry(t, unavailableSource{})

	stopped := make(chan struct{})
	serve := func() error {
		<-ctx.Done()
		close(stopped)
		return nil
	}

	err := serveUntilIngestFails(ctx, cancel, serve, startIngest(ctx, reg))
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrSourceUnavailable)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("serving was not cancelled")
	}
}

func TestServeUntilIngestFails_KeepsServingAfterIngestion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := testRegistry(t, catalog.StaticSource{{ProductName: "OmegaGel", InStock: "1"}})

	release := make(chan struct{})
	serve := func() error {
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- serveUntilIngestFails(ctx, cancel, serve, startIngest(ctx, reg))
	}()

	require.Eventually(t, func() bool { return reg.Ingest().Ready() }, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, ctx.Err())

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	backendChromem = "chromem"

	// seqKey is the metadata key holding an entry's first-insertion sequence.
	seqKey = "seq"
)

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the persistence directory. A leading ~ expands to $HOME.
	Path       string
	Collection string
	Compress   bool
	Dimension  int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./chroma_db"
	}
	if c.Collection == "" {
		c.Collection = "functional_products"
	}
}

// ChromemIndex is an Index persisted by chromem-go as one file per entry.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger

	mu        sync.Mutex
	dimension int
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex opens or creates the collection under cfg.Path.
func NewChromemIndex(cfg ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("%w: dimension cannot be negative", ErrInvalidConfig)
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: expanding path: %v", ErrInvalidConfig, err)
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating directory %s: %v", ErrIndexFailure, path, err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem db: %v", ErrIndexFailure, err)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: opening collection %s: %v", ErrIndexFailure, cfg.Collection, err)
	}

	idx := &ChromemIndex{
		db:         db,
		collection: collection,
		config:     cfg,
		logger:     logger,
		dimension:  cfg.Dimension,
	}
	Entries.WithLabelValues(backendChromem).Set(float64(collection.Count()))

	logger.Info("chromem index opened",
		zap.String("path", path),
		zap.String("collection", cfg.Collection),
		zap.Int("entries", collection.Count()),
		zap.Int("dimension", cfg.Dimension))
	return idx, nil
}

// rejectEmbedding keeps chromem from embedding text itself; vectors always
// come from the configured provider.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index requires precomputed embeddings")
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Upsert stores the entry, keeping the original insertion sequence when id
// already exists.
func (i *ChromemIndex) Upsert(ctx context.Context, id string, vector []float32, text string) (err error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Upsert")
	span.SetAttributes(attribute.String("id", id), attribute.Int("dimension", len(vector)))
	start := time.Now()
	defer func() {
		observe(backendChromem, "upsert", start, err)
		endSpan(span, err)
	}()

	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEntry)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := checkVector(vector, i.dimension); err != nil {
		return err
	}

	// No delete path exists, so the entry count is the next free sequence.
	seq := int64(i.collection.Count())
	overwrite := false
	if existing, getErr := i.collection.GetByID(ctx, id); getErr == nil {
		overwrite = true
		if prev, parseErr := strconv.ParseInt(existing.Metadata[seqKey], 10, 64); parseErr == nil {
			seq = prev
		}
	}

	doc := chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: append([]float32(nil), vector...),
		Metadata:  map[string]string{seqKey: strconv.FormatInt(seq, 10)},
	}
	if err := i.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("%w: writing %q: %v", ErrIndexFailure, id, err)
	}
	if i.dimension == 0 {
		i.dimension = len(vector)
	}

	span.SetAttributes(attribute.Bool("overwrite", overwrite))
	Entries.WithLabelValues(backendChromem).Set(float64(i.collection.Count()))
	return nil
}

// Query ranks every entry and returns the best k.
func (i *ChromemIndex) Query(ctx context.Context, vector []float32, k int) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Query")
	span.SetAttributes(attribute.Int("k", k))
	start := time.Now()
	defer func() {
		observe(backendChromem, "query", start, err)
		endSpan(span, err)
	}()

	if k, err = checkK(k); err != nil {
		return nil, err
	}
	i.mu.Lock()
	dim := i.dimension
	i.mu.Unlock()
	if err := checkVector(vector, dim); err != nil {
		return nil, err
	}

	count := i.collection.Count()
	if count == 0 {
		return []Result{}, nil
	}

	// Fetch everything so equal scores can be ordered by sequence before
	// truncating to k.
	matches, err := i.collection.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrIndexFailure, err)
	}

	results = make([]Result, 0, len(matches))
	for _, m := range matches {
		seq, _ := strconv.ParseInt(m.Metadata[seqKey], 10, 64)
		results = append(results, Result{ID: m.ID, Text: m.Content, Score: m.Similarity, seq: seq})
	}
	results = rank(results, k)

	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// Count returns the number of stored entries.
func (i *ChromemIndex) Count(context.Context) (int, error) {
	return i.collection.Count(), nil
}

// Close is a no-op; every write is already persisted.
func (i *ChromemIndex) Close() error {
	return nil
}

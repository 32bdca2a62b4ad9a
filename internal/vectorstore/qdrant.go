package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const backendQdrant = "qdrant"

// pointNamespace derives stable point ids from document ids.
var pointNamespace = uuid.MustParse("6f1c2b8e-5d4a-4c3b-9a2e-7b8d9c0e1f2a")

var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
	// Timeout bounds each gRPC call.
	Timeout    time.Duration
	MaxRetries int
	// MaxMessageSize is the gRPC message limit in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "functional_products"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if !collectionNamePattern.MatchString(c.Collection) {
		return fmt.Errorf("%w: collection name must match %s, got %q", ErrInvalidConfig, collectionNamePattern, c.Collection)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("%w: dimension cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// qdrantClient is the subset of *qdrant.Client the index calls.
type qdrantClient interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Get(ctx context.Context, req *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Close() error
}

// QdrantIndex is an Index stored in a Qdrant collection.
type QdrantIndex struct {
	client qdrantClient
	config QdrantConfig
	logger *zap.Logger

	mu        sync.Mutex
	ready     bool
	dimension int
	nextSeq   int64
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant and health-checks the server. The
// collection is created on first write when missing.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.UseTLS && logger != nil {
		logger.Warn("qdrant gRPC connection is plaintext", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", ErrIndexFailure, err)
	}

	idx, err := newQdrantIndex(ctx, client, cfg, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func newQdrantIndex(ctx context.Context, client qdrantClient, cfg QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := &QdrantIndex{
		client:    client,
		config:    cfg,
		logger:    logger,
		dimension: cfg.Dimension,
	}

	ctx, span := tracer.Start(ctx, "QdrantIndex.Open")
	var err error
	defer func() { endSpan(span, err) }()

	if err = idx.do(ctx, "health", func(ctx context.Context) error {
		_, herr := client.HealthCheck(ctx)
		return herr
	}); err != nil {
		return nil, err
	}

	var exists bool
	if err = idx.do(ctx, "collection_exists", func(ctx context.Context) error {
		var cerr error
		exists, cerr = client.CollectionExists(ctx, cfg.Collection)
		return cerr
	}); err != nil {
		return nil, err
	}
	if exists {
		idx.ready = true
		var n int
		if n, err = idx.count(ctx); err != nil {
			return nil, err
		}
		idx.nextSeq = int64(n)
		Entries.WithLabelValues(backendQdrant).Set(float64(n))
	}

	logger.Info("qdrant index opened",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
		zap.Bool("exists", exists))
	return idx, nil
}

// PointID returns the Qdrant point id for a document id.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// do runs fn with a per-attempt timeout, retrying transient failures, and
// wraps the final error as ErrIndexFailure.
func (i *QdrantIndex) do(ctx context.Context, op string, fn func(context.Context) error) error {
	operation := func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, i.config.Timeout)
		defer cancel()
		err := fn(attemptCtx)
		if err != nil && !IsTransientError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(i.config.MaxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			i.logger.Warn("qdrant call failed, retrying",
				zap.String("op", op), zap.Duration("backoff", next), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s: %v", ErrIndexFailure, op, err)
	}
	return nil
}

func (i *QdrantIndex) ensureCollection(ctx context.Context, dimension int) error {
	if i.ready {
		return nil
	}
	err := i.do(ctx, "create_collection", func(ctx context.Context) error {
		return i.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: i.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		return err
	}
	i.ready = true
	i.logger.Info("qdrant collection created",
		zap.String("collection", i.config.Collection), zap.Int("dimension", dimension))
	return nil
}

// Upsert stores the entry under a UUIDv5 point id, keeping the original
// insertion sequence when the point already exists.
func (i *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, text string) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Upsert")
	span.SetAttributes(attribute.String("id", id), attribute.Int("dimension", len(vector)))
	start := time.Now()
	defer func() {
		observe(backendQdrant, "upsert", start, err)
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
	if err := i.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	pointID := qdrant.NewIDUUID(PointID(id))
	seq := i.nextSeq
	var existing []*qdrant.RetrievedPoint
	if err := i.do(ctx, "get", func(ctx context.Context) error {
		var gerr error
		existing, gerr = i.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: i.config.Collection,
			Ids:            []*qdrant.PointId{pointID},
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return gerr
	}); err != nil {
		return err
	}
	overwrite := len(existing) > 0
	if overwrite {
		seq = existing[0].GetPayload()[seqKey].GetIntegerValue()
	}

	if err := i.do(ctx, "upsert", func(ctx context.Context) error {
		_, uerr := i.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: i.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points: []*qdrant.PointStruct{{
				Id:      pointID,
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					"id":   id,
					"text": text,
					seqKey: seq,
				}),
			}},
		})
		return uerr
	}); err != nil {
		return err
	}

	if !overwrite {
		i.nextSeq++
		Entries.WithLabelValues(backendQdrant).Inc()
	}
	if i.dimension == 0 {
		i.dimension = len(vector)
	}
	span.SetAttributes(attribute.Bool("overwrite", overwrite))
	return nil
}

// Query returns the best k points. The fetch window grows while the k-th
// score ties with the last fetched one, so ties are ordered by sequence
// across the whole collection.
func (i *QdrantIndex) Query(ctx context.Context, vector []float32, k int) (results []Result, err error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Query")
	span.SetAttributes(attribute.Int("k", k))
	start := time.Now()
	defer func() {
		observe(backendQdrant, "query", start, err)
		endSpan(span, err)
	}()

	if k, err = checkK(k); err != nil {
		return nil, err
	}
	i.mu.Lock()
	ready, dim := i.ready, i.dimension
	i.mu.Unlock()
	if err := checkVector(vector, dim); err != nil {
		return nil, err
	}
	if !ready {
		return []Result{}, nil
	}

	limit := k + 8
	for {
		var points []*qdrant.ScoredPoint
		if err := i.do(ctx, "query", func(ctx context.Context) error {
			var qerr error
			points, qerr = i.client.Query(ctx, &qdrant.QueryPoints{
				CollectionName: i.config.Collection,
				Query:          qdrant.NewQuery(vector...),
				Limit:          qdrant.PtrOf(uint64(limit)),
				WithPayload:    qdrant.NewWithPayload(true),
			})
			return qerr
		}); err != nil {
			return nil, err
		}

		if len(points) == limit && limit < maxK && len(points) > k &&
			points[k-1].GetScore() == points[len(points)-1].GetScore() {
			limit *= 2
			continue
		}

		results = make([]Result, 0, len(points))
		for _, p := range points {
			payload := p.GetPayload()
			results = append(results, Result{
				ID:    payload["id"].GetStringValue(),
				Text:  payload["text"].GetStringValue(),
				Score: p.GetScore(),
				seq:   payload[seqKey].GetIntegerValue(),
			})
		}
		results = rank(results, k)
		span.SetAttributes(attribute.Int("results", len(results)))
		return results, nil
	}
}

// Count returns the exact number of points.
func (i *QdrantIndex) Count(ctx context.Context) (int, error) {
	i.mu.Lock()
	ready := i.ready
	i.mu.Unlock()
	if !ready {
		return 0, nil
	}
	return i.count(ctx)
}

func (i *QdrantIndex) count(ctx context.Context) (int, error) {
	var n uint64
	err := i.do(ctx, "count", func(ctx context.Context) error {
		var cerr error
		n, cerr = i.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: i.config.Collection,
			Exact:          qdrant.PtrOf(true),
		})
		return cerr
	})
	return int(n), err
}

// Close closes the gRPC connection.
func (i *QdrantIndex) Close() error {
	if i.client == nil {
		return nil
	}
	return i.client.Close()
}

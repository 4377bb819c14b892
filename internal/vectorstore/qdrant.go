package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation. No-op unless the host process
// installs a tracer provider.
var tracer = otel.Tracer("ait.vectorstore.qdrant")

// sourceIDNamespace seeds deterministic point UUIDs. A fixed namespace
// makes uuid.NewSHA1(sourceIDNamespace, source_id) stable across runs, so
// upserting the same source id always replaces the same point.
var sourceIDNamespace = uuid.MustParse("8f2a1f50-91c4-4dc1-9ccd-36f5c0f5a2bd")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default "localhost".
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port.
	Port int `koanf:"port"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// MaxRetries bounds retry attempts for transient failures. Default 3.
	MaxRetries int `koanf:"max_retries"`

	// RetryBackoff is the initial backoff, doubled per retry. Default 1s.
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// MaxMessageSize is the maximum gRPC message size in bytes. Default 50MB.
	MaxMessageSize int `koanf:"max_message_size"`

	// CircuitBreakerThreshold is the failure count that opens the circuit.
	// Default 5.
	CircuitBreakerThreshold int `koanf:"circuit_breaker_threshold"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// IsTransientError reports whether a gRPC error should be retried.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store over Qdrant's native gRPC client.
//
// gRPC bypasses Qdrant's HTTP layer and its payload size limits, which
// matters for large upsert batches during full re-index runs.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig

	// collections caches known-existing collection names.
	collections sync.Map

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantStore creates a QdrantStore and verifies connectivity.
func NewQdrantStore(config QdrantConfig) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.healthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return store, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries an operation with exponential backoff for
// transient failures, guarded by the circuit breaker.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds.
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// CollectionExists checks if the tenant's collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, aitID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.CollectionExists")
	defer span.End()
	span.SetAttributes(attribute.String("collection", aitID))

	if err := ValidateCollectionName(aitID); err != nil {
		return false, err
	}
	if _, ok := s.collections.Load(aitID); ok {
		return true, nil
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, aitID)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("checking collection %s: %w", aitID, err)
	}
	if exists {
		s.collections.Store(aitID, true)
	}
	span.SetStatus(codes.Ok, "success")
	return exists, nil
}

// EnsureCollection creates the tenant's collection if absent.
func (s *QdrantStore) EnsureCollection(ctx context.Context, aitID string, vectorSize int) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", aitID),
		attribute.Int("vector_size", vectorSize),
	)

	exists, err := s.CollectionExists(ctx, aitID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: aitID,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", aitID, err)
	}

	s.collections.Store(aitID, true)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteCollection drops the tenant's collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context, aitID string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", aitID))

	if err := ValidateCollectionName(aitID); err != nil {
		return err
	}
	err := s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, aitID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", aitID, err)
	}

	s.collections.Delete(aitID)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert writes points, replacing existing points with the same source id.
func (s *QdrantStore) Upsert(ctx context.Context, aitID string, points []Point) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", aitID),
		attribute.Int("point_count", len(points)),
	)

	if err := ValidateCollectionName(aitID); err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("%w: upsert requires at least one point", ErrEmptyPoints)
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		pointID := uuid.NewSHA1(sourceIDNamespace, []byte(p.SourceID))
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID.String()),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: chunkPayload(p.Chunk),
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: aitID,
			Points:         qdrantPoints,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", aitID, err)
	}
	observeOperation("qdrant", "upsert", len(points))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Delete removes points by source id using a payload filter.
func (s *QdrantStore) Delete(ctx context.Context, aitID string, sourceIDs []string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", aitID),
		attribute.Int("id_count", len(sourceIDs)),
	)

	if err := ValidateCollectionName(aitID); err != nil {
		return err
	}
	if len(sourceIDs) == 0 {
		return nil
	}

	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: aitID,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							{
								ConditionOneOf: &qdrant.Condition_Field{
									Field: &qdrant.FieldCondition{
										Key: "source_id",
										Match: &qdrant.Match{
											MatchValue: &qdrant.Match_Keywords{
												Keywords: &qdrant.RepeatedStrings{Strings: sourceIDs},
											},
										},
									},
								},
							},
						},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points from collection %s: %w", aitID, err)
	}
	observeOperation("qdrant", "delete", len(sourceIDs))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search returns up to limit nearest points restricted to a collection tag.
func (s *QdrantStore) Search(ctx context.Context, aitID string, vector []float32, tag string, limit int) ([]ScoredPoint, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", aitID),
		attribute.String("tag", tag),
		attribute.Int("limit", limit),
	)

	if err := ValidateCollectionName(aitID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	const maxLimit = 1000
	if limit > maxLimit {
		limit = maxLimit
	}

	var filter *qdrant.Filter
	if tag != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				{
					ConditionOneOf: &qdrant.Condition_Field{
						Field: &qdrant.FieldCondition{
							Key: "type",
							Match: &qdrant.Match{
								MatchValue: &qdrant.Match_Keyword{Keyword: tag},
							},
						},
					},
				},
			},
		}
	}

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: aitID,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", aitID, err)
	}

	scored := make([]ScoredPoint, 0, len(results))
	for _, point := range results {
		scored = append(scored, ScoredPoint{
			Score: point.Score,
			Chunk: chunkFromPayload(point.Payload),
		})
	}
	observeOperation("qdrant", "search", len(scored))
	span.SetAttributes(attribute.Int("results_count", len(scored)))
	span.SetStatus(codes.Ok, "success")
	return scored, nil
}

var _ Store = (*QdrantStore)(nil)

package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Galitein/Ai1st-ai/internal/document"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("ait.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Default
	// "~/.config/aitd/vectorstore".
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/aitd/vectorstore"
	}
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database. No external service is needed, which makes it the
// local-mode and test backend.
//
// Points always arrive with embeddings attached, so the chromem embedding
// func is never exercised; it exists only to satisfy the API.
type ChromemStore struct {
	db *chromem.DB
	mu sync.RWMutex
}

// NewChromemStore creates a persistent chromem store at the configured path.
func NewChromemStore(config ChromemConfig) (*ChromemStore, error) {
	config.ApplyDefaults()

	path := config.Path
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return &ChromemStore{db: db}, nil
}

// NewInMemoryChromemStore creates a non-persistent store for tests.
func NewInMemoryChromemStore() *ChromemStore {
	return &ChromemStore{db: chromem.NewDB()}
}

// noEmbeddingFunc satisfies chromem's API; vectors are always supplied by
// the caller, so reaching this is a programming error.
func noEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("embedding func should not be called: vectors are precomputed")
}

// CollectionExists reports whether the tenant's collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, aitID string) (bool, error) {
	if err := ValidateCollectionName(aitID); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.GetCollection(aitID, noEmbeddingFunc) != nil, nil
}

// EnsureCollection creates the tenant's collection if absent. The vector
// size is not enforced by chromem; it is recorded as collection metadata
// for observability.
func (s *ChromemStore) EnsureCollection(ctx context.Context, aitID string, vectorSize int) error {
	if err := ValidateCollectionName(aitID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.GetOrCreateCollection(aitID, map[string]string{
		"vector_size": strconv.Itoa(vectorSize),
	}, noEmbeddingFunc)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", aitID, err)
	}
	return nil
}

// DeleteCollection drops the tenant's collection.
func (s *ChromemStore) DeleteCollection(ctx context.Context, aitID string) error {
	if err := ValidateCollectionName(aitID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(aitID); err != nil {
		return fmt.Errorf("deleting collection %s: %w", aitID, err)
	}
	return nil
}

// Upsert writes points into the tenant's collection. The source id is the
// chromem document id, so re-adding a source id replaces it in place.
func (s *ChromemStore) Upsert(ctx context.Context, aitID string, points []Point) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
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

	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.db.GetOrCreateCollection(aitID, nil, noEmbeddingFunc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("opening collection %s: %w", aitID, err)
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.SourceID,
			Content:   p.Chunk.PageContent,
			Metadata:  chunkMetadataStrings(p.Chunk),
			Embedding: p.Vector,
		}
	}

	// Concurrency of 1: embeddings are precomputed, nothing to parallelize.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to collection %s: %w", aitID, err)
	}
	observeOperation("chromem", "upsert", len(points))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Delete removes points by source id. Missing ids are skipped.
func (s *ChromemStore) Delete(ctx context.Context, aitID string, sourceIDs []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
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

	s.mu.Lock()
	defer s.mu.Unlock()

	collection := s.db.GetCollection(aitID, noEmbeddingFunc)
	if collection == nil {
		return ErrCollectionNotFound
	}
	for _, id := range sourceIDs {
		if err := collection.Delete(ctx, nil, nil, id); err != nil {
			span.RecordError(err)
			return fmt.Errorf("deleting %s from collection %s: %w", id, aitID, err)
		}
	}
	observeOperation("chromem", "delete", len(sourceIDs))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search returns up to limit nearest points restricted to a collection tag.
func (s *ChromemStore) Search(ctx context.Context, aitID string, vector []float32, tag string, limit int) ([]ScoredPoint, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	collection := s.db.GetCollection(aitID, noEmbeddingFunc)
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	// chromem requires nResults <= document count.
	docCount := collection.Count()
	if docCount == 0 {
		return []ScoredPoint{}, nil
	}
	if limit > docCount {
		limit = docCount
	}

	var where map[string]string
	if tag != "" {
		where = map[string]string{payloadType: tag}
	}

	results, err := collection.QueryEmbedding(ctx, vector, limit, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", aitID, err)
	}

	scored := make([]ScoredPoint, len(results))
	for i, r := range results {
		scored[i] = ScoredPoint{
			Score: r.Similarity,
			Chunk: chunkFromMetadataStrings(r.ID, r.Content, r.Metadata),
		}
	}
	observeOperation("chromem", "search", len(scored))
	span.SetAttributes(attribute.Int("results_count", len(scored)))
	span.SetStatus(codes.Ok, "success")
	return scored, nil
}

// Close is a no-op: chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

// chunkMetadataStrings flattens chunk fields into chromem's string-valued
// metadata map.
func chunkMetadataStrings(c document.Chunk) map[string]string {
	meta := map[string]string{
		payloadSourceID:   c.SourceID,
		payloadAITID:      c.AITID,
		payloadType:       c.Type,
		payloadFileName:   c.FileName,
		payloadChunkIndex: strconv.Itoa(c.ChunkIndex),
	}
	if !c.ModifiedTime.IsZero() {
		meta[payloadModifiedTime] = c.ModifiedTime.Format(time.RFC3339)
	}
	return meta
}

// chunkFromMetadataStrings rebuilds a chunk from a chromem result.
func chunkFromMetadataStrings(id, content string, meta map[string]string) document.Chunk {
	c := document.Chunk{
		PageContent: content,
		SourceID:    id,
		AITID:       meta[payloadAITID],
		Type:        meta[payloadType],
		FileName:    meta[payloadFileName],
	}
	if idx, err := strconv.Atoi(meta[payloadChunkIndex]); err == nil {
		c.ChunkIndex = idx
	}
	if t, err := time.Parse(time.RFC3339, meta[payloadModifiedTime]); err == nil {
		c.ModifiedTime = t
	}
	return c
}

var _ Store = (*ChromemStore)(nil)

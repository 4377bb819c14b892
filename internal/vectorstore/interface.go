// Package vectorstore defines the interface for per-tenant vector storage
// and provides Qdrant (gRPC) and chromem-go (embedded) implementations.
//
// Each tenant (ait_id) owns one physical collection. Collection tags
// ("bib", "trello_log", ...) are payload filters within that collection so
// that all of a tenant's documents share one embedding space and one
// lifecycle: one collection to create or drop per tenant.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/Galitein/Ai1st-ai/internal/document"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a tenant collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPoints indicates empty or nil points.
	ErrEmptyPoints = errors.New("empty or nil points")

	// ErrConnectionFailed indicates backend connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates tenant collection names. AIT ids are
// UUIDs, so dashes are permitted alongside the usual identifier characters.
var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateCollectionName rejects names that could not have come from a
// provisioned tenant id: uppercase-only enforcement is not needed, but
// spaces, path separators and over-long names are refused.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-zA-Z0-9_-]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Point is one vector-store record: an embedded document chunk. Points are
// always replaced whole on upsert, never partially updated.
type Point struct {
	// SourceID is the stable identifier; it determines the backend point id
	// deterministically, so re-upserting a source id overwrites in place.
	SourceID string

	// Vector is the embedding, sized to the collection's dimension.
	Vector []float32

	// Chunk carries the payload stored alongside the vector.
	Chunk document.Chunk
}

// ScoredPoint is one similarity-search hit.
type ScoredPoint struct {
	Score float32
	Chunk document.Chunk
}

// Store is the per-tenant vector storage interface.
type Store interface {
	// CollectionExists reports whether the tenant's collection exists.
	CollectionExists(ctx context.Context, aitID string) (bool, error)

	// EnsureCollection creates the tenant's collection with the given
	// vector size and cosine distance if absent. Idempotent.
	EnsureCollection(ctx context.Context, aitID string, vectorSize int) error

	// DeleteCollection drops the tenant's collection and all its points.
	DeleteCollection(ctx context.Context, aitID string) error

	// Upsert writes points into the tenant's collection, replacing any
	// existing point with the same source id.
	Upsert(ctx context.Context, aitID string, points []Point) error

	// Delete removes points by source id. Missing ids are not an error.
	Delete(ctx context.Context, aitID string, sourceIDs []string) error

	// Search returns up to limit nearest points for the query vector,
	// restricted to the given collection tag, ordered by descending score.
	Search(ctx context.Context, aitID string, vector []float32, tag string, limit int) ([]ScoredPoint, error)

	// Close releases backend resources.
	Close() error
}

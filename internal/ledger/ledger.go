// Package ledger tracks which source identifiers are currently represented
// in the vector store. It is the record manager the incremental indexer
// diffs against: a durable mapping (namespace, source_id) -> (content hash,
// last update time), namespaced per tenant.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrLedger wraps record-manager read/write failures. An indexer that
// cannot read the ledger must abort rather than treat the diff as empty.
var ErrLedger = errors.New("ledger operation failed")

// Entry is the recorded state for one source id.
type Entry struct {
	// ContentHash is the hex SHA-256 of the chunk text at last write. A
	// changed hash at an unchanged id means the content must be re-embedded.
	ContentHash string

	// UpdatedAt is the time of the last write for this id.
	UpdatedAt time.Time
}

// Namespace returns the ledger namespace for a tenant.
func Namespace(aitID string) string {
	return "vectors/" + aitID
}

// RecordManager is the durable ledger contract.
//
// Reads must reflect all prior writes from the same process (read-your-
// writes within one indexing run). Concurrent cross-process indexing of
// the same namespace is not coordinated here; callers serialize per scope.
type RecordManager interface {
	// ListIDs returns all recorded entries in the namespace. A non-empty
	// prefix restricts the listing to source ids starting with it.
	ListIDs(ctx context.Context, namespace, prefix string) (map[string]Entry, error)

	// Upsert records a source id with its content hash and update time.
	Upsert(ctx context.Context, namespace, sourceID, contentHash string, at time.Time) error

	// Delete removes the given source ids from the namespace. Missing ids
	// are not an error.
	Delete(ctx context.Context, namespace string, sourceIDs []string) error

	// DeleteNamespace removes every entry in the namespace (tenant teardown).
	DeleteNamespace(ctx context.Context, namespace string) error

	// Close releases the underlying store.
	Close() error
}

// Package indexer implements change-aware synchronization of document
// chunks into the vector store.
//
// Each run reconciles one batch against the ledger under "scoped full"
// cleanup: only ledger entries within the batch's (tenant, collection tag)
// scope are considered, new ids are embedded and upserted, ids whose
// content hash is unchanged are skipped, ids with a changed hash are
// re-embedded in place, and scoped ids absent from the batch are deleted
// from both the vector store and the ledger.
//
// Consistency across the two stores is kept by ordering, not transactions:
// a ledger entry is written only after its vector point write succeeded,
// and removed only after its vector point delete succeeded. A crash
// between the two steps can leave an orphan vector point with no ledger
// entry; the next full re-index reconciles it.
package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Galitein/Ai1st-ai/internal/document"
	"github.com/Galitein/Ai1st-ai/internal/embeddings"
	"github.com/Galitein/Ai1st-ai/internal/ledger"
	"github.com/Galitein/Ai1st-ai/internal/vectorstore"
)

// Result reports what one indexing run did.
type Result struct {
	NumAdded   int `json:"num_added"`
	NumUpdated int `json:"num_updated"`
	NumSkipped int `json:"num_skipped"`
	NumDeleted int `json:"num_deleted"`
}

// Indexer synchronizes document batches into the vector store and ledger.
type Indexer struct {
	store    vectorstore.Store
	records  ledger.RecordManager
	embedder embeddings.Provider
	logger   *zap.Logger
	locks    *scopeLocks
	now      func() time.Time
}

// New creates an Indexer. All dependencies are required.
func New(store vectorstore.Store, records ledger.RecordManager, embedder embeddings.Provider, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		store:    store,
		records:  records,
		embedder: embedder,
		logger:   logger.Named("indexer"),
		locks:    newScopeLocks(),
		now:      time.Now,
	}
}

// Index reconciles the batch into the tenant's collection.
//
// An empty batch with a non-empty scoped ledger set is a pure deletion
// pass: every scoped id is removed from both stores. Re-running with an
// identical batch is idempotent.
func (ix *Indexer) Index(ctx context.Context, batch document.Batch) (Result, error) {
	var res Result
	if batch.AITID == "" {
		return res, fmt.Errorf("batch missing ait id")
	}
	if batch.Tag == "" {
		return res, fmt.Errorf("batch missing collection tag")
	}

	// Concurrent runs for the same (tenant, tag) would race on the
	// read-diff-write sequence; serialize them in-process. Cross-process
	// serialization is the deployment's responsibility.
	scope := batch.AITID + "/" + batch.Tag
	unlock := ix.locks.lock(scope)
	defer unlock()

	start := ix.now()

	if err := ix.store.EnsureCollection(ctx, batch.AITID, ix.embedder.Dimension()); err != nil {
		return res, fmt.Errorf("ensuring collection for %s: %w", batch.AITID, err)
	}

	chunks := dedupeLastWins(batch.Chunks)
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return res, fmt.Errorf("invalid chunk: %w", err)
		}
		if c.AITID != batch.AITID || c.Type != batch.Tag {
			return res, fmt.Errorf("chunk %q outside batch scope %s/%s", c.SourceID, batch.AITID, batch.Tag)
		}
	}

	namespace := ledger.Namespace(batch.AITID)
	existing, err := ix.scopedLedgerSet(ctx, namespace, batch)
	if err != nil {
		return res, err
	}

	var (
		toWrite  []document.Chunk // new ids plus changed-hash ids
		updated  = map[string]bool{}
		batchIDs = map[string]bool{}
	)
	for _, c := range chunks {
		batchIDs[c.SourceID] = true
		entry, present := existing[c.SourceID]
		switch {
		case !present:
			toWrite = append(toWrite, c)
		case entry.ContentHash != document.ContentHash(c.PageContent):
			toWrite = append(toWrite, c)
			updated[c.SourceID] = true
		default:
			res.NumSkipped++
		}
	}

	var toDelete []string
	for id := range existing {
		if !batchIDs[id] {
			toDelete = append(toDelete, id)
		}
	}

	if err := ix.applyDeletes(ctx, batch.AITID, namespace, toDelete, &res); err != nil {
		return res, err
	}
	if err := ix.applyWrites(ctx, batch.AITID, namespace, toWrite, updated, &res); err != nil {
		return res, err
	}

	observeRun(batch.Tag, res, ix.now().Sub(start))
	ix.logger.Info("indexing run complete",
		zap.String("ait_id", batch.AITID),
		zap.String("tag", batch.Tag),
		zap.Int("added", res.NumAdded),
		zap.Int("updated", res.NumUpdated),
		zap.Int("skipped", res.NumSkipped),
		zap.Int("deleted", res.NumDeleted),
	)
	return res, nil
}

// scopedLedgerSet loads the ledger entries this batch is allowed to touch:
// ids under the tag's prefix, plus any natural (unprefixed) ids supplied
// with the batch. Entries of other collection tags stay invisible, which
// is what keeps a "trello_log" run from deleting "bib" documents.
func (ix *Indexer) scopedLedgerSet(ctx context.Context, namespace string, batch document.Batch) (map[string]ledger.Entry, error) {
	existing, err := ix.records.ListIDs(ctx, namespace, document.ScopePrefix(batch.Tag))
	if err != nil {
		return nil, fmt.Errorf("reading ledger scope %s: %w", batch.Tag, err)
	}

	if len(batch.NaturalIDs) > 0 {
		all, err := ix.records.ListIDs(ctx, namespace, "")
		if err != nil {
			return nil, fmt.Errorf("reading ledger namespace %s: %w", namespace, err)
		}
		for _, id := range batch.NaturalIDs {
			if entry, ok := all[id]; ok {
				existing[id] = entry
			}
		}
	}
	return existing, nil
}

// applyDeletes removes vector points first, then their ledger entries.
func (ix *Indexer) applyDeletes(ctx context.Context, aitID, namespace string, ids []string, res *Result) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ix.store.Delete(ctx, aitID, ids); err != nil {
		return fmt.Errorf("deleting %d points for %s: %w", len(ids), aitID, err)
	}
	if err := ix.records.Delete(ctx, namespace, ids); err != nil {
		return fmt.Errorf("deleting %d ledger entries in %s: %w", len(ids), namespace, err)
	}
	res.NumDeleted = len(ids)
	return nil
}

// applyWrites embeds the pending chunks in one provider call, upserts the
// points, and only then records them in the ledger.
func (ix *Indexer) applyWrites(ctx context.Context, aitID, namespace string, chunks []document.Chunk, updated map[string]bool, res *Result) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.PageContent
	}
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: %d chunks, %d vectors", embeddings.ErrDimensionMismatch, len(chunks), len(vectors))
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{SourceID: c.SourceID, Vector: vectors[i], Chunk: c}
	}
	if err := ix.store.Upsert(ctx, aitID, points); err != nil {
		return fmt.Errorf("upserting %d points for %s: %w", len(points), aitID, err)
	}

	// Ledger commits follow the successful vector write.
	at := ix.now().UTC()
	for _, c := range chunks {
		if err := ix.records.Upsert(ctx, namespace, c.SourceID, document.ContentHash(c.PageContent), at); err != nil {
			return fmt.Errorf("recording %s in ledger: %w", c.SourceID, err)
		}
		if updated[c.SourceID] {
			res.NumUpdated++
		} else {
			res.NumAdded++
		}
	}
	return nil
}

// DeleteFiles retracts every chunk of the named files: an indexing run
// with an empty batch scoped down to each file's source-id prefix.
func (ix *Indexer) DeleteFiles(ctx context.Context, aitID, tag string, fileNames []string) (Result, error) {
	var res Result
	namespace := ledger.Namespace(aitID)

	scope := aitID + "/" + tag
	unlock := ix.locks.lock(scope)
	defer unlock()

	for _, name := range fileNames {
		entries, err := ix.records.ListIDs(ctx, namespace, document.FilePrefix(tag, name))
		if err != nil {
			return res, fmt.Errorf("reading ledger for file %s: %w", name, err)
		}
		if len(entries) == 0 {
			ix.logger.Info("no index found for file",
				zap.String("ait_id", aitID),
				zap.String("file_name", name),
			)
			continue
		}
		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		if err := ix.store.Delete(ctx, aitID, ids); err != nil {
			return res, fmt.Errorf("deleting points for file %s: %w", name, err)
		}
		if err := ix.records.Delete(ctx, namespace, ids); err != nil {
			return res, fmt.Errorf("deleting ledger entries for file %s: %w", name, err)
		}
		res.NumDeleted += len(ids)
	}
	return res, nil
}

// DeleteTenant drops the tenant's collection and ledger namespace.
func (ix *Indexer) DeleteTenant(ctx context.Context, aitID string) error {
	exists, err := ix.store.CollectionExists(ctx, aitID)
	if err != nil {
		return fmt.Errorf("checking collection for %s: %w", aitID, err)
	}
	if exists {
		if err := ix.store.DeleteCollection(ctx, aitID); err != nil {
			return fmt.Errorf("dropping collection for %s: %w", aitID, err)
		}
	}
	if err := ix.records.DeleteNamespace(ctx, ledger.Namespace(aitID)); err != nil {
		return fmt.Errorf("dropping ledger namespace for %s: %w", aitID, err)
	}
	return nil
}

// dedupeLastWins collapses duplicate source ids within one batch, keeping
// the last occurrence so repeated producers do not trigger redundant
// embedding calls.
func dedupeLastWins(chunks []document.Chunk) []document.Chunk {
	last := make(map[string]int, len(chunks))
	for i, c := range chunks {
		last[c.SourceID] = i
	}
	out := make([]document.Chunk, 0, len(last))
	for i, c := range chunks {
		if last[c.SourceID] == i {
			out = append(out, c)
		}
	}
	return out
}

// Message renders the result the way callers report it.
func (r Result) Message() string {
	parts := []string{
		fmt.Sprintf("added=%d", r.NumAdded),
		fmt.Sprintf("updated=%d", r.NumUpdated),
		fmt.Sprintf("skipped=%d", r.NumSkipped),
		fmt.Sprintf("deleted=%d", r.NumDeleted),
	}
	return "index updated: " + strings.Join(parts, " ")
}

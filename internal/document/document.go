// Package document defines the chunked document model shared by loaders,
// the incremental indexer, and the retriever.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Collection tags partition one tenant's vector collection by document kind.
// Tags are payload filters at retrieval time, never physical collections.
const (
	TagBib          = "bib"
	TagLogDiary     = "log_diary"
	TagLogMSEEmail  = "log_mse_email"
	TagTrelloLog    = "trello_log"
	TagTrelloCard   = "trello_card"
	TagTrelloMember = "trello_member"
	TagTrelloUser   = "trello_user"
)

// Chunk is the atomic unit of indexing: one piece of one logical document,
// scoped to a tenant and a collection tag.
type Chunk struct {
	// PageContent is the chunk text, stripped of surrounding whitespace.
	PageContent string `json:"page_content"`

	// SourceID is the stable identifier for this chunk's logical slot.
	// Identical content position always yields the same SourceID; content
	// changes at the slot do not change it.
	SourceID string `json:"source_id"`

	// AITID is the owning tenant.
	AITID string `json:"ait_id"`

	// Type is the collection tag ("bib", "trello_log", ...).
	Type string `json:"type"`

	// FileName is the source file or entity name.
	FileName string `json:"file_name"`

	// ChunkIndex is the zero-based position within the parent document.
	ChunkIndex int `json:"chunk_index"`

	// ModifiedTime is the source-reported last-modified time. Informational
	// only; diffing is identity- and hash-based.
	ModifiedTime time.Time `json:"modified_time,omitempty"`
}

// SourceID builds the stable identifier for a chunk at position idx of the
// named file under the given collection tag. The result is deterministic:
// the same inputs always produce byte-identical output.
func SourceID(tag, name string, idx int) string {
	return fmt.Sprintf("%s_%s_%d", tag, name, idx)
}

// ScopePrefix returns the source-id prefix that bounds a collection tag's
// entries in the ledger. Scoped cleanup only touches ids under this prefix.
func ScopePrefix(tag string) string {
	return tag + "_"
}

// FilePrefix returns the source-id prefix covering every chunk of one file
// under a collection tag. Used for file-level deletion.
func FilePrefix(tag, name string) string {
	return fmt.Sprintf("%s_%s_", tag, name)
}

// ContentHash returns the hex SHA-256 of the chunk text. The ledger stores
// it alongside each source id so that changed content at an unchanged id is
// re-embedded instead of silently skipped.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Validate checks the fields every downstream component relies on.
func (c Chunk) Validate() error {
	if strings.TrimSpace(c.PageContent) == "" {
		return fmt.Errorf("chunk %q: empty page content", c.SourceID)
	}
	if c.SourceID == "" {
		return fmt.Errorf("chunk for %q: missing source id", c.FileName)
	}
	if c.AITID == "" {
		return fmt.Errorf("chunk %q: missing ait id", c.SourceID)
	}
	if c.Type == "" {
		return fmt.Errorf("chunk %q: missing collection tag", c.SourceID)
	}
	return nil
}

// Batch is one loader's output for a single indexing invocation, scoped to
// one (tenant, collection tag) pair.
type Batch struct {
	AITID  string
	Tag    string
	Chunks []Chunk

	// NaturalIDs lists unprefixed source ids in scope for this batch (Trello
	// entities carry their provider id instead of a {tag}_{name}_{idx} key).
	// Scoped cleanup reconciles prefix-matched ids plus this set.
	NaturalIDs []string
}

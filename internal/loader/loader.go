// Package loader turns external sources into chunk batches ready for
// indexing. Each destination (local files, URLs, Google Drive, Trello,
// email) has its own adapter behind a shared Loader interface.
//
// Adapters skip unusable items (missing file, failed download) with a log
// line and keep going; a run that attempted items but produced nothing
// returns ErrNoDocuments. Failures of the adapter itself, bad credentials
// or an unreachable service, are fatal to the call.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Galitein/Ai1st-ai/internal/chunker"
	"github.com/Galitein/Ai1st-ai/internal/document"
)

// ErrNoDocuments reports a load that attempted at least one item but
// produced no usable chunks.
var ErrNoDocuments = errors.New("no documents loaded")

// Destination selects which adapter serves a request.
type Destination string

const (
	DestinationLocal  Destination = "local"
	DestinationGoogle Destination = "google"
	DestinationURL    Destination = "url"
	DestinationTrello Destination = "trello"
	DestinationEmail  Destination = "email"
)

// Word-window sizes for file and URL content. Email bodies use the
// boundary-aware SmartChunker instead.
const (
	fileChunkTokens  = 200
	fileChunkOverlap = 20
)

// Request is one load invocation, scoped to a tenant and collection tag.
// The selector fields an adapter reads depend on its destination.
type Request struct {
	AITID string
	Tag   string

	// FileNames selects documents by name (local and google destinations).
	FileNames []string

	// URLs selects documents to fetch (url destination).
	URLs []string

	// Messages carries pre-fetched mail (email destination). Fetching and
	// OAuth live upstream.
	Messages []EmailMessage

	// Trello carries per-tenant API credentials (trello destination).
	Trello *TrelloAuth
}

// TrelloAuth is a tenant's Trello API key/token pair.
type TrelloAuth struct {
	Key   string
	Token string
}

// EmailMessage is one already-fetched mail message.
type EmailMessage struct {
	ID      string
	Subject string
	From    string
	To      string
	Date    time.Time
	Body    string
}

// Loader produces an indexable batch from a request.
type Loader interface {
	Load(ctx context.Context, req Request) (document.Batch, error)
}

// Registry maps destinations to their adapters.
type Registry map[Destination]Loader

// For returns the adapter for a destination.
func (r Registry) For(d Destination) (Loader, error) {
	l, ok := r[d]
	if !ok {
		return nil, fmt.Errorf("no loader registered for destination %q", d)
	}
	return l, nil
}

// fileChunks splits one document's text into word-window chunks carrying
// the standard source-id scheme.
func fileChunks(aitID, tag, name, text string, modified time.Time) []document.Chunk {
	parts := chunker.Chunk(text, fileChunkTokens, fileChunkOverlap)
	chunks := make([]document.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, document.Chunk{
			PageContent:  part,
			SourceID:     document.SourceID(tag, name, i),
			AITID:        aitID,
			Type:         tag,
			FileName:     name,
			ChunkIndex:   i,
			ModifiedTime: modified,
		})
	}
	return chunks
}

func validateRequest(req Request) error {
	if req.AITID == "" {
		return fmt.Errorf("request missing ait id")
	}
	if req.Tag == "" {
		return fmt.Errorf("request missing collection tag")
	}
	return nil
}

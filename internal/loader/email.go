package loader

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Galitein/Ai1st-ai/internal/chunker"
	"github.com/Galitein/Ai1st-ai/internal/document"
)

// EmailLoader chunks already-fetched mail messages with the boundary-aware
// splitter. Mailbox access and OAuth live upstream; this adapter only
// shapes messages into batches.
type EmailLoader struct {
	chunker *chunker.SmartChunker
	logger  *zap.Logger
}

// NewEmailLoader creates a loader with the default smart-chunking sizes.
func NewEmailLoader(logger *zap.Logger) *EmailLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailLoader{
		chunker: chunker.NewSmartChunker(),
		logger:  logger.Named("loader.email"),
	}
}

// Load chunks each message body. Source ids follow {tag}_{messageID}_{idx}
// so re-syncing a mailbox upserts in place. Messages with no id or an
// empty body are skipped.
func (l *EmailLoader) Load(ctx context.Context, req Request) (document.Batch, error) {
	batch := document.Batch{AITID: req.AITID, Tag: req.Tag}
	if err := validateRequest(req); err != nil {
		return batch, err
	}
	if len(req.Messages) == 0 {
		return batch, fmt.Errorf("email load requires messages")
	}

	for _, msg := range req.Messages {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		if msg.ID == "" {
			l.logger.Warn("skipping message without id",
				zap.String("ait_id", req.AITID),
				zap.String("subject", msg.Subject),
			)
			continue
		}

		parts := l.chunker.Split(renderMessage(msg))
		if len(parts) == 0 {
			l.logger.Warn("skipping message with empty body",
				zap.String("ait_id", req.AITID),
				zap.String("message_id", msg.ID),
			)
			continue
		}
		for i, part := range parts {
			batch.Chunks = append(batch.Chunks, document.Chunk{
				PageContent:  part,
				SourceID:     document.SourceID(req.Tag, msg.ID, i),
				AITID:        req.AITID,
				Type:         req.Tag,
				FileName:     msg.ID,
				ChunkIndex:   i,
				ModifiedTime: msg.Date,
			})
		}
	}

	if len(batch.Chunks) == 0 {
		return batch, ErrNoDocuments
	}
	return batch, nil
}

// renderMessage prefixes the body with header lines so retrieval can match
// on sender and subject, not just body text.
func renderMessage(msg EmailMessage) string {
	var b strings.Builder
	if msg.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	}
	if msg.From != "" {
		fmt.Fprintf(&b, "From: %s\n", msg.From)
	}
	if msg.To != "" {
		fmt.Fprintf(&b, "To: %s\n", msg.To)
	}
	if !msg.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", msg.Date.Format("2006-01-02"))
	}
	b.WriteString("\n")
	b.WriteString(msg.Body)
	return b.String()
}

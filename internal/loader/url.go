package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/Galitein/Ai1st-ai/internal/document"
)

// maxURLBodyBytes caps how much of a fetched document is read. Larger
// bodies are truncated, not rejected.
const maxURLBodyBytes = 10 << 20

// URLLoader fetches documents over HTTP(S) and chunks their bodies as
// plain text.
type URLLoader struct {
	client *http.Client
	logger *zap.Logger
}

// NewURLLoader creates a loader with the given client. A nil client gets a
// 30 second timeout default.
func NewURLLoader(client *http.Client, logger *zap.Logger) *URLLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URLLoader{client: client, logger: logger.Named("loader.url")}
}

// Load fetches each URL and chunks its body. The document name is the last
// path element of the URL. Fetch failures and non-200 responses skip the
// item.
func (l *URLLoader) Load(ctx context.Context, req Request) (document.Batch, error) {
	batch := document.Batch{AITID: req.AITID, Tag: req.Tag}
	if err := validateRequest(req); err != nil {
		return batch, err
	}
	if len(req.URLs) == 0 {
		return batch, fmt.Errorf("url load requires at least one url")
	}

	for _, raw := range req.URLs {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		name, text, modified, err := l.fetch(ctx, raw)
		if err != nil {
			l.logger.Warn("skipping url",
				zap.String("ait_id", req.AITID),
				zap.String("url", raw),
				zap.Error(err),
			)
			continue
		}
		chunks := fileChunks(req.AITID, req.Tag, name, text, modified)
		if len(chunks) == 0 {
			l.logger.Warn("skipping empty document",
				zap.String("ait_id", req.AITID),
				zap.String("url", raw),
			)
			continue
		}
		batch.Chunks = append(batch.Chunks, chunks...)
	}

	if len(batch.Chunks) == 0 {
		return batch, ErrNoDocuments
	}
	return batch, nil
}

func (l *URLLoader) fetch(ctx context.Context, raw string) (name, text string, modified time.Time, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("parsing url: %w", err)
	}
	name = path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = u.Host
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", "", time.Time{}, err
	}
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", time.Time{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLBodyBytes))
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("reading body: %w", err)
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, perr := http.ParseTime(lm); perr == nil {
			modified = t
		}
	}
	return name, string(body), modified, nil
}

package loader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/Galitein/Ai1st-ai/internal/document"
)

// Google Workspace files have no binary content; they are exported as
// plain text instead of downloaded.
const (
	mimeGoogleDoc          = "application/vnd.google-apps.document"
	mimeGoogleSheet        = "application/vnd.google-apps.spreadsheet"
	mimeGooglePresentation = "application/vnd.google-apps.presentation"
)

// DriveLoader resolves file names inside a Drive folder, downloads or
// exports their content, and chunks it. Token acquisition lives with the
// caller; the loader only consumes an oauth2 token source.
type DriveLoader struct {
	svc      *drive.Service
	folderID string
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewDriveLoader builds a Drive client from the token source. folderID
// bounds all name lookups. The limiter defaults to 10 requests/second,
// which stays under Drive's per-user quota.
func NewDriveLoader(ctx context.Context, ts oauth2.TokenSource, folderID string, logger *zap.Logger) (*DriveLoader, error) {
	if folderID == "" {
		return nil, fmt.Errorf("drive loader requires a folder id")
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriveLoader{
		svc:      svc,
		folderID: folderID,
		limiter:  rate.NewLimiter(rate.Limit(10), 10),
		logger:   logger.Named("loader.drive"),
	}, nil
}

// Load looks up each file name in the folder and chunks its content.
// Names not found in the folder are skipped.
func (l *DriveLoader) Load(ctx context.Context, req Request) (document.Batch, error) {
	batch := document.Batch{AITID: req.AITID, Tag: req.Tag}
	if err := validateRequest(req); err != nil {
		return batch, err
	}
	if len(req.FileNames) == 0 {
		return batch, fmt.Errorf("drive load requires file names")
	}

	for _, name := range req.FileNames {
		file, err := l.lookup(ctx, name)
		if err != nil {
			l.logger.Warn("skipping drive file",
				zap.String("ait_id", req.AITID),
				zap.String("file_name", name),
				zap.Error(err),
			)
			continue
		}
		text, err := l.content(ctx, file)
		if err != nil {
			l.logger.Warn("skipping drive file content",
				zap.String("ait_id", req.AITID),
				zap.String("file_name", name),
				zap.Error(err),
			)
			continue
		}

		var modified time.Time
		if t, perr := time.Parse(time.RFC3339, file.ModifiedTime); perr == nil {
			modified = t
		}
		chunks := fileChunks(req.AITID, req.Tag, name, text, modified)
		if len(chunks) == 0 {
			continue
		}
		batch.Chunks = append(batch.Chunks, chunks...)
	}

	if len(batch.Chunks) == 0 {
		return batch, ErrNoDocuments
	}
	return batch, nil
}

// lookup finds one file by exact name inside the configured folder.
func (l *DriveLoader) lookup(ctx context.Context, name string) (*drive.File, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		strings.ReplaceAll(name, "'", `\'`), l.folderID)
	list, err := l.svc.Files.List().
		Q(query).
		Fields("files(id, name, mimeType, modifiedTime)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	if len(list.Files) == 0 {
		return nil, fmt.Errorf("file %q not found in folder", name)
	}
	return list.Files[0], nil
}

// content downloads a regular file, or exports a Google Workspace file as
// plain text.
func (l *DriveLoader) content(ctx context.Context, file *drive.File) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var body io.ReadCloser
	switch file.MimeType {
	case mimeGoogleDoc, mimeGoogleSheet, mimeGooglePresentation:
		resp, err := l.svc.Files.Export(file.Id, "text/plain").Context(ctx).Download()
		if err != nil {
			return "", fmt.Errorf("exporting %s: %w", file.Id, err)
		}
		body = resp.Body
	default:
		resp, err := l.svc.Files.Get(file.Id).Context(ctx).Download()
		if err != nil {
			return "", fmt.Errorf("downloading %s: %w", file.Id, err)
		}
		body = resp.Body
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxURLBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file.Id, err)
	}
	return string(data), nil
}

package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Galitein/Ai1st-ai/internal/document"
)

// LocalLoader reads documents from a per-tenant directory on disk,
// baseDir/{ait_id}/{file_name}.
type LocalLoader struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalLoader creates a loader rooted at baseDir.
func NewLocalLoader(baseDir string, logger *zap.Logger) *LocalLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalLoader{baseDir: baseDir, logger: logger.Named("loader.local")}
}

// Load reads and chunks the named files. Unreadable or empty files are
// skipped with a warning.
func (l *LocalLoader) Load(ctx context.Context, req Request) (document.Batch, error) {
	batch := document.Batch{AITID: req.AITID, Tag: req.Tag}
	if err := validateRequest(req); err != nil {
		return batch, err
	}
	if len(req.FileNames) == 0 {
		return batch, fmt.Errorf("local load requires file names")
	}

	attempted := 0
	for _, name := range req.FileNames {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		attempted++

		path := filepath.Join(l.baseDir, req.AITID, filepath.Base(name))
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable file",
				zap.String("ait_id", req.AITID),
				zap.String("file_name", name),
				zap.Error(err),
			)
			continue
		}
		info, _ := os.Stat(path)
		modified := timeOrZero(info)

		chunks := fileChunks(req.AITID, req.Tag, name, string(data), modified)
		if len(chunks) == 0 {
			l.logger.Warn("skipping empty file",
				zap.String("ait_id", req.AITID),
				zap.String("file_name", name),
			)
			continue
		}
		batch.Chunks = append(batch.Chunks, chunks...)
	}

	if attempted > 0 && len(batch.Chunks) == 0 {
		return batch, ErrNoDocuments
	}
	return batch, nil
}

func timeOrZero(info os.FileInfo) (t time.Time) {
	if info != nil {
		t = info.ModTime()
	}
	return t
}

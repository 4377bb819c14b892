package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Galitein/Ai1st-ai/internal/document"
)

func writeTenantFile(t *testing.T, baseDir, aitID, name, content string) {
	t.Helper()
	dir := filepath.Join(baseDir, aitID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLocalLoadChunksFiles(t *testing.T) {
	base := t.TempDir()
	writeTenantFile(t, base, "tenant1", "notes.txt", "some note content here")

	l := NewLocalLoader(base, nil)
	batch, err := l.Load(context.Background(), Request{
		AITID:     "tenant1",
		Tag:       document.TagBib,
		FileNames: []string{"notes.txt"},
	})
	require.NoError(t, err)

	require.Len(t, batch.Chunks, 1)
	c := batch.Chunks[0]
	assert.Equal(t, "bib_notes.txt_0", c.SourceID)
	assert.Equal(t, "tenant1", c.AITID)
	assert.Equal(t, document.TagBib, c.Type)
	assert.Equal(t, "notes.txt", c.FileName)
	assert.Equal(t, "some note content here", c.PageContent)
	assert.False(t, c.ModifiedTime.IsZero())
}

func TestLocalLoadSplitsLongFiles(t *testing.T) {
	base := t.TempDir()
	words := strings.Repeat("word ", 450)
	writeTenantFile(t, base, "tenant1", "long.txt", words)

	l := NewLocalLoader(base, nil)
	batch, err := l.Load(context.Background(), Request{
		AITID:     "tenant1",
		Tag:       document.TagBib,
		FileNames: []string{"long.txt"},
	})
	require.NoError(t, err)
	assert.Greater(t, len(batch.Chunks), 1)

	for i, c := range batch.Chunks {
		assert.Equal(t, document.SourceID(document.TagBib, "long.txt", i), c.SourceID)
		assert.Equal(t, i, c.ChunkIndex)
	}
}

func TestLocalLoadSkipsMissingFiles(t *testing.T) {
	base := t.TempDir()
	writeTenantFile(t, base, "tenant1", "present.txt", "real content")

	l := NewLocalLoader(base, nil)
	batch, err := l.Load(context.Background(), Request{
		AITID:     "tenant1",
		Tag:       document.TagBib,
		FileNames: []string{"missing.txt", "present.txt"},
	})
	require.NoError(t, err)
	require.Len(t, batch.Chunks, 1)
	assert.Equal(t, "present.txt", batch.Chunks[0].FileName)
}

func TestLocalLoadAllMissingReturnsErrNoDocuments(t *testing.T) {
	l := NewLocalLoader(t.TempDir(), nil)
	_, err := l.Load(context.Background(), Request{
		AITID:     "tenant1",
		Tag:       document.TagBib,
		FileNames: []string{"nope.txt"},
	})
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestLocalLoadRejectsPathTraversal(t *testing.T) {
	base := t.TempDir()
	// The secret lives outside the tenant directory; Base() strips the
	// traversal so the lookup stays inside it.
	require.NoError(t, os.WriteFile(filepath.Join(base, "secret.txt"), []byte("secret"), 0o644))

	l := NewLocalLoader(base, nil)
	_, err := l.Load(context.Background(), Request{
		AITID:     "tenant1",
		Tag:       document.TagBib,
		FileNames: []string{"../secret.txt"},
	})
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestLocalLoadValidation(t *testing.T) {
	l := NewLocalLoader(t.TempDir(), nil)
	ctx := context.Background()

	_, err := l.Load(ctx, Request{Tag: document.TagBib, FileNames: []string{"x"}})
	assert.Error(t, err)

	_, err = l.Load(ctx, Request{AITID: "tenant1", Tag: document.TagBib})
	assert.Error(t, err)
}

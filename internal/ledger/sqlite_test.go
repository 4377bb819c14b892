package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *SQLiteRecordManager {
	t.Helper()
	m, err := NewSQLiteRecordManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSQLiteUpsertAndList(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := Namespace("tenant1")
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, m.Upsert(ctx, ns, "bib_a.txt_0", "hash-a", now))
	require.NoError(t, m.Upsert(ctx, ns, "bib_a.txt_1", "hash-b", now))

	entries, err := m.ListIDs(ctx, ns, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hash-a", entries["bib_a.txt_0"].ContentHash)
	assert.Equal(t, now, entries["bib_a.txt_0"].UpdatedAt)
}

func TestSQLiteUpsertOverwrites(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := Namespace("tenant1")

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, m.Upsert(ctx, ns, "bib_a.txt_0", "old", first))
	require.NoError(t, m.Upsert(ctx, ns, "bib_a.txt_0", "new", second))

	entries, err := m.ListIDs(ctx, ns, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries["bib_a.txt_0"].ContentHash)
	assert.Equal(t, second, entries["bib_a.txt_0"].UpdatedAt)
}

func TestSQLiteListPrefix(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := Namespace("tenant1")
	now := time.Now()

	require.NoError(t, m.Upsert(ctx, ns, "bib_a.txt_0", "h", now))
	require.NoError(t, m.Upsert(ctx, ns, "bib_b.txt_0", "h", now))
	require.NoError(t, m.Upsert(ctx, ns, "trello_log_x_0", "h", now))

	entries, err := m.ListIDs(ctx, ns, "bib_")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Contains(t, entries, "bib_a.txt_0")
	assert.Contains(t, entries, "bib_b.txt_0")
}

func TestSQLiteListPrefixEscapesWildcards(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := Namespace("tenant1")
	now := time.Now()

	// Without escaping, the underscore in "log_" would match "logX" too.
	require.NoError(t, m.Upsert(ctx, ns, "log_diary_a_0", "h", now))
	require.NoError(t, m.Upsert(ctx, ns, "logXdiary_a_0", "h", now))

	entries, err := m.ListIDs(ctx, ns, "log_diary_")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries, "log_diary_a_0")
}

func TestSQLiteNamespaceIsolation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.Upsert(ctx, Namespace("tenant1"), "bib_a.txt_0", "h", now))
	require.NoError(t, m.Upsert(ctx, Namespace("tenant2"), "bib_a.txt_0", "h", now))

	entries, err := m.ListIDs(ctx, Namespace("tenant1"), "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLiteDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ns := Namespace("tenant1")
	now := time.Now()

	require.NoError(t, m.Upsert(ctx, ns, "bib_a.txt_0", "h", now))
	require.NoError(t, m.Upsert(ctx, ns, "bib_a.txt_1", "h", now))

	require.NoError(t, m.Delete(ctx, ns, []string{"bib_a.txt_0", "does_not_exist"}))

	entries, err := m.ListIDs(ctx, ns, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries, "bib_a.txt_1")
}

func TestSQLiteDeleteEmptySlice(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Delete(context.Background(), Namespace("tenant1"), nil))
}

func TestSQLiteDeleteNamespace(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.Upsert(ctx, Namespace("tenant1"), "bib_a.txt_0", "h", now))
	require.NoError(t, m.Upsert(ctx, Namespace("tenant2"), "bib_a.txt_0", "h", now))

	require.NoError(t, m.DeleteNamespace(ctx, Namespace("tenant1")))

	entries, err := m.ListIDs(ctx, Namespace("tenant1"), "")
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = m.ListIDs(ctx, Namespace("tenant2"), "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLiteReopenPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m, err := NewSQLiteRecordManager(dir)
	require.NoError(t, err)
	require.NoError(t, m.Upsert(ctx, Namespace("tenant1"), "bib_a.txt_0", "h", time.Now()))
	require.NoError(t, m.Close())

	m2, err := NewSQLiteRecordManager(dir)
	require.NoError(t, err)
	defer m2.Close()

	entries, err := m2.ListIDs(ctx, Namespace("tenant1"), "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS upsertion_record (
	namespace    TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (namespace, source_id)
);
CREATE INDEX IF NOT EXISTS idx_upsertion_namespace ON upsertion_record(namespace);
`

// SQLiteRecordManager is a RecordManager backed by an embedded SQLite
// database. A single *sql.DB in WAL mode gives same-process
// read-your-writes consistency.
type SQLiteRecordManager struct {
	db   *sql.DB
	path string
}

// NewSQLiteRecordManager opens (or creates) the ledger database at
// dataDir/ledger.db and applies the schema. Schema creation is idempotent.
func NewSQLiteRecordManager(dataDir string) (*SQLiteRecordManager, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".config", "aitd", "data")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ledger.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrLedger, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", ErrLedger, err)
	}

	return &SQLiteRecordManager{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (m *SQLiteRecordManager) Path() string {
	return m.path
}

// Close closes the database connection.
func (m *SQLiteRecordManager) Close() error {
	return m.db.Close()
}

// ListIDs returns all recorded entries in the namespace, optionally
// restricted to a source-id prefix.
func (m *SQLiteRecordManager) ListIDs(ctx context.Context, namespace, prefix string) (map[string]Entry, error) {
	query := `SELECT source_id, content_hash, updated_at FROM upsertion_record WHERE namespace = ?`
	args := []any{namespace}
	if prefix != "" {
		// ESCAPE keeps literal underscores in prefixes from acting as
		// single-character wildcards (source ids are underscore-joined).
		query += ` AND source_id LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(prefix)+"%")
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing ids in %s: %v", ErrLedger, namespace, err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var (
			id   string
			hash string
			at   int64
		)
		if err := rows.Scan(&id, &hash, &at); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrLedger, err)
		}
		entries[id] = Entry{ContentHash: hash, UpdatedAt: time.Unix(at, 0).UTC()}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", ErrLedger, err)
	}
	return entries, nil
}

// Upsert records a source id with its content hash and update time.
func (m *SQLiteRecordManager) Upsert(ctx context.Context, namespace, sourceID, contentHash string, at time.Time) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO upsertion_record (namespace, source_id, content_hash, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, source_id)
		 DO UPDATE SET content_hash = excluded.content_hash, updated_at = excluded.updated_at`,
		namespace, sourceID, contentHash, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: upserting %s in %s: %v", ErrLedger, sourceID, namespace, err)
	}
	return nil
}

// Delete removes the given source ids from the namespace in one
// transaction.
func (m *SQLiteRecordManager) Delete(ctx context.Context, namespace string, sourceIDs []string) error {
	if len(sourceIDs) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning delete: %v", ErrLedger, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`DELETE FROM upsertion_record WHERE namespace = ? AND source_id = ?`)
	if err != nil {
		return fmt.Errorf("%w: preparing delete: %v", ErrLedger, err)
	}
	defer stmt.Close()

	for _, id := range sourceIDs {
		if _, err := stmt.ExecContext(ctx, namespace, id); err != nil {
			return fmt.Errorf("%w: deleting %s in %s: %v", ErrLedger, id, namespace, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing delete: %v", ErrLedger, err)
	}
	return nil
}

// DeleteNamespace removes every entry in the namespace.
func (m *SQLiteRecordManager) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM upsertion_record WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("%w: deleting namespace %s: %v", ErrLedger, namespace, err)
	}
	return nil
}

// escapeLike escapes SQL LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

var _ RecordManager = (*SQLiteRecordManager)(nil)

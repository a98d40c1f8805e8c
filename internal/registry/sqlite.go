package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// sqliteTimeFormat stores timestamps as sortable strings. Driver-level
// time conversion differs between SQLite drivers; explicit formatting
// keeps the file portable.
const sqliteTimeFormat = time.RFC3339Nano

// maxStoredPasses caps the pass history table.
const maxStoredPasses = 100

// SQLiteRegistry is the default backend: one file, WAL journal, a single
// connection. Chunk ids live in a child table with cascade delete so a
// document's record and its id set can never drift apart.
type SQLiteRegistry struct {
	db   *sql.DB
	path string
}

// NewSQLiteRegistry opens or creates the registry database. An empty
// path opens an in-memory database.
func NewSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeRegistryIO,
				fmt.Sprintf("failed to create registry directory for %s", path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, syncerrors.RegistryError("failed to open registry database", err)
	}

	// Single writer; SQLite serializes writes anyway and one connection
	// avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN parameters; pragmas must be
	// set through statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, syncerrors.RegistryError("failed to configure registry database", err)
		}
	}

	reg := &SQLiteRegistry{db: db, path: path}
	if err := reg.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return reg, nil
}

func (r *SQLiteRegistry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		document_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		last_indexed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
		chunk_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		PRIMARY KEY (document_id, chunk_id)
	);
	CREATE INDEX IF NOT EXISTS idx_document_chunks_doc ON document_chunks(document_id);

	CREATE TABLE IF NOT EXISTS pass_history (
		pass_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		added INTEGER NOT NULL,
		changed INTEGER NOT NULL,
		removed INTEGER NOT NULL,
		unchanged INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		failed_doc_ids TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_pass_history_finished ON pass_history(finished_at DESC);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return syncerrors.New(syncerrors.ErrCodeRegistryCorrupt,
			"failed to initialize registry schema", err)
	}
	return nil
}

// Get returns the record for a document.
func (r *SQLiteRegistry) Get(ctx context.Context, documentID string) (RegistryRecord, bool, error) {
	var rec RegistryRecord
	var indexedAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT document_id, fingerprint, last_indexed_at FROM documents WHERE document_id = ?`,
		documentID).Scan(&rec.DocumentID, &rec.Fingerprint, &indexedAt)
	if err == sql.ErrNoRows {
		return RegistryRecord{}, false, nil
	}
	if err != nil {
		return RegistryRecord{}, false, syncerrors.RegistryError("failed to read record", err)
	}

	rec.LastIndexedAt, err = time.Parse(sqliteTimeFormat, indexedAt)
	if err != nil {
		return RegistryRecord{}, false, syncerrors.New(syncerrors.ErrCodeRegistryCorrupt,
			fmt.Sprintf("record %s has malformed timestamp %q", documentID, indexedAt), err)
	}

	rec.ChunkIDs, err = r.chunkIDs(ctx, documentID)
	if err != nil {
		return RegistryRecord{}, false, err
	}
	return rec, true, nil
}

func (r *SQLiteRegistry) chunkIDs(ctx context.Context, documentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT chunk_id FROM document_chunks WHERE document_id = ? ORDER BY sequence`,
		documentID)
	if err != nil {
		return nil, syncerrors.RegistryError("failed to read chunk ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, syncerrors.RegistryError("failed to scan chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Diff partitions the corpus against the stored records.
func (r *SQLiteRegistry) Diff(ctx context.Context, current map[string]string) (DiffResult, error) {
	records, err := r.listFingerprints(ctx)
	if err != nil {
		return DiffResult{}, err
	}
	return computeDiff(records, current), nil
}

// listFingerprints loads records without their chunk id sets; the diff
// only compares fingerprints.
func (r *SQLiteRegistry) listFingerprints(ctx context.Context) ([]RegistryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document_id, fingerprint FROM documents`)
	if err != nil {
		return nil, syncerrors.RegistryError("failed to list records", err)
	}
	defer rows.Close()

	var records []RegistryRecord
	for rows.Next() {
		var rec RegistryRecord
		if err := rows.Scan(&rec.DocumentID, &rec.Fingerprint); err != nil {
			return nil, syncerrors.RegistryError("failed to scan record", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Commit atomically replaces a document's record. The old chunk id set
// is swapped for the new one in the same transaction.
func (r *SQLiteRegistry) Commit(ctx context.Context, documentID, fingerprint string, chunkIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return syncerrors.RegistryError("failed to begin commit", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (document_id, fingerprint, last_indexed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			last_indexed_at = excluded.last_indexed_at`,
		documentID, fingerprint, time.Now().UTC().Format(sqliteTimeFormat))
	if err != nil {
		return syncerrors.RegistryError("failed to write record", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return syncerrors.RegistryError("failed to clear chunk ids", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (document_id, chunk_id, sequence) VALUES (?, ?, ?)`)
	if err != nil {
		return syncerrors.RegistryError("failed to prepare chunk insert", err)
	}
	defer stmt.Close()

	for i, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, documentID, id, i); err != nil {
			return syncerrors.RegistryError(
				fmt.Sprintf("failed to write chunk id %s", id), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return syncerrors.RegistryError("failed to commit record", err)
	}
	return nil
}

// Delete removes a record. The chunk rows cascade.
func (r *SQLiteRegistry) Delete(ctx context.Context, documentID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE document_id = ?`, documentID); err != nil {
		return syncerrors.RegistryError("failed to delete record", err)
	}
	return nil
}

// List returns all records sorted by document id.
func (r *SQLiteRegistry) List(ctx context.Context) ([]RegistryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT document_id, fingerprint, last_indexed_at FROM documents ORDER BY document_id`)
	if err != nil {
		return nil, syncerrors.RegistryError("failed to list records", err)
	}
	defer rows.Close()

	var records []RegistryRecord
	for rows.Next() {
		var rec RegistryRecord
		var indexedAt string
		if err := rows.Scan(&rec.DocumentID, &rec.Fingerprint, &indexedAt); err != nil {
			return nil, syncerrors.RegistryError("failed to scan record", err)
		}
		if rec.LastIndexedAt, err = time.Parse(sqliteTimeFormat, indexedAt); err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeRegistryCorrupt,
				fmt.Sprintf("record %s has malformed timestamp %q", rec.DocumentID, indexedAt), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerrors.RegistryError("failed to iterate records", err)
	}

	for i := range records {
		if records[i].ChunkIDs, err = r.chunkIDs(ctx, records[i].DocumentID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Count returns the number of records.
func (r *SQLiteRegistry) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	if err != nil {
		return 0, syncerrors.RegistryError("failed to count records", err)
	}
	return count, nil
}

// Clear removes every record but keeps pass history.
func (r *SQLiteRegistry) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return syncerrors.RegistryError("failed to clear registry", err)
	}
	return nil
}

// AppendPass stores a completed pass summary and prunes old rows.
func (r *SQLiteRegistry) AppendPass(ctx context.Context, pass PassRecord) error {
	failedJSON, err := json.Marshal(pass.FailedDocIDs)
	if err != nil {
		return syncerrors.InternalError("failed to encode failed document ids", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pass_history
			(pass_id, started_at, finished_at, added, changed, removed, unchanged, failed, failed_doc_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pass.PassID,
		pass.StartedAt.UTC().Format(sqliteTimeFormat),
		pass.FinishedAt.UTC().Format(sqliteTimeFormat),
		pass.Added, pass.Changed, pass.Removed, pass.Unchanged, pass.Failed,
		string(failedJSON))
	if err != nil {
		return syncerrors.RegistryError("failed to record pass", err)
	}

	_, err = r.db.ExecContext(ctx, `
		DELETE FROM pass_history WHERE pass_id NOT IN (
			SELECT pass_id FROM pass_history ORDER BY finished_at DESC LIMIT ?
		)`, maxStoredPasses)
	if err != nil {
		return syncerrors.RegistryError("failed to prune pass history", err)
	}
	return nil
}

// RecentPasses returns up to limit passes, newest first.
func (r *SQLiteRegistry) RecentPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT pass_id, started_at, finished_at, added, changed, removed, unchanged, failed, failed_doc_ids
		FROM pass_history ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, syncerrors.RegistryError("failed to read pass history", err)
	}
	defer rows.Close()

	var passes []PassRecord
	for rows.Next() {
		var pass PassRecord
		var started, finished, failedJSON string
		if err := rows.Scan(&pass.PassID, &started, &finished,
			&pass.Added, &pass.Changed, &pass.Removed, &pass.Unchanged, &pass.Failed,
			&failedJSON); err != nil {
			return nil, syncerrors.RegistryError("failed to scan pass", err)
		}
		if pass.StartedAt, err = time.Parse(sqliteTimeFormat, started); err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeRegistryCorrupt,
				fmt.Sprintf("pass %s has malformed start time", pass.PassID), err)
		}
		if pass.FinishedAt, err = time.Parse(sqliteTimeFormat, finished); err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeRegistryCorrupt,
				fmt.Sprintf("pass %s has malformed finish time", pass.PassID), err)
		}
		if err := json.Unmarshal([]byte(failedJSON), &pass.FailedDocIDs); err != nil {
			return nil, syncerrors.New(syncerrors.ErrCodeRegistryCorrupt,
				fmt.Sprintf("pass %s has malformed failed id list", pass.PassID), err)
		}
		passes = append(passes, pass)
	}
	return passes, rows.Err()
}

// Close closes the database.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

var (
	_ Registry    = (*SQLiteRegistry)(nil)
	_ PassHistory = (*SQLiteRegistry)(nil)
)

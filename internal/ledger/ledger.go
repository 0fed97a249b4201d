// Package ledger provides a SQLite-backed content-fingerprint ledger for the
// ingestion pipeline. Each catalog entry's document text is fingerprinted at
// ingest time; on re-ingestion, entries whose fingerprint is unchanged can be
// skipped without calling the embedding provider again.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Fingerprint returns the hex-encoded SHA-256 digest of the document text.
func Fingerprint(document string) string {
	sum := sha256.Sum256([]byte(document))
	return hex.EncodeToString(sum[:])
}

// Ledger records which entry contents have already been embedded and stored.
// Implementations must be safe for concurrent use.
type Ledger interface {
	// Get returns the stored fingerprint for an entry id, or "" if the entry
	// has never been ingested.
	Get(ctx context.Context, id string) (string, error)
	// Put records (or replaces) the fingerprint for an entry id.
	Put(ctx context.Context, id, fingerprint string) error
	// Close releases any resources held by the ledger.
	Close() error
}

// SQLiteLedger is a Ledger backed by a local SQLite database.
type SQLiteLedger struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the fingerprint database.
// It resolves to ~/.progdex/ledger.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("ledger: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".progdex")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("ledger: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "ledger.db"), nil
}

// Open opens (or creates) a SQLiteLedger at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLedger, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// migrate creates the schema if it does not already exist.
func (l *SQLiteLedger) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS fingerprints (
    id           TEXT    PRIMARY KEY,
    fingerprint  TEXT    NOT NULL,
    updated_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
`
	if _, err := l.db.Exec(ddl); err != nil {
		return fmt.Errorf("ledger: migrate: %w", err)
	}
	return nil
}

// Get returns the stored fingerprint for an entry id, or "" if absent.
func (l *SQLiteLedger) Get(ctx context.Context, id string) (string, error) {
	const q = `SELECT fingerprint FROM fingerprints WHERE id = ?`
	var fp string
	err := l.db.QueryRowContext(ctx, q, id).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: get %s: %w", id, err)
	}
	return fp, nil
}

// Put records (or replaces) the fingerprint for an entry id.
func (l *SQLiteLedger) Put(ctx context.Context, id, fingerprint string) error {
	const q = `
INSERT INTO fingerprints (id, fingerprint, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET fingerprint = excluded.fingerprint, updated_at = excluded.updated_at`
	if _, err := l.db.ExecContext(ctx, q, id, fingerprint, time.Now().Unix()); err != nil {
		return fmt.Errorf("ledger: put %s: %w", id, err)
	}
	return nil
}

// Close releases the database connection pool.
func (l *SQLiteLedger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("ledger: close: %w", err)
	}
	return nil
}

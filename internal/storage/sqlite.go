// Package storage opens the gateway's SQLite database and owns its schema:
// durable rate counters, usage tallies, and the audit log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the SQLite database at path and ensures
// required tables exist.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA foreign_keys = ON;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates tables/indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rate_counters (
			identifier   TEXT    NOT NULL,
			window_start INTEGER NOT NULL,
			count        INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (identifier, window_start)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_counters_window
			ON rate_counters(window_start)`,
		`CREATE TABLE IF NOT EXISTS usage_counters (
			identifier TEXT    NOT NULL,
			event_type TEXT    NOT NULL,
			count      INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (identifier, event_type)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id         TEXT    PRIMARY KEY,
			at         INTEGER NOT NULL,
			event_type TEXT    NOT NULL,
			service    TEXT    NOT NULL,
			identifier TEXT    NOT NULL,
			role       TEXT    NOT NULL,
			status     INTEGER NOT NULL,
			detail     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_at ON audit_log(at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

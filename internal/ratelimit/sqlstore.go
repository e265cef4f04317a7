package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore is a CounterStore over a SQL database, intended for single-box
// deployments that already carry SQLite for audit storage and want counters
// to survive restarts. One row per (identifier, window_start); the upsert
// runs inside the database's write serialization, which supplies atomicity.
type SQLStore struct {
	db *sql.DB
}

var _ CounterStore = (*SQLStore)(nil)

// NewSQLStore wraps an opened database. The rate_counters table must exist
// (see storage.Open).
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLStore{db: db}, nil
}

// Incr upserts the (identifier, window_start) row and returns the new count.
// Rows for earlier windows stay behind until Sweep collects them; they never
// influence the current window because the window start is part of the key.
func (s *SQLStore) Incr(ctx context.Context, identifier string, windowStart time.Time, _ time.Duration) (int64, error) {
	const q = `
INSERT INTO rate_counters (identifier, window_start, count)
VALUES (?, ?, 1)
ON CONFLICT (identifier, window_start)
DO UPDATE SET count = count + 1
RETURNING count`

	var count int64
	if err := s.db.QueryRowContext(ctx, q, identifier, windowStart.Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return count, nil
}

// Sweep deletes counter rows whose window started before cutoff. Meant to be
// called periodically from the serve loop, not per request.
func (s *SQLStore) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_counters WHERE window_start < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("sweep counters: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

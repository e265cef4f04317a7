package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

const writerBuffer = 256

// SQLSink persists usage tallies and audit events to SQLite through a single
// writer goroutine. Record and Log enqueue and return immediately; when the
// buffer is full the entry is dropped with a warning, because the admission
// path must not wait on bookkeeping.
type SQLSink struct {
	db     *sql.DB
	logger *slog.Logger

	ch   chan func(context.Context)
	done chan struct{}
	once sync.Once
}

var (
	_ Recorder = (*SQLSink)(nil)
	_ Log      = (*SQLSink)(nil)
)

// NewSQLSink starts the writer goroutine over an opened database (schema per
// storage.Bootstrap).
func NewSQLSink(db *sql.DB, logger *slog.Logger) *SQLSink {
	s := &SQLSink{
		db:     db,
		logger: logger,
		ch:     make(chan func(context.Context), writerBuffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *SQLSink) run() {
	defer close(s.done)
	for op := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		op(ctx)
		cancel()
	}
}

// Close drains pending writes and stops the writer.
func (s *SQLSink) Close() {
	s.once.Do(func() { close(s.ch) })
	<-s.done
}

func (s *SQLSink) enqueue(op func(context.Context)) {
	select {
	case s.ch <- op:
	default:
		s.logger.Warn("audit writer buffer full, dropping entry")
	}
}

// Record upserts the usage tally for (identifier, eventType).
func (s *SQLSink) Record(identifier, eventType string, n int64) {
	s.enqueue(func(ctx context.Context) {
		const q = `
INSERT INTO usage_counters (identifier, event_type, count, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (identifier, event_type)
DO UPDATE SET count = count + excluded.count, updated_at = excluded.updated_at`
		if _, err := s.db.ExecContext(ctx, q, identifier, eventType, n, time.Now().Unix()); err != nil {
			s.logger.Warn("usage record failed", "error", err)
		}
	})
}

// Log appends an audit event.
func (s *SQLSink) Log(ev Event) {
	s.enqueue(func(ctx context.Context) {
		const q = `
INSERT INTO audit_log (id, at, event_type, service, identifier, role, status, detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := s.db.ExecContext(ctx, q,
			ev.ID, ev.At.Unix(), ev.Type, ev.Service, ev.Identifier, ev.Role, ev.Status, ev.Detail); err != nil {
			s.logger.Warn("audit log write failed", "error", err)
		}
	})
}

package audit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/hookgate/internal/storage"
)

func testSink(t *testing.T) *SQLSink {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewSQLSink(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSQLSinkRecord(t *testing.T) {
	s := testSink(t)

	s.Record("caller-1", "admission.processed", 1)
	s.Record("caller-1", "admission.processed", 2)
	s.Record("caller-1", "admission.rejected", 1)
	s.Close()

	var count int64
	err := s.db.QueryRow(
		`SELECT count FROM usage_counters WHERE identifier = ? AND event_type = ?`,
		"caller-1", "admission.processed").Scan(&count)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestSQLSinkLog(t *testing.T) {
	s := testSink(t)

	ev := Event{
		ID:         uuid.NewString(),
		At:         time.Now(),
		Type:       "admission.rejected",
		Service:    "github",
		Identifier: "caller-1",
		Role:       "operator",
		Status:     429,
		Detail:     "rate_limited",
	}
	s.Log(ev)
	s.Close()

	var gotService string
	var gotStatus int
	err := s.db.QueryRow(`SELECT service, status FROM audit_log WHERE id = ?`, ev.ID).
		Scan(&gotService, &gotStatus)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if gotService != "github" || gotStatus != 429 {
		t.Errorf("row = (%q, %d), want (github, 429)", gotService, gotStatus)
	}
}

// A full buffer drops entries instead of blocking the caller.
func TestSQLSinkNeverBlocks(t *testing.T) {
	s := testSink(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < writerBuffer*10; i++ {
			s.Record("flood", "admission.processed", 1)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked under buffer pressure")
	}
	s.Close()
}

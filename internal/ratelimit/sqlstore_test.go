package ratelimit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/hookgate/internal/storage"
)

func testSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "rl.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLStore(db)
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	return s
}

func TestSQLStoreIncr(t *testing.T) {
	s := testSQLStore(t)
	ctx := context.Background()
	w1 := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	w2 := w1.Add(time.Minute)

	for i := int64(1); i <= 3; i++ {
		got, err := s.Incr(ctx, "a", w1, time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if got != i {
			t.Errorf("count = %d, want %d", got, i)
		}
	}

	// New window is a new row.
	if got, _ := s.Incr(ctx, "a", w2, time.Minute); got != 1 {
		t.Errorf("count in new window = %d, want 1", got)
	}

	// Other identifiers are independent.
	if got, _ := s.Incr(ctx, "b", w1, time.Minute); got != 1 {
		t.Errorf("other identifier count = %d, want 1", got)
	}
}

func TestSQLStoreConcurrentIncr(t *testing.T) {
	s := testSQLStore(t)
	w := time.Now().Truncate(time.Minute)

	const goroutines = 10
	const perGoroutine = 10

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				if _, err := s.Incr(context.Background(), "shared", w, time.Minute); err != nil {
					t.Errorf("Incr: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	got, err := s.Incr(context.Background(), "shared", w, time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if want := int64(goroutines*perGoroutine + 1); got != want {
		t.Errorf("final count = %d, want %d (lost updates)", got, want)
	}
}

func TestSQLStoreSweep(t *testing.T) {
	s := testSQLStore(t)
	ctx := context.Background()
	old := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	fresh := old.Add(time.Hour)

	if _, err := s.Incr(ctx, "a", old, time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if _, err := s.Incr(ctx, "a", fresh, time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}

	n, err := s.Sweep(ctx, old.Add(time.Minute))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d rows, want 1", n)
	}

	// The fresh window survived.
	if got, _ := s.Incr(ctx, "a", fresh, time.Minute); got != 2 {
		t.Errorf("fresh window count = %d, want 2", got)
	}
}

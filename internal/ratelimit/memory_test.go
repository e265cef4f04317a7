package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreIncr(t *testing.T) {
	s := NewMemoryStore()
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

	// Independent identifier starts from 1.
	if got, _ := s.Incr(ctx, "b", w1, time.Minute); got != 1 {
		t.Errorf("other identifier count = %d, want 1", got)
	}

	// New window resets the counter.
	if got, _ := s.Incr(ctx, "a", w2, time.Minute); got != 1 {
		t.Errorf("count after window change = %d, want 1", got)
	}
}

func TestMemoryStoreConcurrentIncr(t *testing.T) {
	s := NewMemoryStore()
	w := time.Now().Truncate(time.Minute)

	const goroutines = 50
	const perGoroutine = 20

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

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	old := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)

	// Over the sweep threshold, all in one shard-agnostic spread.
	for i := 0; i < 70000; i++ {
		id := fmt.Sprintf("caller-%d", i)
		if _, err := s.Incr(ctx, id, old, time.Minute); err != nil {
			t.Fatalf("Incr: %v", err)
		}
	}

	// Two windows later the stale entries are collectable.
	now := old.Add(5 * time.Minute)
	if _, err := s.Incr(ctx, "fresh", now, time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}

	sh := s.shardFor("fresh")
	sh.mu.Lock()
	for id, c := range sh.counters {
		if id != "fresh" && c.windowStart.Before(now.Add(-time.Minute)) {
			sh.mu.Unlock()
			t.Fatalf("stale counter %q survived sweep", id)
		}
	}
	sh.mu.Unlock()
}

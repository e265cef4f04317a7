package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const defaultShardCount = 64

// counter is one identifier's window state.
type counter struct {
	windowStart time.Time
	count       int64
}

type shard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// MemoryStore is a single-process CounterStore. The counter map is split
// across shards, each guarded by its own mutex, so concurrent requests from
// unrelated identifiers do not serialize on one global lock. The per-shard
// lock is held only for the read-modify-write, never across I/O.
type MemoryStore struct {
	shards []*shard
}

var _ CounterStore = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store with the default shard count.
func NewMemoryStore() *MemoryStore {
	shards := make([]*shard, defaultShardCount)
	for i := range shards {
		shards[i] = &shard{counters: make(map[string]*counter)}
	}
	return &MemoryStore{shards: shards}
}

func (s *MemoryStore) shardFor(identifier string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identifier))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Incr atomically bumps the identifier's counter for windowStart. A counter
// left over from an earlier window is reset in place; entries whose window
// has long passed are swept opportunistically while the shard lock is held.
func (s *MemoryStore) Incr(_ context.Context, identifier string, windowStart time.Time, window time.Duration) (int64, error) {
	sh := s.shardFor(identifier)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.counters[identifier]
	if !ok {
		c = &counter{}
		sh.counters[identifier] = c
	}
	if !c.windowStart.Equal(windowStart) {
		c.windowStart = windowStart
		c.count = 0
	}
	c.count++

	s.sweepLocked(sh, windowStart, window)

	return c.count, nil
}

// sweepLocked drops counters whose window ended at least one full window
// before the current one. Keeps the map from growing with one-shot callers.
func (s *MemoryStore) sweepLocked(sh *shard, windowStart time.Time, window time.Duration) {
	if len(sh.counters) < 1024 {
		return
	}
	cutoff := windowStart.Add(-window)
	for id, c := range sh.counters {
		if c.windowStart.Before(cutoff) {
			delete(sh.counters, id)
		}
	}
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces hookgate counters in a shared Redis.
const redisKeyPrefix = "hookgate:rl:"

// RedisConfig configures the Redis-backed counter store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore is a CounterStore backed by Redis, for multi-process
// deployments that need one shared window counter per identifier. Atomicity
// comes from Redis INCR; window expiry from key TTL.
type RedisStore struct {
	client *redis.Client
}

var _ CounterStore = (*RedisStore)(nil)

// NewRedisStore connects and pings the server; a gateway should fail fast at
// startup on a bad counter-store address rather than fail open forever.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Incr increments the counter keyed by (identifier, windowStart) in one
// transactional pipeline. The key carries the window start, so a new window
// is a fresh key and needs no explicit reset; the old key ages out on TTL.
// TTL is window plus slack so a counter never expires mid-window under clock
// skew between gateway and Redis.
func (s *RedisStore) Incr(ctx context.Context, identifier string, windowStart time.Time, window time.Duration) (int64, error) {
	key := fmt.Sprintf("%s%s:%d", redisKeyPrefix, identifier, windowStart.Unix())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window+window/2)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val(), nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

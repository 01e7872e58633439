//go:build enterprise

package circulation

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore backs IdempotencyStore with a Redis EXISTS lookup and
// a SET-with-TTL mark, so a restarted consumer or a rebalanced partition
// skips a job whose correlation id was already marked seen. The lookup and
// the mark are separate commands, not one atomic check-and-set.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisIdempotencyStore dials addr and verifies reachability.
func NewRedisIdempotencyStore(addr string) (*RedisIdempotencyStore, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisIdempotencyStore{client: c}, nil
}

// Seen reports whether correlationID has already been marked processed.
func (s *RedisIdempotencyStore) Seen(ctx context.Context, correlationID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(correlationID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSeen records correlationID with a TTL so the guard doesn't grow
// unbounded.
func (s *RedisIdempotencyStore) MarkSeen(ctx context.Context, correlationID string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(correlationID), "1", ttl).Err()
}

func (s *RedisIdempotencyStore) key(correlationID string) string {
	return "circulation:seen:" + correlationID
}

// Close closes the underlying Redis client.
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

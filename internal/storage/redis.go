package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores every record as a field in a single Redis hash, for
// ephemeral shared-cache deployments where durability is handled upstream.
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(addr, shelfKey string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis backend: %w", err)
	}
	if shelfKey == "" {
		shelfKey = "library:records"
	}
	return &RedisBackend{client: client, key: shelfKey}, nil
}

func (r *RedisBackend) Load(ctx context.Context) (map[string][]byte, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load hash %s: %w", r.key, err)
	}
	out := make(map[string][]byte, len(fields))
	for k, v := range fields {
		out[k] = []byte(v)
	}
	return out, nil
}

func (r *RedisBackend) Save(ctx context.Context, records map[string][]byte) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	if len(records) > 0 {
		fields := make(map[string]any, len(records))
		for k, v := range records {
			fields[k] = v
		}
		pipe.HSet(ctx, r.key, fields)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("save hash %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisBackend) Close() error { return r.client.Close() }

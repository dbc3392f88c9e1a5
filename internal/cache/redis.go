package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the SCAN COUNT hint and the DEL chunk size.
const scanBatch = 100

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis is a Cache backed by a go-redis client.
type Redis struct {
	client *redis.Client
}

var _ Cache = (*Redis)(nil)

// NewRedis creates the client. No connection is made until first use; call
// Ping to check reachability.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache.redis.Ping: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache.redis.Get: %w", err)
	}
	return b, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache.redis.Set: %w", err)
	}
	return nil
}

// DeletePattern removes every key matching pattern. The SCAN completes
// before anything is deleted, so the cursor never walks a shrinking keyspace.
func (r *Redis) DeletePattern(ctx context.Context, pattern string) error {
	const op = "cache.redis.DeletePattern"

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("%s: scan: %w", op, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	for chunk := range slices.Chunk(keys, scanBatch) {
		if err := r.client.Del(ctx, chunk...).Err(); err != nil {
			return fmt.Errorf("%s: del: %w", op, err)
		}
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

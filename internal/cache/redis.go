package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the optional durable-backed cache mentioned in
// SPEC_FULL.md §3 domain stack. Its Get/Set take a context and return
// errors, so it does not share a method set with TTLCache and the two are
// not interchangeable. Adapted from the
// teacher's infrastructure/cache.RedisCache, generalized from string
// values to arbitrary JSON-encodable values.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

func NewRedis(addr string, db int, defaultTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:     redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		defaultTTL: defaultTTL,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.defaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

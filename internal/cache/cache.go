// Package cache is an optional read-through cache for history summaries.
// It is never authoritative; every entry carries a short TTL and the
// summary namespace is version-bumped on writes and reconciliation.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. Implementations must be safe for
// concurrent use. A miss is (nil, false, nil), never an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SummaryVersion(ctx context.Context) (int64, error)
	BumpSummaryVersion(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisCache implements Cache using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) SummaryVersion(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, summaryVersionKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (c *RedisCache) BumpSummaryVersion(ctx context.Context) error {
	return c.client.Incr(ctx, summaryVersionKey).Err()
}

// NoopCache is used when no Redis URL is configured: every lookup misses
// and every write succeeds silently.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }
func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (NoopCache) SummaryVersion(ctx context.Context) (int64, error) { return 0, nil }
func (NoopCache) BumpSummaryVersion(ctx context.Context) error      { return nil }
func (NoopCache) Ping(ctx context.Context) error                    { return nil }
func (NoopCache) Close() error                                      { return nil }

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = NoopCache{}
)

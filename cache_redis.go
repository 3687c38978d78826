package kraconnect

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by Redis. Expiry is delegated to Redis key TTLs,
// so an entry disappears exactly when its TTL elapses. Backend errors degrade
// to misses and are reported through the error hook.
type RedisCache struct {
	rdb     redis.UniversalClient
	prefix  string
	onError func(op string, err error)
	owned   bool
}

type RedisCacheOption func(*RedisCache)

// WithRedisKeyPrefix namespaces all keys (default "kraconnect:cache").
func WithRedisKeyPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) { c.prefix = strings.Trim(prefix, ":") }
}

// WithRedisErrorHandler receives backend errors that were turned into misses.
func WithRedisErrorHandler(fn func(op string, err error)) RedisCacheOption {
	return func(c *RedisCache) { c.onError = fn }
}

// NewRedisCache wraps an existing client. The caller keeps ownership of rdb.
func NewRedisCache(rdb redis.UniversalClient, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		rdb:    rdb,
		prefix: "kraconnect:cache",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisCacheFromURL dials Redis from a redis:// URL. The returned cache owns
// the connection and releases it on Close.
func NewRedisCacheFromURL(rawURL string, opts ...RedisCacheOption) (*RedisCache, error) {
	o, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	c := NewRedisCache(redis.NewClient(o), opts...)
	c.owned = true
	return c, nil
}

func (c *RedisCache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.report("get", err)
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		c.report("set", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		c.report("invalidate", err)
	}
}

// Close releases the connection when the cache created it.
func (c *RedisCache) Close() error {
	if !c.owned {
		return nil
	}
	return c.rdb.Close()
}

func (c *RedisCache) report(op string, err error) {
	if c.onError != nil {
		c.onError(op, err)
	}
}

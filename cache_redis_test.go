package kraconnect

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T, opts ...RedisCacheOption) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisCache(rdb, opts...), mr
}

func TestRedisCacheGetSet(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)

	_, found := cache.Get(ctx, "missing")
	assert.False(t, found)

	cache.Set(ctx, "pin_verification:abc", []byte(`{"is_valid":true}`), time.Minute)

	got, found := cache.Get(ctx, "pin_verification:abc")
	require.True(t, found)
	assert.JSONEq(t, `{"is_valid":true}`, string(got))
	assert.True(t, mr.Exists("kraconnect:cache:pin_verification:abc"))
}

func TestRedisCacheTTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)

	cache.Set(ctx, "k", []byte("v"), 10*time.Second)
	assert.Equal(t, 10*time.Second, mr.TTL("kraconnect:cache:k"))

	mr.FastForward(10 * time.Second)
	_, found := cache.Get(ctx, "k")
	assert.False(t, found)
}

func TestRedisCacheInvalidateAndPrefix(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t, WithRedisKeyPrefix("tenant-a:"))

	cache.Set(ctx, "k", []byte("v"), time.Minute)
	assert.True(t, mr.Exists("tenant-a:k"))

	cache.Invalidate(ctx, "k")
	assert.False(t, mr.Exists("tenant-a:k"))
}

func TestRedisCacheBackendErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	var reported []string
	cache, mr := newTestRedisCache(t, WithRedisErrorHandler(func(op string, err error) {
		reported = append(reported, op)
	}))

	cache.Set(ctx, "k", []byte("v"), time.Minute)
	mr.Close()

	_, found := cache.Get(ctx, "k")
	assert.False(t, found)
	cache.Set(ctx, "k", []byte("v"), time.Minute)
	assert.Equal(t, []string{"get", "set"}, reported)
}

func TestRedisCacheFromURLOwnsConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCacheFromURL("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	assert.True(t, cache.owned)

	cache.Set(context.Background(), "k", []byte("v"), time.Minute)
	assert.True(t, mr.Exists("kraconnect:cache:k"))
	assert.NoError(t, cache.Close())

	_, err = NewRedisCacheFromURL("not a url")
	assert.Error(t, err)
}

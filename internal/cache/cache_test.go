package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCacheWithClient(client, DefaultCacheConfig()), mr
}

// backends runs fn against every backend
func backends(t *testing.T, fn func(t *testing.T, c Cache)) {
	t.Run("memory", func(t *testing.T) {
		c := NewMemoryCache()
		defer c.Close()
		fn(t, c)
	})
	t.Run("redis", func(t *testing.T) {
		c, _ := setupTestRedis(t)
		defer c.Close()
		fn(t, c)
	})
}

func TestCache_SetGetDelete(t *testing.T) {
	backends(t, func(t *testing.T, c Cache) {
		ctx := context.Background()

		_, err := c.Get(ctx, "missing")
		assert.True(t, IsCacheMiss(err))

		require.NoError(t, c.Set(ctx, "resource:Book", []byte(`{"shortName":"Book"}`), 0))
		value, err := c.Get(ctx, "resource:Book")
		require.NoError(t, err)
		assert.Equal(t, `{"shortName":"Book"}`, string(value))

		exists, err := c.Exists(ctx, "resource:Book")
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, c.Delete(ctx, "resource:Book"))
		exists, err = c.Exists(ctx, "resource:Book")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestCache_Clear(t *testing.T) {
	backends(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0))
		}
		require.NoError(t, c.Clear(ctx))
		for i := 0; i < 5; i++ {
			_, err := c.Get(ctx, fmt.Sprintf("k%d", i))
			assert.True(t, IsCacheMiss(err))
		}
	})
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, c.Count())
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := NewMemoryCacheWithConfig(CacheConfig{DefaultTTL: NoExpiration, Prefix: "t:"})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryCache_CanceledContext(t *testing.T) {
	c := NewMemoryCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), context.Canceled)
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl", []byte("v"), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("hyperapi:ttl"))

	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))
	assert.Equal(t, time.Duration(0), mr.TTL("hyperapi:forever"))

	mr.FastForward(2 * time.Minute)
	_, err := c.Get(ctx, "ttl")
	assert.True(t, IsCacheMiss(err))
}

func TestNew(t *testing.T) {
	mem, err := New(Config{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, mem)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rc, err := New(Config{Backend: "redis", RedisAddr: mr.Addr(), Prefix: "app:"})
	require.NoError(t, err)
	defer rc.Close()
	require.NoError(t, rc.Set(context.Background(), "k", []byte("v"), 0))
	assert.True(t, mr.Exists("app:k"))

	_, err = New(Config{Backend: "memcached"})
	assert.Error(t, err)

	_, err = New(Config{Backend: "redis", RedisAddr: "localhost:99999"})
	assert.Error(t, err)
}

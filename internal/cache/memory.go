package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache implements an in-process cache on top of go-cache
type MemoryCache struct {
	store  *gocache.Cache
	config CacheConfig
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithConfig(DefaultCacheConfig())
}

// NewMemoryCacheWithConfig creates a new in-memory cache with custom configuration
func NewMemoryCacheWithConfig(config CacheConfig) *MemoryCache {
	expiration := config.DefaultTTL
	if expiration == 0 {
		expiration = gocache.NoExpiration
	}
	return &MemoryCache{
		store:  gocache.New(expiration, time.Minute),
		config: config,
	}
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, ok := m.store.Get(m.config.Prefix + key)
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}
	b, ok := value.([]byte)
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}
	return b, nil
}

// Set stores a value in the cache with a TTL
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.store.Set(m.config.Prefix+key, stored, ttl)
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store.Delete(m.config.Prefix + key)
	return nil
}

// Clear removes all values carrying this cache's prefix
func (m *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for k := range m.store.Items() {
		if strings.HasPrefix(k, m.config.Prefix) {
			m.store.Delete(k)
		}
	}
	return nil
}

// Exists checks if a key exists in the cache
func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := m.store.Get(m.config.Prefix + key)
	return ok, nil
}

// Count returns the number of stored items, expired ones included until the
// next cleanup
func (m *MemoryCache) Count() int {
	return m.store.ItemCount()
}

// Close is a no-op; go-cache stops its janitor when the cache is collected
func (m *MemoryCache) Close() error {
	return nil
}

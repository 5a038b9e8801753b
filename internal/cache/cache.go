// Package cache provides the shared byte cache behind the resource metadata
// cache. Backends are an in-process store and Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache
	Clear(ctx context.Context) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases the backend
	Close() error
}

// CacheConfig holds common configuration for cache backends
type CacheConfig struct {
	// DefaultTTL is the default time-to-live for cached items. A negative
	// value means entries never expire.
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultCacheConfig returns a default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL: NoExpiration,
		Prefix:     "hyperapi:",
	}
}

// NoExpiration keeps entries until they are deleted
const NoExpiration time.Duration = -1

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}

// Config selects and configures a backend
type Config struct {
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	Password  string        `mapstructure:"password"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// New builds the backend named by cfg.Backend ("memory" or "redis")
func New(cfg Config) (Cache, error) {
	common := DefaultCacheConfig()
	if cfg.Prefix != "" {
		common.Prefix = cfg.Prefix
	}
	if cfg.TTL != 0 {
		common.DefaultTTL = cfg.TTL
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCacheWithConfig(common), nil
	case "redis":
		return NewRedisCacheWithConfig(RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.Password,
			DB:          cfg.RedisDB,
			CacheConfig: common,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

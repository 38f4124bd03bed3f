package cache

import (
	"fmt"
	"time"
)

// NewCache creates a cache based on configuration. redisAddr is only
// consulted for the "redis" and "multilevel" types.
func NewCache(config *Config, redisAddr string) (Cache, error) {
	switch config.Type {
	case "memory", "":
		return NewMemoryCache(config), nil

	case "redis":
		redisConfig := &RedisConfig{
			Addr:   redisAddr,
			Prefix: "batchqueue:",
			TTL:    config.TTL,
		}
		return NewRedisCache(redisConfig)

	case "multilevel":
		// L1 (memory) absorbs repeat reads within its TTL; L2 (Redis)
		// survives restarts and is shared across worker/API instances.
		l1 := NewMemoryCache(&Config{
			MaxKeys: 1000,
			TTL:     5 * time.Minute,
		})

		redisConfig := &RedisConfig{
			Addr:   redisAddr,
			Prefix: "batchqueue:",
			TTL:    config.TTL,
		}

		l2, err := NewRedisCache(redisConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis cache: %w", err)
		}

		return NewMultiLevelCache(l1, l2), nil

	default:
		return nil, fmt.Errorf("unknown cache type: %s", config.Type)
	}
}

// DefaultCache creates a cache with default configuration
func DefaultCache() Cache {
	return NewMemoryCache(&Config{
		MaxKeys: 10000,
		TTL:     10 * time.Minute,
	})
}

// CacheKey generates a cache key with prefix
func CacheKey(prefix, id string) string {
	return prefix + ":" + id
}

// CacheKeys generates multiple cache keys
func CacheKeys(prefix string, ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = CacheKey(prefix, id)
	}
	return keys
}

// Package cache defines the injected response cache used by the
// analytics handlers. The cache is a best-effort optimization with a
// multi-minute TTL: errors degrade to misses, stale reads within the
// TTL window are acceptable, and no correctness depends on it.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is the interface handlers receive. It is always injected,
// never a package-level singleton, so aggregation logic stays testable
// without cache side effects.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a value with a TTL. Failures are absorbed.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// =============================================
// Redis cache
// =============================================

// RedisCache implements Cache on a Redis client. All Redis errors are
// logged at debug level and treated as misses.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

// NewRedisCache creates a Redis-backed cache. prefix namespaces keys
// so several services can share one Redis instance.
func NewRedisCache(client *redis.Client, prefix string, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		c.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// =============================================
// In-memory cache
// =============================================

// MemoryCache implements Cache in process memory. Used in tests and
// when Redis is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	data    map[string]memoryEntry
	maxSize int
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache holding at most maxSize
// entries, evicting arbitrarily at capacity.
func NewMemoryCache(maxSize int) *MemoryCache {
	return &MemoryCache{
		data:    make(map[string]memoryEntry),
		maxSize: maxSize,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.data) >= c.maxSize {
		for k := range c.data {
			delete(c.data, k)
			break
		}
	}
	c.data[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Noop implements Cache and stores nothing.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool)                  { return nil, false }
func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent or its entry has expired.
var ErrCacheMiss = errors.New("cache miss")

// DefaultCacheTTL is the result cache time-to-live when not configured.
const DefaultCacheTTL = time.Hour

// ResultCache stores ranked result sets keyed by a normalized query hash.
// Implementations must be safe for concurrent use. Cache failures are
// recoverable: callers treat any error other than ErrCacheMiss as a miss
// and proceed uncached.
type ResultCache interface {
	// Get returns the cached result set for a key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]ScoredResult, error)

	// Set stores a result set under a key with the given TTL.
	Set(ctx context.Context, key string, results []ScoredResult, ttl time.Duration) error
}

// cacheEntry is one stored result set with its expiry.
type cacheEntry struct {
	results   []ScoredResult
	expiresAt time.Time
}

// MemoryCache is an in-process ResultCache. Entries are lazily evicted:
// an expired entry is treated as absent on read and dropped. A periodic
// sweep (RunPeriodicSweep) bounds memory when desired.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewMemoryCache creates a new empty in-memory result cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached result set for a key, or ErrCacheMiss.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]ScoredResult, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if time.Now().After(entry.expiresAt) {
		// Lazy eviction: expired entries are absent.
		c.mu.Lock()
		if cur, still := c.entries[key]; still && cur.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}

	// Return a copy so callers cannot mutate the cached set.
	out := make([]ScoredResult, len(entry.results))
	copy(out, entry.results)
	return out, nil
}

// Set stores a result set under a key with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, key string, results []ScoredResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	stored := make([]ScoredResult, len(results))
	copy(stored, results)

	c.mu.Lock()
	c.entries[key] = cacheEntry{results: stored, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// SweepExpired removes all expired entries and returns how many were dropped.
func (c *MemoryCache) SweepExpired() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RunPeriodicSweep sweeps expired entries at the given interval until the
// context is cancelled. Blocks; typically run in a goroutine.
func (c *MemoryCache) RunPeriodicSweep(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.SweepExpired(); removed > 0 {
				logger.Info("swept expired cache entries", "removed", removed)
			}
		case <-ctx.Done():
			logger.Info("stopping cache sweep")
			return
		}
	}
}

// redisKeyPrefix namespaces result-cache keys within a shared Redis.
const redisKeyPrefix = "eventide:search:"

// RedisCache is a ResultCache backed by Redis with CBOR-encoded payloads.
// TTL enforcement is delegated to Redis key expiry.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a ResultCache over an existing Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached result set for a key, or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]ScoredResult, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var results []ScoredResult
	if err := cbor.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode cached results: %w", err)
	}
	return results, nil
}

// Set stores a result set under a key with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, results []ScoredResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	data, err := cbor.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

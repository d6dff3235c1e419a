// Package stats provides utilities for tracking cache effectiveness.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// CacheStats tracks cumulative hit/miss/error counts for a result cache.
// All operations are thread-safe using atomic counters.
type CacheStats struct {
	hits   int64
	misses int64
	errors int64 // cache failures degraded to misses
}

// NewCacheStats creates a new CacheStats instance.
func NewCacheStats() *CacheStats {
	return &CacheStats{}
}

// RecordHit increments the hit counter.
func (s *CacheStats) RecordHit() {
	atomic.AddInt64(&s.hits, 1)
}

// RecordMiss increments the miss counter.
func (s *CacheStats) RecordMiss() {
	atomic.AddInt64(&s.misses, 1)
}

// RecordError increments the error counter. Errors are also misses from
// the caller's perspective, but are tracked separately for visibility.
func (s *CacheStats) RecordError() {
	atomic.AddInt64(&s.errors, 1)
}

// Hits returns the total number of cache hits.
func (s *CacheStats) Hits() int64 {
	return atomic.LoadInt64(&s.hits)
}

// Misses returns the total number of cache misses.
func (s *CacheStats) Misses() int64 {
	return atomic.LoadInt64(&s.misses)
}

// Errors returns the total number of cache errors.
func (s *CacheStats) Errors() int64 {
	return atomic.LoadInt64(&s.errors)
}

// Total returns the total number of cache lookups.
func (s *CacheStats) Total() int64 {
	return s.Hits() + s.Misses()
}

// Reset resets all counters to zero.
func (s *CacheStats) Reset() {
	atomic.StoreInt64(&s.hits, 0)
	atomic.StoreInt64(&s.misses, 0)
	atomic.StoreInt64(&s.errors, 0)
}

// String returns a human-readable summary of the statistics.
func (s *CacheStats) String() string {
	return fmt.Sprintf("hits=%d misses=%d errors=%d total=%d", s.Hits(), s.Misses(), s.Errors(), s.Total())
}

// LogSummary logs a summary of cache statistics at INFO level.
// Useful for periodic reporting.
func (s *CacheStats) LogSummary(logger *slog.Logger, cache string) {
	logger.Info("cache statistics",
		"cache", cache,
		"hits", s.Hits(),
		"misses", s.Misses(),
		"errors", s.Errors(),
		"total", s.Total(),
	)
}

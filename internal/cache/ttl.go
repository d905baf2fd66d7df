// Package cache provides the in-memory freshness-window cache used by the rate clients.
package cache

import (
	"strconv"
	"sync"
	"time"

	"currex/internal/metrics"
)

// Freshness windows of the provider caches.
const (
	CurrentRatesTTL    = 5 * time.Minute
	HistoricalRatesTTL = 30 * time.Minute
)

// Option tunes a TTL cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type entry[T any] struct {
	value   T
	created time.Time
}

// TTL is a concurrency-safe map whose entries go stale ttl after they were put.
// Stale entries read as misses and stay in place until overwritten.
type TTL[T any] struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]entry[T]
}

// New builds a cache. name labels the cache in metrics.
func New[T any](name string, ttl time.Duration, opts ...Option) *TTL[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[T]{
		name:    name,
		ttl:     ttl,
		now:     o.now,
		entries: make(map[string]entry[T]),
	}
}

// Get returns the value stored under key if it is still fresh.
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero T
	if !ok {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}
	if c.now().Sub(e.created) >= c.ttl {
		metrics.CacheLookups.WithLabelValues(c.name, "expired").Inc()
		return zero, false
	}
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Put stores value under key with a fresh creation time. Last write wins.
func (c *TTL[T]) Put(key string, value T) {
	e := entry[T]{value: value, created: c.now()}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Len reports the number of stored entries, stale ones included.
func (c *TTL[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the freshness window.
func (c *TTL[T]) TTL() time.Duration {
	return c.ttl
}

// HistoricalKey composes the cache key of a historical request.
func HistoricalKey(currency string, periodDays int) string {
	return currency + "_" + strconv.Itoa(periodDays)
}

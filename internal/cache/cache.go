// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache provides a small in-memory cache with TTL support.
package cache

import (
	"sync"
	"time"
)

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64 // Number of successful Get operations
	Misses      int64 // Number of failed Get operations (not found or expired)
	Sets        int64 // Number of Set operations
	Evictions   int64 // Number of expired entries removed
	CurrentSize int   // Current number of cached entries
}

type entry[V any] struct {
	value      V
	expiration time.Time
}

// Memory is a thread-safe TTL cache. Expired entries are dropped lazily on
// Get and in bulk by Purge; nothing runs in the background.
type Memory[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	stats   Stats
	now     func() time.Time
}

// Option configures a Memory cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewMemory returns an empty cache.
func NewMemory[V any](opts ...Option) *Memory[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Memory[V]{entries: make(map[string]entry[V]), now: o.now}
}

// Get returns the live value for key.
func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiration) {
		delete(c.entries, key)
		c.stats.Evictions++
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl deletes the key.
func (c *Memory[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		delete(c.entries, key)
		return
	}
	c.entries[key] = entry[V]{value: value, expiration: c.now().Add(ttl)}
	c.stats.Sets++
}

// Delete removes a value from the cache.
func (c *Memory[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge removes every expired entry and returns how many were dropped.
func (c *Memory[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for key, e := range c.entries {
		if !now.Before(e.expiration) {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

// Stats returns cache statistics.
func (c *Memory[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

// Package cache provides a small TTL cache shared by the bio query layer and
// the sandbox's compiled module store.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached value with its freshness window.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
	StaleAt   time.Time // after this the value is still served but flagged stale
}

// IsExpired returns true if the entry has expired
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// IsStale returns true if the entry is stale but not expired
func (e *Entry[V]) IsStale(now time.Time) bool {
	return now.After(e.StaleAt) && now.Before(e.ExpiresAt)
}

// Cache defines the interface for keyed caching
type Cache[V any] interface {
	// Get returns (value, found, stale) where stale indicates the value is
	// past its stale time but not yet expired.
	Get(key string) (V, bool, bool)

	// Set stores a value with the given TTL
	Set(key string, value V, ttl time.Duration)

	// SetWithStale stores a value with separate stale and expire times
	SetWithStale(key string, value V, staleAfter, expireAfter time.Duration)

	// Invalidate removes an entry
	Invalidate(key string)

	// InvalidateAll removes every entry
	InvalidateAll()
}

// MemoryCache is an in-memory Cache with background cleanup of expired
// entries. Create it with NewMemoryCache and call Stop when done.
type MemoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[V]
	now     func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// Option configures a MemoryCache.
type Option func(*options)

type options struct {
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cleanupInterval = d
		}
	}
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache[V any](opts ...Option) *MemoryCache[V] {
	o := options{cleanupInterval: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	c := &MemoryCache[V]{
		entries:         make(map[string]*Entry[V]),
		now:             o.now,
		cleanupInterval: o.cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a value from the cache
func (c *MemoryCache[V]) Get(key string) (V, bool, bool) {
	var zero V

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return zero, false, false
	}

	now := c.now()
	if entry.IsExpired(now) {
		c.Invalidate(key)
		return zero, false, false
	}

	return entry.Value, true, entry.IsStale(now)
}

// Set stores a value in the cache with the given TTL
func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	c.SetWithStale(key, value, ttl, ttl)
}

// SetWithStale stores a value with separate stale and expire times
func (c *MemoryCache[V]) SetWithStale(key string, value V, staleAfter, expireAfter time.Duration) {
	now := c.now()
	entry := &Entry[V]{
		Value:     value,
		StaleAt:   now.Add(staleAfter),
		ExpiresAt: now.Add(expireAfter),
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Invalidate removes an entry from the cache
func (c *MemoryCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll removes all entries from the cache
func (c *MemoryCache[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V])
	c.mu.Unlock()
}

func (c *MemoryCache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if entry.IsExpired(now) {
			delete(c.entries, key)
		}
	}
}

// Stop stops the background cleanup goroutine.
// Safe to call multiple times
func (c *MemoryCache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Len returns the number of entries in the cache
func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

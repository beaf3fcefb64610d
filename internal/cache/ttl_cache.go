package cache

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache stores values in memory with one TTL for every entry and an upper bound on size.
// When full, expired entries are swept first and the entry closest to expiry is dropped after that
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	items      map[K]cacheEntry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewTTLCache constructs a cache. maxEntries <= 0 means unbounded
func NewTTLCache[K comparable, V any](ttl time.Duration, maxEntries int) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		items:      make(map[K]cacheEntry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// WithClock replaces the time source, for tests
func (c *TTLCache[K, V]) WithClock(now func() time.Time) *TTLCache[K, V] {
	c.now = now
	return c
}

// Get returns a cached value if it exists and has not expired
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		c.expire(key)
		return zero, false
	}
	return entry.value, true
}

// expire deletes key only if it is still expired under the write lock. A Set that ran after Get
// released its read lock has refreshed the entry and it stays
func (c *TTLCache[K, V]) expire(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.items[key]; ok && c.now().After(entry.expiresAt) {
		delete(c.items, key)
	}
}

func (c *TTLCache[K, V]) Set(key K, value V) {
	if c == nil {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.items[key] = cacheEntry[V]{value: value, expiresAt: now.Add(c.ttl)}
}

func (c *TTLCache[K, V]) evictLocked(now time.Time) {
	var (
		oldest    K
		oldestExp time.Time
		found     bool
	)
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
			continue
		}
		if !found || e.expiresAt.Before(oldestExp) {
			oldest, oldestExp, found = k, e.expiresAt, true
		}
	}
	if len(c.items) >= c.maxEntries && found {
		delete(c.items, oldest)
	}
}

// Delete removes a cached entry
func (c *TTLCache[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Purge drops every entry
func (c *TTLCache[K, V]) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.items = make(map[K]cacheEntry[V])
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

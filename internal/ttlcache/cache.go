// Package ttlcache provides a small in-memory LRU cache whose entries expire
// after a fixed time-to-live. It backs the capability plan cache and the query
// audit throttle.
package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

// entry is a single cache slot
type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// Cache is an in-memory LRU cache with TTL.
// Thread-safe implementation using sync.Mutex
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	lruList *list.List    // Doubly linked list for LRU tracking, front is most recent
	maxSize int           // Maximum number of entries
	ttl     time.Duration // Time-to-live for entries
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// Option configures a Cache
type Option[K comparable, V any] func(*Cache[K, V])

// WithClock overrides the time source
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.now = now
	}
}

// New creates a cache holding at most maxSize entries for ttl each
func New[K comparable, V any](maxSize int, ttl time.Duration, opts ...Option[K, V]) *Cache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache[K, V]{
		entries: make(map[K]*entry[K, V]),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if present and not expired
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists || c.expired(e) {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		var zero V
		return zero, false
	}

	c.lruList.MoveToFront(e.element)
	c.hits++
	return e.value, true
}

// Set stores value under key, resetting its TTL
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.entries[key]; exists {
		e.value = value
		e.insertedAt = c.now()
		c.lruList.MoveToFront(e.element)
		return
	}
	c.insert(key, value)
}

// SetIfAbsent stores value only when key has no live entry.
// It reports whether the value was stored.
func (c *Cache[K, V]) SetIfAbsent(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.entries[key]; exists {
		if !c.expired(e) {
			return false
		}
		c.removeEntry(key)
	}
	c.insert(key, value)
	return true
}

// Len returns the number of entries, including expired ones not yet collected
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Stats represents cache statistics
type Stats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// must be called with lock held
func (c *Cache[K, V]) insert(key K, value V) {
	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}
	e := &entry[K, V]{key: key, value: value, insertedAt: c.now()}
	e.element = c.lruList.PushFront(key)
	c.entries[key] = e
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

// must be called with lock held
func (c *Cache[K, V]) removeEntry(key K) {
	if e, exists := c.entries[key]; exists {
		c.lruList.Remove(e.element)
		delete(c.entries, key)
	}
}

// must be called with lock held
func (c *Cache[K, V]) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(K)
	c.lruList.Remove(back)
	delete(c.entries, key)
}

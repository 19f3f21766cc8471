// Package cache provides a bounded, concurrency-safe LRU cache with TTL
// eviction, used by the inference client's embedding/rerank caches and the
// query classifier's result cache.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a fixed-capacity, LRU-evicting cache with a TTL applied at read
// time. A stale entry is treated as a miss and evicted.
type Cache[K comparable, V any] struct {
	lru *lru.LRU[K, V]
}

// New creates a Cache with the given capacity and TTL. Defaults per spec are
// 500-1000 entries and a 1 hour TTL; callers choose the exact values.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{lru: lru.NewLRU[K, V](capacity, nil, ttl)}
}

// Get returns the cached value and true if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Set inserts or replaces the value for key, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *Cache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Clear empties the cache.
func (c *Cache[K, V]) Clear() {
	c.lru.Purge()
}

// Remove evicts key, if present.
func (c *Cache[K, V]) Remove(key K) {
	c.lru.Remove(key)
}

// Size returns the number of entries currently cached (including any not yet
// lazily expired).
func (c *Cache[K, V]) Size() int {
	return c.lru.Len()
}

package fieldmap

import (
	"sync"
)

// Cache is a two-generation map with cheap rotation to bound memory. curr is
// the hot set and prev the previous generation; lookups in prev promote.
type Cache[K comparable, V any] struct {
	mu   sync.RWMutex
	curr map[K]V
	prev map[K]V
	max  int
}

// NewCache returns a cache rotating after max entries (DefaultCacheSize when
// max <= 0).
func NewCache[K comparable, V any](max int) *Cache[K, V] {
	if max <= 0 {
		max = DefaultCacheSize
	}
	return &Cache[K, V]{
		curr: make(map[K]V, max/2),
		prev: make(map[K]V),
		max:  max,
	}
}

// Get returns the value cached for k.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.RLock()
	if v, ok := c.curr[k]; ok {
		c.mu.RUnlock()
		return v, true
	}
	v, ok := c.prev[k]
	c.mu.RUnlock()
	if !ok {
		return v, false
	}
	c.mu.Lock()
	c.rotate()
	c.curr[k] = v
	c.mu.Unlock()
	return v, true
}

// Put stores v under k.
func (c *Cache[K, V]) Put(k K, v V) {
	c.mu.Lock()
	c.rotate()
	c.curr[k] = v
	c.mu.Unlock()
}

// Len returns the number of entries held by both generations. A promoted
// entry is counted twice.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.curr) + len(c.prev)
}

// rotate must be called with mu held.
func (c *Cache[K, V]) rotate() {
	if len(c.curr) >= c.max {
		c.prev = c.curr
		c.curr = make(map[K]V, c.max/2)
	}
}

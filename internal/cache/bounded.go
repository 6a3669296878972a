// Package cache provides a small bounded map used for the revocation and
// permission accelerators. Eviction drops the oldest half of the entries
// rather than tracking precise recency; a false miss only costs one extra
// durable lookup.
package cache

import "sync"

// Bounded is a fixed-capacity map with insertion-order eviction.
type Bounded[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[K]V
	order    []K
}

// NewBounded returns a cache holding at most capacity entries.
func NewBounded[K comparable, V any](capacity int) *Bounded[K, V] {
	if capacity < 2 {
		capacity = 2
	}
	return &Bounded[K, V]{
		capacity: capacity,
		entries:  make(map[K]V, capacity),
	}
}

// Get returns the cached value for key.
func (c *Bounded[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores key. When the cache is full the oldest half is evicted first.
func (c *Bounded[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = value
		return
	}
	if len(c.entries) >= c.capacity {
		c.evictOldestHalf()
	}
	c.entries[key] = value
	c.order = append(c.order, key)
}

// Delete removes key if present.
func (c *Bounded[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// DeleteFunc removes every entry whose key matches the predicate.
func (c *Bounded[K, V]) DeleteFunc(match func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	for _, k := range c.order {
		if match(k) {
			delete(c.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
}

// Len reports the number of cached entries.
func (c *Bounded[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops everything.
func (c *Bounded[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]V, c.capacity)
	c.order = nil
}

func (c *Bounded[K, V]) evictOldestHalf() {
	drop := len(c.order) / 2
	if drop == 0 {
		drop = 1
	}
	for _, k := range c.order[:drop] {
		delete(c.entries, k)
	}
	c.order = append(c.order[:0], c.order[drop:]...)
}

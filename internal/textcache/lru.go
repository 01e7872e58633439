// Package textcache is a bounded LRU cache of decompressed volume texts.
package textcache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCapacity = 256

// Cache is a bounded, deterministic least-recently-used cache keyed by
// volume id.
type Cache struct {
	inner *lru.Cache[string, string]
}

// New builds a Cache with the given capacity; 0 falls back to the spec's
// default of 256.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	inner, _ := lru.New[string, string](capacity)
	return &Cache{inner: inner}
}

func (c *Cache) Get(id string) (string, bool) {
	return c.inner.Get(id)
}

func (c *Cache) Put(id, text string) {
	c.inner.Add(id, text)
}

func (c *Cache) Invalidate(id string) {
	c.inner.Remove(id)
}

func (c *Cache) Clear() {
	c.inner.Purge()
}

func (c *Cache) Len() int {
	return c.inner.Len()
}

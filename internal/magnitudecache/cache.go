// Package magnitudecache memoizes vector norms for search.
package magnitudecache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"vellum/internal/cosine"
)

const defaultCapacity = 4096

// Cache memoizes ‖v‖ per id in a bounded, least-recently-used cache, so a
// corpus far larger than fits comfortably in memory still bounds this
// cache's footprint instead of growing it unboundedly with Stacks.
type Cache struct {
	inner *lru.Cache[string, float64]
}

// New builds a Cache sized for typical shelf working sets.
func New() *Cache {
	inner, _ := lru.New[string, float64](defaultCapacity)
	return &Cache{inner: inner}
}

// Put stores the magnitude of v under id, computing it from scratch.
func (c *Cache) Put(id string, v []float32) {
	c.inner.Add(id, cosine.Magnitude(v))
}

// Get returns the cached magnitude and whether it was present.
func (c *Cache) Get(id string) (float64, bool) {
	return c.inner.Get(id)
}

// Invalidate removes id's cached magnitude, used on update/delete.
func (c *Cache) Invalidate(id string) {
	c.inner.Remove(id)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.inner.Purge()
}

// Package cache holds short-lived relay responses. Entries expire after a
// TTL and are dropped early when the projection changes.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache wraps go-cache.
type Cache struct {
	store *gocache.Cache
}

// New creates a cache whose entries live for defaultTTL.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{store: gocache.New(defaultTTL, cleanupInterval)}
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (any, bool) {
	return c.store.Get(key)
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// Delete removes a value from the cache.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// Clear removes all items from the cache.
func (c *Cache) Clear() {
	c.store.Flush()
}

// ItemCount returns the number of items in the cache, including expired
// items not yet cleaned up.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// Remember returns the cached value for key, computing and storing it with
// load on a miss. Concurrent misses may each call load.
func Remember[T any](c *Cache, key string, load func() T) T {
	if v, ok := c.store.Get(key); ok {
		if t, ok := v.(T); ok {
			return t
		}
	}
	v := load()
	c.store.Set(key, v, gocache.DefaultExpiration)
	return v
}

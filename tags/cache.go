package tags

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheLimit is the maximum number of tags kept when no limit is given.
const DefaultCacheLimit = 100

// Cache is a bounded, deduplicating store of hashtags ordered by recency.
// The most recently added tag is at the front; the oldest is evicted first.
type Cache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, struct{}]
}

// NewCache creates a cache holding at most limit tags.
func NewCache(limit int) (*Cache, error) {
	l, err := simplelru.NewLRU[string, struct{}](limit, nil)
	if err != nil {
		return nil, fmt.Errorf("create tag cache: %w", err)
	}
	return &Cache{lru: l}, nil
}

// Add inserts tag at the front. An existing copy is moved rather than
// duplicated, and the oldest tags are evicted once the limit is exceeded.
func (c *Cache) Add(tag string) {
	if tag == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(tag, struct{}{})
}

// Remove deletes tag if present.
func (c *Cache) Remove(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(tag)
}

// Contains reports whether tag is cached.
func (c *Cache) Contains(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(tag)
}

// Len returns the number of cached tags.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Snapshot returns a copy of the cached tags, most recent first.
func (c *Cache) Snapshot() []string {
	c.mu.Lock()
	keys := c.lru.Keys()
	c.mu.Unlock()

	// Keys are ordered oldest to newest.
	out := make([]string, len(keys))
	for i, k := range keys {
		out[len(keys)-1-i] = k
	}
	return out
}

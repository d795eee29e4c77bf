// Package eventcache provides a bounded-lifetime set of opaque string keys
// used to answer "have we already emitted an event for this identifier".
package eventcache

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxEntries is the ceiling above which owners should invoke
// TrimCount to bound memory.
const DefaultMaxEntries = 250

// Cache is a thread-safe set of keys with insertion timestamps.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Add records key with the current timestamp. Re-adding an existing key
// refreshes its timestamp.
func (c *Cache) Add(key string) {
	c.mu.Lock()
	c.entries[key] = c.now()
	c.mu.Unlock()
}

// Find reports whether key is present. Safe to call before any Add.
func (c *Cache) Find(key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	c.mu.Unlock()
	return ok
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return n
}

// Purge removes all entries.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]time.Time)
	c.mu.Unlock()
}

// Trim drops entries older than maxAge and returns how many were removed.
func (c *Cache) Trim(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, at := range c.entries {
		if at.Before(cutoff) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// TrimCount drops the oldest entries until at most max remain and returns
// how many were removed.
func (c *Cache) TrimCount(max int) int {
	if max < 0 {
		max = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	excess := len(c.entries) - max
	if excess <= 0 {
		return 0
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, at := range c.entries {
		all = append(all, aged{key, at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for _, e := range all[:excess] {
		delete(c.entries, e.key)
	}
	return excess
}

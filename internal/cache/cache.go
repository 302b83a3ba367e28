// Package cache is a process-wide TTL cache in front of the GitHub contents
// API. It is a disposable read accelerator: the repository stays the single
// source of truth and every entry can be dropped at any time.
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value   any
	expires time.Time
}

// Cache maps composite string keys to values with a single fixed TTL.
// Expiry is lazy: an expired entry is evicted the next time a read touches
// it. There is no background sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expires: c.now().Add(c.ttl)}
}

// Invalidate removes every entry whose key starts with prefix. Writers call
// this so the next read of a just-written path observes the new value.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

package gateway

import (
	"strings"
	"sync"
	"time"
)

// responseCache is a bounded key→(value, expiry) map for successful GET
// responses. Keys are "METHOD path?query". Expired entries are dropped
// lazily on access; when the cache is full the entry closest to expiry is
// evicted.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body    []byte
	expires time.Time
}

func newResponseCache(ttl time.Duration, max int) *responseCache {
	if max <= 0 {
		max = 256
	}
	return &responseCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]cacheEntry),
	}
}

func (c *responseCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.body, true
}

func (c *responseCache) put(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.evictSoonestLocked()
	}
	c.entries[key] = cacheEntry{body: body, expires: time.Now().Add(c.ttl)}
}

func (c *responseCache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expires.Before(soonest) {
			victim = k
			soonest = e.expires
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

// invalidatePrefix drops every entry whose key starts with prefix.
func (c *responseCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// clear drops everything.
func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

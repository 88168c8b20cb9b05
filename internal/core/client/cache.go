package client

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a cached GET response is served.
const DefaultCacheTTL = 60 * time.Second

type cacheEntry struct {
	body      []byte
	header    http.Header
	etag      string
	createdAt time.Time
}

// RequestCache is a short-lived in-memory cache of GET responses keyed by
// method and full URL. Entries expire on read; Clear drops everything.
type RequestCache struct {
	TTL   time.Duration
	Clock func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewRequestCache returns an empty cache. ttl <= 0 selects DefaultCacheTTL.
func NewRequestCache(ttl time.Duration) *RequestCache {
	return &RequestCache{TTL: ttl, entries: make(map[string]cacheEntry)}
}

func cacheKey(method, fullURL string) string {
	return method + ":" + fullURL
}

func (c *RequestCache) get(key string) (cacheEntry, bool) {
	if c == nil {
		return cacheEntry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	if c.now().Sub(entry.createdAt) >= c.ttl() {
		delete(c.entries, key)
		return cacheEntry{}, false
	}
	// callers own what they get back
	entry.body = bytes.Clone(entry.body)
	entry.header = entry.header.Clone()
	return entry, true
}

func (c *RequestCache) put(key string, body []byte, header http.Header) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]cacheEntry)
	}
	c.entries[key] = cacheEntry{
		body:      bytes.Clone(body),
		header:    header.Clone(),
		etag:      header.Get("ETag"),
		createdAt: c.now(),
	}
}

// Clear drops all entries.
func (c *RequestCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *RequestCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *RequestCache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return DefaultCacheTTL
}

func (c *RequestCache) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

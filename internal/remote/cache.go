package remote

import (
	"sync"
	"time"
)

// DefaultCacheTTL is the default time-to-live for the cached server list.
const DefaultCacheTTL = 10 * time.Minute

// ServerCache is a thread-safe cache for the server directory.
type ServerCache struct {
	mu        sync.RWMutex
	servers   []Server
	lastFetch time.Time
	ttl       time.Duration
}

// NewServerCache creates a cache with the given TTL.
func NewServerCache(ttl time.Duration) *ServerCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ServerCache{ttl: ttl}
}

// Get returns the cached list if present and fresh.
func (c *ServerCache) Get() ([]Server, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.servers) == 0 || time.Since(c.lastFetch) > c.ttl {
		return nil, false
	}
	result := make([]Server, len(c.servers))
	copy(result, c.servers)
	return result, true
}

// Set replaces the cached list.
func (c *ServerCache) Set(servers []Server) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.servers = make([]Server, len(servers))
	copy(c.servers, servers)
	c.lastFetch = time.Now()
}

// Clear empties the cache.
func (c *ServerCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.servers = nil
	c.lastFetch = time.Time{}
}

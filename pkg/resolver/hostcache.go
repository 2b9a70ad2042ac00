package resolver

import (
	"container/list"
	"sync"
	"time"
)

// HostCache caches IP address to hostname lookups (LRU + TTL).
//
// A nil *HostCache is valid and caches nothing.
type HostCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	lru        *list.List
	now        func() time.Time

	hits   uint64
	misses uint64
}

type hostCacheEntry struct {
	ip        string
	host      string
	timestamp time.Time
}

// NewHostCache creates a cache holding at most maxEntries lookups for ttl.
// A zero ttl keeps entries until evicted.
func NewHostCache(maxEntries int, ttl time.Duration) *HostCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &HostCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		now:        time.Now,
	}
}

// Get returns the cached hostname for ip.
func (c *HostCache) Get(ip string) (string, bool) {
	if c == nil {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[ip]
	if !ok {
		c.misses++
		return "", false
	}
	entry := elem.Value.(*hostCacheEntry)
	if c.ttl > 0 && c.now().Sub(entry.timestamp) > c.ttl {
		c.lru.Remove(elem)
		delete(c.entries, ip)
		c.misses++
		return "", false
	}

	c.lru.MoveToFront(elem)
	c.hits++
	return entry.host, true
}

// Put caches host for ip, evicting the least recently used entry when full.
func (c *HostCache) Put(ip, host string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[ip]; ok {
		entry := elem.Value.(*hostCacheEntry)
		entry.host = host
		entry.timestamp = c.now()
		c.lru.MoveToFront(elem)
		return
	}

	if c.lru.Len() >= c.maxEntries {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*hostCacheEntry).ip)
	}
	c.entries[ip] = c.lru.PushFront(&hostCacheEntry{ip: ip, host: host, timestamp: c.now()})
}

// Stats returns hit and miss counts.
func (c *HostCache) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached entries.
func (c *HostCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

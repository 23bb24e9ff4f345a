package authorization

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/identity-core/models"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	key        string
	link       *models.IdentityLink
	insertedAt time.Time
	element    *list.Element
}

// LinkCache is an in-memory LRU cache with TTL for identity links, keyed by
// provider and subject. Links never change after creation, but a deleted
// user's links linger until they expire or are invalidated.
type LinkCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// NewLinkCache creates a new LinkCache with specified max size and TTL
func NewLinkCache(maxSize int, ttl time.Duration) *LinkCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LinkCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached link, or nil if absent or expired
func (c *LinkCache) Get(provider, sub string) *models.IdentityLink {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := models.LinkKey(provider, sub)
	entry, exists := c.entries[key]
	if !exists || c.now().Sub(entry.insertedAt) > c.ttl {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.link
}

// Set stores a link
func (c *LinkCache) Set(link *models.IdentityLink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := link.Key()
	if entry, exists := c.entries[key]; exists {
		entry.link = link
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{key: key, link: link, insertedAt: c.now()}
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry
}

// Invalidate removes a single link
func (c *LinkCache) Invalidate(provider, sub string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(models.LinkKey(provider, sub))
}

// Clear removes all entries from the cache
func (c *LinkCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// Stats returns cache statistics
func (c *LinkCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CleanupExpired removes all expired entries and returns how many were dropped
func (c *LinkCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.insertedAt) > c.ttl {
			c.removeEntry(key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically drops expired entries until stopCh closes
func (c *LinkCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

// must be called with lock held
func (c *LinkCache) removeEntry(key string) {
	if entry, exists := c.entries[key]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
	}
}

// must be called with lock held
func (c *LinkCache) evictLRU() {
	if back := c.lruList.Back(); back != nil {
		c.lruList.Remove(back)
		delete(c.entries, back.Value.(string))
	}
}

package geocode

import (
	"context"
	"sync"
	"time"
)

// EntryKind distinguishes cached matches from cached misses.
type EntryKind string

const (
	KindFound    EntryKind = "found"
	KindNotFound EntryKind = "not_found"
)

// Entry is a cached lookup outcome.
type Entry struct {
	Kind    EntryKind `json:"kind"`
	Lat     float64   `json:"lat,omitempty"`
	Lon     float64   `json:"lon,omitempty"`
	Address string    `json:"address,omitempty"`
}

// Cache stores lookup outcomes with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
}

// DefaultMemoryCacheSize bounds MemoryCache when no size is given.
const DefaultMemoryCacheSize = 10000

type memoryItem struct {
	entry   Entry
	expires time.Time
}

// MemoryCache is an in-process Cache. Expired entries are dropped lazily.
type MemoryCache struct {
	mu       sync.Mutex
	items    map[string]memoryItem
	maxItems int
	now      func() time.Time
}

// NewMemoryCache creates a MemoryCache holding at most maxItems entries.
func NewMemoryCache(maxItems int) *MemoryCache {
	if maxItems <= 0 {
		maxItems = DefaultMemoryCacheSize
	}
	return &MemoryCache{
		items:    make(map[string]memoryItem),
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return Entry{}, false, nil
	}
	if !c.now().Before(item.expires) {
		delete(c.items, key)
		return Entry{}, false, nil
	}
	return item.entry, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, e Entry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		c.evictLocked(now)
	}
	c.items[key] = memoryItem{entry: e, expires: now.Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictLocked drops expired entries, or the entry closest to expiry when none
// have expired.
func (c *MemoryCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, item := range c.items {
		if !now.Before(item.expires) {
			delete(c.items, k)
			continue
		}
		if oldestKey == "" || item.expires.Before(oldest) {
			oldestKey, oldest = k, item.expires
		}
	}
	if len(c.items) >= c.maxItems && oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

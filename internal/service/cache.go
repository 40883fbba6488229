package service

import (
	"sync"
	"time"

	"github.com/freshlane/realtime-go/internal/model"
)

type cacheEntry struct {
	conv    *model.Conversation
	expires time.Time
}

// DirectoryCache is a short-lived read-through cache keyed by customer id.
// Entries are never served past their expiry instant, and creation of a new
// conversation must invalidate the key explicitly so a cached "not found"
// cannot shadow the new record.
type DirectoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[int64]cacheEntry
}

func NewDirectoryCache(ttl time.Duration) *DirectoryCache {
	return &DirectoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]cacheEntry),
	}
}

func (c *DirectoryCache) Get(customerID int64) (*model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[customerID]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, customerID)
		return nil, false
	}
	return entry.conv, true
}

func (c *DirectoryCache) Set(customerID int64, conv *model.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[customerID] = cacheEntry{conv: conv, expires: c.now().Add(c.ttl)}
}

func (c *DirectoryCache) Invalidate(customerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, customerID)
}

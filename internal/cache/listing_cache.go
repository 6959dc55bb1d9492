package cache

import (
	"errors"
	"sync"
	"time"

	"stockroom/internal/models"
)

// ErrMiss is returned by Get when no listing snapshot is held.
var ErrMiss = errors.New("listing cache miss")

// MemoryListingCache keeps one listing snapshot in process memory.
type MemoryListingCache struct {
	mu       sync.RWMutex
	listing  *models.Listing
	storedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryListingCache creates a cache whose snapshot expires after ttl.
// A ttl of zero keeps the snapshot until it is invalidated.
func NewMemoryListingCache(ttl time.Duration) *MemoryListingCache {
	return &MemoryListingCache{
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the cached listing, or ErrMiss.
func (c *MemoryListingCache) Get() (*models.Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.listing == nil {
		return nil, ErrMiss
	}
	if c.ttl > 0 && c.now().Sub(c.storedAt) > c.ttl {
		return nil, ErrMiss
	}
	return c.listing, nil
}

// Set stores a listing snapshot.
func (c *MemoryListingCache) Set(listing *models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listing = listing
	c.storedAt = c.now()
	return nil
}

// InvalidateListing drops the snapshot.
func (c *MemoryListingCache) InvalidateListing() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listing = nil
}

// Package dedup suppresses duplicate alerts arising from the same underlying
// condition, keyed by a normalized alert fingerprint with a TTL.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/models"
)

const (
	// DefaultTTL is how long a fingerprint suppresses repeats.
	DefaultTTL = 5 * time.Minute
	// CleanupInterval is how often expired entries are dropped.
	CleanupInterval = 1 * time.Minute
)

// Entry tracks one fingerprint. Expired when now > ExpiresAt.
type Entry struct {
	Fingerprint string        `json:"fingerprint"`
	FirstSeen   models.Millis `json:"firstSeen"`
	LastSeen    models.Millis `json:"lastSeen"`
	Count       int           `json:"count"`
	ExpiresAt   models.Millis `json:"expiresAt"`
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Size            int `json:"size"`
	SuppressedCount int `json:"suppressedCount"`
}

// Cache is the in-memory fingerprint TTL map. Process-wide singleton in the
// wired pipeline, but freely constructible for tests.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	ttl        time.Duration
	suppressed int
	now        func() time.Time
}

// NewCache creates a cache with the given default TTL (DefaultTTL when <= 0).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Exists reports whether a non-expired entry is present for the fingerprint.
func (c *Cache) Exists(fp string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	return ok && !c.expired(e)
}

// Set records a sighting of the fingerprint. An existing live entry has its
// LastSeen, Count, and ExpiresAt refreshed and counts as a suppression; an
// absent or expired one is created fresh. Returns the entry after update.
func (c *Cache) Set(fp string, ttl time.Duration) *Entry {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[fp]; ok && !c.expired(e) {
		e.LastSeen = models.NewMillis(now)
		e.Count++
		e.ExpiresAt = models.NewMillis(now.Add(ttl))
		c.suppressed++
		copied := *e
		return &copied
	}

	e := &Entry{
		Fingerprint: fp,
		FirstSeen:   models.NewMillis(now),
		LastSeen:    models.NewMillis(now),
		Count:       1,
		ExpiresAt:   models.NewMillis(now.Add(ttl)),
	}
	c.entries[fp] = e
	copied := *e
	return &copied
}

// Get returns a copy of the live entry for the fingerprint, if any.
func (c *Cache) Get(fp string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	if !ok || c.expired(e) {
		return Entry{}, false
	}
	copied := *e
	return copied, true
}

// Delete removes the fingerprint.
func (c *Cache) Delete(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fp)
}

// Cleanup drops expired entries and returns how many were removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for fp, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, fp)
			removed++
		}
	}
	return removed
}

// Stats returns the current size and total suppressions.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: len(c.entries), SuppressedCount: c.suppressed}
}

// Start runs the periodic cleanup until the context is cancelled.
func (c *Cache) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.Cleanup(); removed > 0 {
					log.Debug().Int("removed", removed).Msg("fingerprint cache cleanup")
				}
			}
		}
	}()
}

func (c *Cache) expired(e *Entry) bool {
	return c.now().After(e.ExpiresAt.Time)
}

// Package analysiscache caches reusable analysis text per alert fingerprint
// so that repeated occurrences of the same condition do not re-run the
// analyzer. Entries expire by TTL and the cache evicts least-recently-used
// entries at capacity.
package analysiscache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultTTL is how long cached analysis text stays valid.
	DefaultTTL = 30 * time.Minute
	// DefaultMaxEntries bounds the cache size before LRU eviction.
	DefaultMaxEntries = 200
	// CleanupInterval is how often expired entries are dropped.
	CleanupInterval = 5 * time.Minute
)

type entry struct {
	key       string
	value     string
	expiresAt time.Time
}

// Cache maps alert fingerprints to analysis text with TTL and LRU eviction.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	ttl     time.Duration
	max     int
	now     func() time.Time
}

// New creates a cache. Zero ttl or max selects the defaults.
func New(ttl time.Duration, max int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// Get returns the cached analysis for a fingerprint, refreshing its LRU
// position on hit.
func (c *Cache) Get(fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		return "", false
	}
	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeLocked(el)
		return "", false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores analysis text for a fingerprint, evicting the LRU entry when
// at capacity.
func (c *Cache) Set(fingerprint, analysis string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fingerprint]; ok {
		e := el.Value.(*entry)
		e.value = analysis
		e.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.max {
		if back := c.order.Back(); back != nil {
			c.removeLocked(back)
		}
	}

	el := c.order.PushFront(&entry{
		key:       fingerprint,
		value:     analysis,
		expiresAt: c.now().Add(c.ttl),
	})
	c.entries[fingerprint] = el
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup drops expired entries and returns how many were removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.now().After(el.Value.(*entry).expiresAt) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
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
					log.Debug().Int("removed", removed).Msg("analysis cache cleanup")
				}
			}
		}
	}()
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
}

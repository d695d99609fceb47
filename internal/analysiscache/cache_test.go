package analysiscache

import (
	"testing"
	"time"
)

func TestGetMissAndHit(t *testing.T) {
	c := New(time.Minute, 4)
	if _, ok := c.Get("fp"); ok {
		t.Fatal("hit on empty cache")
	}
	c.Set("fp", "cpu saturated by routing recalculation")
	got, ok := c.Get("fp")
	if !ok || got != "cpu saturated by routing recalculation" {
		t.Fatalf("get = %q, %v", got, ok)
	}
}

func TestExpiryByTTL(t *testing.T) {
	c := New(time.Minute, 4)
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("fp", "analysis")
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("fp"); ok {
		t.Fatal("expired entry served")
	}
	if c.Len() != 0 {
		t.Fatalf("len = %d after lazy expiry", c.Len())
	}
}

func TestSetRefreshesExistingEntry(t *testing.T) {
	c := New(time.Minute, 4)
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("fp", "first")
	now = now.Add(45 * time.Second)
	c.Set("fp", "second")

	// The rewrite restarted the TTL clock.
	now = now.Add(45 * time.Second)
	got, ok := c.Get("fp")
	if !ok || got != "second" {
		t.Fatalf("get = %q, %v", got, ok)
	}
}

func TestLRUEvictionAtCapacity(t *testing.T) {
	c := New(time.Hour, 2)
	c.Set("a", "1")
	c.Set("b", "2")

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatal("least-recently-used entry survived")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("recently-used entry evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	c := New(time.Minute, 8)
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("old1", "x")
	c.Set("old2", "x")
	now = now.Add(30 * time.Second)
	c.Set("fresh", "x")
	now = now.Add(45 * time.Second)

	if removed := c.Cleanup(); removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatal("fresh entry removed")
	}
}

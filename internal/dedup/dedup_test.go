package dedup

import (
	"testing"
	"time"

	"github.com/btnalit/routeros-aiops/internal/models"
)

func TestNormalizeMessage(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			"login failure for user admin from 192.168.88.254 via ssh",
			"login failure for user admin from <IP> via ssh",
		},
		{
			"connection from 10.0.0.5:51234 refused",
			"connection from <IP>:<PORT> refused",
		},
		{
			"session 550e8400-e29b-41d4-a716-446655440000 expired at 2026-03-02T11:04:05Z",
			"session <SESSION> expired at <TIMESTAMP>",
		},
		{
			"peer fe80::1a2b:3c4d:5e6f:7a8b unreachable",
			"peer <IP> unreachable",
		},
		{
			"token deadbeefdeadbeefdeadbeef rejected on port 8728",
			"token <SESSION> rejected on port <PORT>",
		},
		{
			"lease expired 1767345600",
			"lease expired <TIMESTAMP>",
		},
		{"interface ether1 link down", "interface ether1 link down"},
	}
	for _, c := range cases {
		if got := NormalizeMessage(c.in); got != c.want {
			t.Errorf("NormalizeMessage(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFingerprintStableAcrossDynamicParts(t *testing.T) {
	a := Fingerprint("rule-1", models.MetricCPU, models.SeverityWarning,
		"login failure from 192.168.1.10 at 2026-03-02T10:00:00Z")
	b := Fingerprint("rule-1", models.MetricCPU, models.SeverityWarning,
		"login failure from 10.9.8.7 at 2026-03-02T11:30:00Z")
	if a != b {
		t.Fatal("fingerprints differ across dynamic-only changes")
	}

	c := Fingerprint("rule-1", models.MetricCPU, models.SeverityCritical,
		"login failure from 192.168.1.10 at 2026-03-02T10:00:00Z")
	if a == c {
		t.Fatal("fingerprints identical across severities")
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintEventUsesRuleWhenPresent(t *testing.T) {
	base := &models.UnifiedEvent{
		Severity: models.SeverityWarning,
		Category: "system",
		Message:  "cpu usage high",
	}
	withRule := base.Clone()
	withRule.AlertRuleInfo = &models.AlertRuleInfo{RuleID: "rule-1", Metric: models.MetricCPU}

	if FingerprintEvent(base) == FingerprintEvent(withRule) {
		t.Fatal("rule identity not part of the fingerprint")
	}
}

func TestCacheSuppressionWindow(t *testing.T) {
	cache := NewCache(5 * time.Minute)
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	fp := "abc"
	first := cache.Set(fp, 0)
	if first.Count != 1 {
		t.Fatalf("first count = %d", first.Count)
	}
	if !cache.Exists(fp) {
		t.Fatal("entry missing after Set")
	}

	now = now.Add(2 * time.Minute)
	second := cache.Set(fp, 0)
	if second.Count != 2 {
		t.Fatalf("second count = %d", second.Count)
	}
	if second.FirstSeen != first.FirstSeen {
		t.Fatal("FirstSeen rewritten on refresh")
	}
	if stats := cache.Stats(); stats.SuppressedCount != 1 {
		t.Fatalf("suppressed = %d, want 1", stats.SuppressedCount)
	}

	// The refresh extended the TTL from the second sighting.
	now = now.Add(4 * time.Minute)
	if !cache.Exists(fp) {
		t.Fatal("entry expired before extended TTL")
	}
	now = now.Add(2 * time.Minute)
	if cache.Exists(fp) {
		t.Fatal("entry alive past TTL")
	}

	// A sighting after expiry starts a fresh window.
	fresh := cache.Set(fp, 0)
	if fresh.Count != 1 {
		t.Fatalf("post-expiry count = %d, want 1", fresh.Count)
	}
}

func TestCacheCleanup(t *testing.T) {
	cache := NewCache(time.Minute)
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("a", 0)
	cache.Set("b", 10*time.Minute)

	now = now.Add(2 * time.Minute)
	if removed := cache.Cleanup(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := cache.Get("b"); !ok {
		t.Fatal("long-TTL entry removed")
	}
	if stats := cache.Stats(); stats.Size != 1 {
		t.Fatalf("size = %d", stats.Size)
	}
}

func TestCacheDelete(t *testing.T) {
	cache := NewCache(time.Minute)
	cache.Set("a", 0)
	cache.Delete("a")
	if cache.Exists("a") {
		t.Fatal("entry survived delete")
	}
}

package audit

import (
	"testing"
	"time"

	"github.com/btnalit/routeros-aiops/internal/models"
)

func TestRecordAssignsIdentity(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e := l.Record(Entry{Action: "rule_create", Actor: "user", Resource: "rule-1"})
	if e == Skip {
		t.Fatal("entry skipped")
	}
	if len(e.ID) != 26 {
		t.Fatalf("id = %q, want a 26-char ulid", e.ID)
	}
	if e.Timestamp.Time.IsZero() {
		t.Fatal("timestamp not assigned")
	}
}

func TestEmptyActionReturnsSkip(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e := l.Record(Entry{Actor: "user"}); e != Skip {
		t.Fatalf("expected Skip sentinel, got %+v", e)
	}

	entries, err := l.Query(Query{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want none", entries)
	}
}

func TestQueryFiltersAndOrders(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Action("rule_create", "user", "rule-1", "cpu rule")
	l.Action("alert_trigger", "rule_engine", "evt-1", "cpu high")
	l.Action("rule_create", "user", "rule-2", "mem rule")

	entries, err := l.Query(Query{Action: "rule_create"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Resource != "rule-2" || entries[1].Resource != "rule-1" {
		t.Fatalf("order = %s, %s", entries[0].Resource, entries[1].Resource)
	}

	byActor, err := l.Query(Query{Actor: "rule_engine"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byActor) != 1 || byActor[0].Action != "alert_trigger" {
		t.Fatalf("byActor = %+v", byActor)
	}
}

func TestQueryLimit(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		l.Action("config_change", "snapshot-store", "snap", "dangerous_change_detection")
	}
	entries, err := l.Query(Query{Limit: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
}

func TestIDsAreMonotonicWithinProcess(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := l.Action("a", "x", "", "")
	b := l.Action("b", "x", "", "")
	if !(a.ID < b.ID) {
		t.Fatalf("ids not ordered: %s then %s", a.ID, b.ID)
	}
}

func TestSweepDropsExpiredDays(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Record always stamps the current time, so seed the expired day
	// directly.
	old := models.NewMillis(time.Now().UTC().AddDate(0, 0, -120))
	if err := l.store.Append(old.DayKey(), Entry{ID: "old", Timestamp: old, Action: "rule_create", Actor: "user"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	l.Action("rule_create", "user", "rule-1", "")

	if removed := l.Sweep(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	entries, err := l.Query(Query{From: time.Now().UTC().AddDate(0, 0, -365)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].Resource != "rule-1" {
		t.Fatalf("entries = %+v, want only the recent record", entries)
	}
}

func TestQueryTimeWindow(t *testing.T) {
	l, err := New(t.TempDir(), 90)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Action("rule_create", "user", "rule-1", "")

	future := time.Now().Add(time.Hour)
	entries, err := l.Query(Query{From: future})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v, want none after future cutoff", entries)
	}
}

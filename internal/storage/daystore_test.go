package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type record struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestAppendAndReadDay(t *testing.T) {
	store, err := NewDayStore[record](t.TempDir())
	if err != nil {
		t.Fatalf("NewDayStore: %v", err)
	}

	if err := store.Append("2026-03-01", record{ID: "a", Value: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append("2026-03-01", record{ID: "b", Value: 2}, record{ID: "c", Value: 3}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	records, err := store.ReadDay("2026-03-01")
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(records) != 3 || records[0].ID != "a" || records[2].Value != 3 {
		t.Fatalf("records = %+v", records)
	}
}

func TestReadMissingDayIsEmpty(t *testing.T) {
	store, err := NewDayStore[record](t.TempDir())
	if err != nil {
		t.Fatalf("NewDayStore: %v", err)
	}
	records, err := store.ReadDay("2026-01-01")
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %+v, want empty", records)
	}
}

func TestRangeSpansDaysInclusive(t *testing.T) {
	store, err := NewDayStore[record](t.TempDir())
	if err != nil {
		t.Fatalf("NewDayStore: %v", err)
	}
	for i, day := range []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-05"} {
		if err := store.Append(day, record{ID: day, Value: i}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	from := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC)
	records, err := store.Range(from, to)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(records) != 2 || records[0].ID != "2026-03-02" || records[1].ID != "2026-03-03" {
		t.Fatalf("records = %+v", records)
	}
}

func TestSweepRemovesStrictlyOlderDays(t *testing.T) {
	store, err := NewDayStore[record](t.TempDir())
	if err != nil {
		t.Fatalf("NewDayStore: %v", err)
	}
	store.Append("2026-02-27", record{ID: "old1"}, record{ID: "old2"})
	store.Append("2026-02-28", record{ID: "old3"})
	store.Append("2026-03-01", record{ID: "kept"})

	removed, err := store.Sweep(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}

	days, err := store.Days()
	if err != nil {
		t.Fatalf("Days: %v", err)
	}
	if len(days) != 1 || days[0] != "2026-03-01" {
		t.Fatalf("days = %v", days)
	}
}

func TestReplaceDayOverwrites(t *testing.T) {
	store, err := NewDayStore[record](t.TempDir())
	if err != nil {
		t.Fatalf("NewDayStore: %v", err)
	}
	store.Append("2026-03-01", record{ID: "a"}, record{ID: "b"})
	if err := store.ReplaceDay("2026-03-01", []record{{ID: "only"}}); err != nil {
		t.Fatalf("ReplaceDay: %v", err)
	}
	records, _ := store.ReadDay("2026-03-01")
	if len(records) != 1 || records[0].ID != "only" {
		t.Fatalf("records = %+v", records)
	}
}

func TestDaysIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDayStore[record](dir)
	if err != nil {
		t.Fatalf("NewDayStore: %v", err)
	}
	store.Append("2026-03-01", record{ID: "a"})
	os.WriteFile(filepath.Join(dir, "index.json"), []byte("{}"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	days, err := store.Days()
	if err != nil {
		t.Fatalf("Days: %v", err)
	}
	if len(days) != 1 || days[0] != "2026-03-01" {
		t.Fatalf("days = %v", days)
	}
}

func TestWriteReadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	if err := WriteJSONFile(path, map[string]int{"n": 7}); err != nil {
		t.Fatalf("WriteJSONFile: %v", err)
	}
	var got map[string]int
	if err := ReadJSONFile(path, &got); err != nil {
		t.Fatalf("ReadJSONFile: %v", err)
	}
	if got["n"] != 7 {
		t.Fatalf("got = %v", got)
	}

	err := ReadJSONFile(filepath.Join(t.TempDir(), "absent.json"), &got)
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	at := time.Date(2026, 3, 2, 5, 0, 0, 0, loc) // 2026-03-01 19:00 UTC
	if key := DayKey(at); key != "2026-03-01" {
		t.Fatalf("key = %s", key)
	}
}

// Package storage implements the date-partitioned JSON persistence shared by
// the pipeline components. Each store owns one directory of
// YYYY-MM-DD.json files, each holding an ordered JSON array of records.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var dayFileRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.json$`)

// DayLayout is the partition key layout.
const DayLayout = "2006-01-02"

// DayKey returns the UTC partition key for a point in time.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// DayStore persists records of type T in per-day JSON array files. Writes
// within one store are serialized; a write is a read-modify-write of the
// day file followed by an atomic rename.
type DayStore[T any] struct {
	mu  sync.Mutex
	dir string
}

// NewDayStore creates the directory if needed and returns a store over it.
func NewDayStore[T any](dir string) (*DayStore[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create day store dir %s: %w", dir, err)
	}
	return &DayStore[T]{dir: dir}, nil
}

// Dir returns the directory the store owns.
func (s *DayStore[T]) Dir() string {
	return s.dir
}

func (s *DayStore[T]) dayPath(day string) string {
	return filepath.Join(s.dir, day+".json")
}

// Append adds records to the given day's file, creating it when absent.
func (s *DayStore[T]) Append(day string, records ...T) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readDayLocked(day)
	if err != nil {
		return err
	}
	existing = append(existing, records...)
	return s.writeDayLocked(day, existing)
}

// ReplaceDay overwrites the given day's file with the provided records.
func (s *DayStore[T]) ReplaceDay(day string, records []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDayLocked(day, records)
}

// ReadDay returns the records for one day. A missing file yields an empty
// slice, not an error.
func (s *DayStore[T]) ReadDay(day string) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDayLocked(day)
}

// Range reads every day file overlapping [from, to] in ascending day order
// and returns the concatenated records. Filtering to exact timestamps is the
// caller's concern; the store only prunes whole days.
func (s *DayStore[T]) Range(from, to time.Time) ([]T, error) {
	days, err := s.Days()
	if err != nil {
		return nil, err
	}

	fromDay := DayKey(from)
	toDay := DayKey(to)

	var out []T
	for _, day := range days {
		if day < fromDay || day > toDay {
			continue
		}
		records, err := s.ReadDay(day)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// Days lists the available partition keys in ascending order.
func (s *DayStore[T]) Days() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list day store dir %s: %w", s.dir, err)
	}

	var days []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if m := dayFileRe.FindStringSubmatch(entry.Name()); m != nil {
			days = append(days, m[1])
		}
	}
	sort.Strings(days)
	return days, nil
}

// Sweep deletes every day file strictly older than the cutoff day and
// returns the number of records removed.
func (s *DayStore[T]) Sweep(cutoff time.Time) (int, error) {
	days, err := s.Days()
	if err != nil {
		return 0, err
	}

	cutoffDay := DayKey(cutoff)
	removed := 0
	for _, day := range days {
		if day >= cutoffDay {
			continue
		}
		records, err := s.ReadDay(day)
		if err != nil {
			log.Warn().Err(err).Str("day", day).Msg("failed to read day file during sweep")
		}
		s.mu.Lock()
		err = os.Remove(s.dayPath(day))
		s.mu.Unlock()
		if err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove day file %s: %w", day, err)
		}
		removed += len(records)
	}
	return removed, nil
}

func (s *DayStore[T]) readDayLocked(day string) ([]T, error) {
	data, err := os.ReadFile(s.dayPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read day file %s: %w", day, err)
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse day file %s: %w", day, err)
	}
	return records, nil
}

func (s *DayStore[T]) writeDayLocked(day string, records []T) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal day file %s: %w", day, err)
	}

	path := s.dayPath(day)
	tmp := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp day file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace day file %s: %w", day, err)
	}
	return nil
}

// WriteJSONFile atomically replaces a standalone JSON file (non-partitioned
// indexes and rule lists share the same tmp+rename discipline).
func WriteJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// ReadJSONFile loads a standalone JSON file into v. Missing files return
// os.ErrNotExist untouched so callers can fall back to defaults.
func ReadJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

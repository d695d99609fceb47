// Package audit provides the append-only record of every state-changing
// action in the system. Entries are persisted per UTC day and are replayable
// and filterable.
package audit

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/storage"
)

// DefaultRetentionDays is how long audit day files are kept.
const DefaultRetentionDays = 90

// Entry is one audited action. ID and Timestamp are assigned at write time.
type Entry struct {
	ID        string            `json:"id"`
	Timestamp models.Millis     `json:"timestamp"`
	Action    string            `json:"action"`
	Actor     string            `json:"actor,omitempty"`
	Resource  string            `json:"resource,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Skip is the sentinel returned for read-only actions: no record is written
// and no ID is fabricated.
var Skip = &Entry{}

// Query filters audit history. Zero values mean "no constraint".
type Query struct {
	From   time.Time
	To     time.Time
	Action string
	Actor  string
	Limit  int
}

// Log is the audit writer. Writes are best-effort: I/O failures are logged
// and never propagate to the audited call path.
type Log struct {
	mu            sync.Mutex
	store         *storage.DayStore[Entry]
	retentionDays int
	entropy       *ulid.MonotonicEntropy
}

// New opens an audit log rooted at dir.
func New(dir string, retentionDays int) (*Log, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	store, err := storage.NewDayStore[Entry](dir)
	if err != nil {
		return nil, err
	}
	return &Log{
		store:         store,
		retentionDays: retentionDays,
		entropy:       ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Record writes an entry, assigning its ID and timestamp. Entries without an
// action are read-only by definition and return the Skip sentinel.
func (l *Log) Record(e Entry) *Entry {
	if e.Action == "" {
		return Skip
	}

	l.mu.Lock()
	now := time.Now().UTC()
	e.ID = ulid.MustNew(ulid.Timestamp(now), l.entropy).String()
	l.mu.Unlock()
	e.Timestamp = models.NewMillis(now)

	if err := l.store.Append(e.Timestamp.DayKey(), e); err != nil {
		log.Error().Err(err).Str("action", e.Action).Msg("failed to persist audit entry")
	}
	return &e
}

// Action is shorthand for recording a simple action against a resource.
func (l *Log) Action(action, actor, resource, detail string) *Entry {
	return l.Record(Entry{Action: action, Actor: actor, Resource: resource, Detail: detail})
}

// Query returns matching entries in timestamp-descending order, up to
// q.Limit. Unlike writes, a persistence failure here is surfaced.
func (l *Log) Query(q Query) ([]Entry, error) {
	from := q.From
	if from.IsZero() {
		from = time.Now().UTC().AddDate(0, 0, -l.retentionDays)
	}
	to := q.To
	if to.IsZero() {
		to = time.Now().UTC()
	}

	entries, err := l.store.Range(from, to)
	if err != nil {
		return nil, models.WrapE(models.KindIO, err, "query audit log")
	}

	filtered := entries[:0]
	for _, e := range entries {
		if !q.From.IsZero() && e.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.Timestamp.After(q.To) {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if q.Actor != "" && e.Actor != q.Actor {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp.Time)
	})

	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	return filtered, nil
}

// Sweep removes day files older than the retention window and returns the
// number of records removed.
func (l *Log) Sweep() int {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.retentionDays)
	removed, err := l.store.Sweep(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("audit retention sweep failed")
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("audit retention sweep completed")
	}
	return removed
}

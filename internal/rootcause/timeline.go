package rootcause

import (
	"regexp"
	"sort"

	"github.com/btnalit/routeros-aiops/internal/models"
)

var (
	causeRe  = regexp.MustCompile(`(?i)\b(fail|failure|down|error|lost|dead|expired|reset)\b`)
	effectRe = regexp.MustCompile(`(?i)\b(unreachable|timeout|slow|degraded|dropped|refused)\b`)
)

// buildTimeline orders events by timestamp and classifies each. The first
// event is always the trigger; later ones are classified by message
// heuristics.
func buildTimeline(events []*models.UnifiedEvent) []TimelineEntry {
	sorted := make([]*models.UnifiedEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Time.Before(sorted[j].Timestamp.Time)
	})

	entries := make([]TimelineEntry, 0, len(sorted))
	for i, e := range sorted {
		entryType := EntrySymptom
		switch {
		case i == 0:
			entryType = EntryTrigger
		case effectRe.MatchString(e.Message):
			entryType = EntryEffect
		case causeRe.MatchString(e.Message):
			entryType = EntryCause
		}
		entries = append(entries, TimelineEntry{
			Timestamp:   e.Timestamp,
			EventID:     e.ID,
			Type:        entryType,
			Description: e.Message,
		})
	}
	return entries
}

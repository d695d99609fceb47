package rootcause

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/ai"
	"github.com/btnalit/routeros-aiops/internal/analysiscache"
	"github.com/btnalit/routeros-aiops/internal/dedup"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/storage"
)

// CorrelationWindow bounds how far events may spread from the earliest one
// and still be analyzed as a single incident.
const CorrelationWindow = 5 * time.Minute

// retentionDays is how long analysis day files are kept.
const retentionDays = 30

// similarLookbackDays bounds the similar-incident scan.
const similarLookbackDays = 30

// similarThreshold is the minimum similarity for a past incident to be
// reported.
const similarThreshold = 0.3

const maxSimilarIncidents = 5

// Analyzer produces root-cause analyses. The AI analyzer is best-effort;
// the cache short-circuits repeat AI calls for identical fingerprints.
type Analyzer struct {
	store    *storage.DayStore[Analysis]
	analyzer ai.Analyzer
	cache    *analysiscache.Cache

	now func() time.Time
}

// New opens the analysis store. analyzer and cache may be nil.
func New(analysisDir string, analyzer ai.Analyzer, cache *analysiscache.Cache) (*Analyzer, error) {
	store, err := storage.NewDayStore[Analysis](analysisDir)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		store:    store,
		analyzer: analyzer,
		cache:    cache,
		now:      time.Now,
	}, nil
}

// Analyze runs the full algorithm for a single event and persists the
// result.
func (a *Analyzer) Analyze(ctx context.Context, event *models.UnifiedEvent) (*Analysis, error) {
	causes := matchPatterns(event)
	if aiCause := a.aiCause(ctx, event); aiCause != nil {
		causes = append(causes, *aiCause)
	}
	causes = mergeCauses(causes)

	analysis := &Analysis{
		ID:            uuid.NewString(),
		AlertID:       event.ID,
		Timestamp:     models.NewMillis(a.now()),
		AlertMessage:  event.Message,
		AlertSeverity: event.Severity,
		AlertCategory: event.Category,
		RootCauses:    causes,
		Timeline:      buildTimeline([]*models.UnifiedEvent{event}),
		Impact:        assessImpact(event, relatedCount(event)),
	}
	analysis.SimilarIncidents = a.findSimilar(analysis)

	if err := a.store.Append(analysis.Timestamp.DayKey(), *analysis); err != nil {
		return nil, models.WrapE(models.KindIO, err, "persist analysis")
	}
	return analysis, nil
}

// Correlate analyzes a batch of events as one incident. Events outside the
// correlation window from the earliest are dropped; the AI phase is seeded
// with the highest-severity event only.
func (a *Analyzer) Correlate(ctx context.Context, events []*models.UnifiedEvent) (*Analysis, error) {
	if len(events) == 0 {
		return nil, models.E(models.KindValidation, "correlation requires at least one event")
	}

	earliest := events[0].Timestamp.Time
	for _, e := range events {
		if e.Timestamp.Time.Before(earliest) {
			earliest = e.Timestamp.Time
		}
	}
	window := events[:0:0]
	for _, e := range events {
		if e.Timestamp.Time.Sub(earliest) <= CorrelationWindow {
			window = append(window, e)
		}
	}
	if len(window) == 0 {
		window = events[:1]
	}

	seed := window[0]
	var causes []Cause
	for _, e := range window {
		causes = append(causes, matchPatterns(e)...)
		if e.Severity.Rank() > seed.Severity.Rank() {
			seed = e
		}
	}
	if aiCause := a.aiCause(ctx, seed); aiCause != nil {
		causes = append(causes, *aiCause)
	}
	causes = mergeCauses(causes)

	related := 0
	for _, e := range window {
		related += relatedCount(e)
	}

	analysis := &Analysis{
		ID:            uuid.NewString(),
		AlertID:       seed.ID,
		Timestamp:     models.NewMillis(a.now()),
		AlertMessage:  seed.Message,
		AlertSeverity: seed.Severity,
		AlertCategory: seed.Category,
		RootCauses:    causes,
		Timeline:      buildTimeline(window),
		Impact:        assessImpact(seed, related),
	}
	analysis.SimilarIncidents = a.findSimilar(analysis)

	if err := a.store.Append(analysis.Timestamp.DayKey(), *analysis); err != nil {
		return nil, models.WrapE(models.KindIO, err, "persist analysis")
	}
	return analysis, nil
}

// aiCause asks the model for one richer hypothesis. Identical fingerprints
// reuse the cached result; every failure is silently skipped.
func (a *Analyzer) aiCause(ctx context.Context, event *models.UnifiedEvent) *Cause {
	if a.analyzer == nil || !a.analyzer.Enabled() {
		return nil
	}

	fingerprint := dedup.FingerprintEvent(event)
	if a.cache != nil {
		if cached, ok := a.cache.Get(fingerprint); ok {
			var cause Cause
			if err := json.Unmarshal([]byte(cached), &cause); err == nil {
				cause.RelatedAlerts = []string{event.ID}
				return &cause
			}
		}
	}

	result, err := a.analyzer.Analyze(ctx, ai.Request{
		Type: "root_cause",
		Context: map[string]string{
			"category": event.Category,
			"severity": string(event.Severity),
			"message":  event.Message,
		},
	})
	if err != nil {
		if err != ai.ErrDisabled {
			log.Debug().Err(err).Str("event", event.ID).Msg("ai root-cause phase skipped")
		}
		return nil
	}
	if result.Summary == "" {
		return nil
	}

	cause := &Cause{
		ID:            "ai-analysis",
		Category:      event.Category,
		Description:   result.Summary,
		Confidence:    clampConfidence(int(result.Confidence * 100)),
		Evidence:      result.Recommendations,
		RelatedAlerts: []string{event.ID},
	}
	if a.cache != nil {
		if encoded, err := json.Marshal(cause); err == nil {
			a.cache.Set(fingerprint, string(encoded))
		}
	}
	return cause
}

// mergeCauses deduplicates by lowercased description, keeping the maximum
// confidence and the union of evidence and related alerts, sorted by
// confidence descending.
func mergeCauses(causes []Cause) []Cause {
	index := make(map[string]int)
	var merged []Cause
	for _, c := range causes {
		key := strings.ToLower(c.Description)
		i, seen := index[key]
		if !seen {
			index[key] = len(merged)
			merged = append(merged, c)
			continue
		}
		if c.Confidence > merged[i].Confidence {
			merged[i].Confidence = c.Confidence
		}
		merged[i].Evidence = unionStrings(merged[i].Evidence, c.Evidence)
		merged[i].RelatedAlerts = unionStrings(merged[i].RelatedAlerts, c.RelatedAlerts)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			a = append(a, s)
		}
	}
	return a
}

// relatedCount is the number of underlying events an event represents.
func relatedCount(event *models.UnifiedEvent) int {
	if event.IsComposite && event.Aggregation != nil {
		return event.Aggregation.Count
	}
	return 1
}

// History returns persisted analyses in the given range.
func (a *Analyzer) History(from, to time.Time) ([]Analysis, error) {
	analyses, err := a.store.Range(from, to)
	if err != nil {
		return nil, models.WrapE(models.KindIO, err, "read analysis history")
	}
	return analyses, nil
}

// Sweep removes analysis day files past retention.
func (a *Analyzer) Sweep() {
	cutoff := a.now().UTC().AddDate(0, 0, -retentionDays)
	if removed, err := a.store.Sweep(cutoff); err != nil {
		log.Error().Err(err).Msg("analysis retention sweep failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("analysis retention sweep completed")
	}
}

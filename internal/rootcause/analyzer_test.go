package rootcause

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btnalit/routeros-aiops/internal/ai"
	"github.com/btnalit/routeros-aiops/internal/analysiscache"
	"github.com/btnalit/routeros-aiops/internal/models"
)

func newTestAnalyzer(t *testing.T, llm ai.Analyzer, cache *analysiscache.Cache) *Analyzer {
	t.Helper()
	a, err := New(t.TempDir(), llm, cache)
	require.NoError(t, err)
	return a
}

func event(id string, severity models.Severity, category, message string, at time.Time) *models.UnifiedEvent {
	return &models.UnifiedEvent{
		ID:        id,
		Source:    models.SourceSyslog,
		Timestamp: models.NewMillis(at),
		Severity:  severity,
		Category:  category,
		Message:   message,
	}
}

func TestPatternPhaseKnownCause(t *testing.T) {
	a := newTestAnalyzer(t, nil, nil)

	analysis, err := a.Analyze(context.Background(),
		event("e1", models.SeverityCritical, "interface", "ether1 flapping, 4 state changes in 30s", time.Now()))
	require.NoError(t, err)
	require.NotEmpty(t, analysis.RootCauses)

	top := analysis.TopCause()
	assert.Equal(t, "interface-instability", top.ID)
	// Base 85 plus the +10 critical adjustment, clamped at 95.
	assert.Equal(t, 95, top.Confidence)
	assert.Contains(t, top.Evidence[0], "flapping")
	assert.Equal(t, []string{"e1"}, top.RelatedAlerts)
}

func TestPatternPhaseUnknownFallback(t *testing.T) {
	a := newTestAnalyzer(t, nil, nil)

	analysis, err := a.Analyze(context.Background(),
		event("e1", models.SeverityWarning, "script", "scheduler ran custom task", time.Now()))
	require.NoError(t, err)
	require.Len(t, analysis.RootCauses, 1)
	assert.Equal(t, "unknown", analysis.RootCauses[0].ID)
	assert.Equal(t, unknownConfidence, analysis.RootCauses[0].Confidence)
}

func TestSeverityAdjustsConfidence(t *testing.T) {
	a := newTestAnalyzer(t, nil, nil)

	low, err := a.Analyze(context.Background(),
		event("e1", models.SeverityInfo, "dhcp", "dhcp lease expired on bridge1", time.Now()))
	require.NoError(t, err)
	high, err := a.Analyze(context.Background(),
		event("e2", models.SeverityEmergency, "dhcp", "dhcp lease expired on bridge1", time.Now()))
	require.NoError(t, err)

	assert.Equal(t, 55, low.TopCause().Confidence)  // 65 - 10
	assert.Equal(t, 75, high.TopCause().Confidence) // 65 + 10
}

func TestAIPhaseMergedAndCached(t *testing.T) {
	llm := ai.NewFake(ai.Result{
		Summary:         "Upstream switch port errors causing link resets",
		Recommendations: []string{"inspect upstream switch"},
		RiskLevel:       "high",
		Confidence:      0.9,
	})
	cache := analysiscache.New(time.Minute, 10)
	a := newTestAnalyzer(t, llm, cache)

	evt := event("e1", models.SeverityWarning, "interface", "ether1 flapping repeatedly", time.Now())
	analysis, err := a.Analyze(context.Background(), evt)
	require.NoError(t, err)

	var aiCause *Cause
	for i := range analysis.RootCauses {
		if analysis.RootCauses[i].ID == "ai-analysis" {
			aiCause = &analysis.RootCauses[i]
		}
	}
	require.NotNil(t, aiCause, "ai cause missing from %+v", analysis.RootCauses)
	assert.Equal(t, 90, aiCause.Confidence)
	assert.Equal(t, 1, len(llm.Requests))

	// Identical fingerprint reuses the cached cause without another call.
	evt2 := event("e2", models.SeverityWarning, "interface", "ether1 flapping repeatedly", time.Now())
	_, err = a.Analyze(context.Background(), evt2)
	require.NoError(t, err)
	assert.Equal(t, 1, len(llm.Requests), "cache should prevent a second llm call")
}

func TestAIPhaseFailureSilentlySkipped(t *testing.T) {
	llm := ai.NewFake(ai.Result{})
	llm.Fail(context.DeadlineExceeded)
	a := newTestAnalyzer(t, llm, nil)

	analysis, err := a.Analyze(context.Background(),
		event("e1", models.SeverityWarning, "interface", "ether1 flapping", time.Now()))
	require.NoError(t, err)
	for _, c := range analysis.RootCauses {
		assert.NotEqual(t, "ai-analysis", c.ID)
	}
}

func TestMergeDeduplicatesByDescription(t *testing.T) {
	merged := mergeCauses([]Cause{
		{ID: "a", Description: "DHCP pool exhausted", Confidence: 60, Evidence: []string{"m1"}, RelatedAlerts: []string{"e1"}},
		{ID: "b", Description: "dhcp POOL exhausted", Confidence: 75, Evidence: []string{"m2"}, RelatedAlerts: []string{"e2"}},
		{ID: "c", Description: "something else", Confidence: 50},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, 75, merged[0].Confidence)
	assert.ElementsMatch(t, []string{"m1", "m2"}, merged[0].Evidence)
	assert.ElementsMatch(t, []string{"e1", "e2"}, merged[0].RelatedAlerts)
	assert.Equal(t, "something else", merged[1].Description)
}

func TestCorrelateWindowAndSeed(t *testing.T) {
	a := newTestAnalyzer(t, nil, nil)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	events := []*models.UnifiedEvent{
		event("e1", models.SeverityWarning, "interface", "ether1 link down", base),
		event("e2", models.SeverityCritical, "routing", "ospf neighbor down on ether1", base.Add(time.Minute)),
		// Outside the 5 minute window from the earliest; must be ignored.
		event("e3", models.SeverityEmergency, "system", "out of memory", base.Add(10*time.Minute)),
	}

	analysis, err := a.Correlate(context.Background(), events)
	require.NoError(t, err)

	// Seeded by the highest severity inside the window, not the dropped one.
	assert.Equal(t, "e2", analysis.AlertID)
	assert.Equal(t, models.SeverityCritical, analysis.AlertSeverity)
	assert.Len(t, analysis.Timeline, 2)
	assert.Equal(t, EntryTrigger, analysis.Timeline[0].Type)
	assert.Equal(t, "e1", analysis.Timeline[0].EventID)
}

func TestTimelineClassification(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	timeline := buildTimeline([]*models.UnifiedEvent{
		event("e3", models.SeverityWarning, "dns", "dns lookup timeout for example.com", base.Add(2*time.Minute)),
		event("e1", models.SeverityWarning, "interface", "ether1 link down", base),
		event("e2", models.SeverityWarning, "routing", "bgp session failure with peer", base.Add(time.Minute)),
		event("e4", models.SeverityInfo, "system", "high latency observed", base.Add(3*time.Minute)),
	})

	require.Len(t, timeline, 4)
	assert.Equal(t, EntryTrigger, timeline[0].Type)
	assert.Equal(t, "e1", timeline[0].EventID)
	assert.Equal(t, EntryCause, timeline[1].Type)
	assert.Equal(t, EntryEffect, timeline[2].Type)
	assert.Equal(t, EntrySymptom, timeline[3].Type)
}

func TestImpactScopes(t *testing.T) {
	local := assessImpact(event("e", models.SeverityWarning, "interface", "ether1 link down", time.Now()), 1)
	assert.Equal(t, ScopeLocal, local.Scope)
	assert.Equal(t, 5, local.EstimatedUsers)

	partial := assessImpact(event("e", models.SeverityCritical, "interface", "ether1 link down", time.Now()), 1)
	assert.Equal(t, ScopePartial, partial.Scope)
	assert.Equal(t, 25, partial.EstimatedUsers)

	widespread := assessImpact(event("e", models.SeverityEmergency, "system", "kernel panic", time.Now()), 1)
	assert.Equal(t, ScopeWidespread, widespread.Scope)
	// 100 base times the 1.5 system multiplier.
	assert.Equal(t, 150, widespread.EstimatedUsers)

	manyRelated := assessImpact(event("e", models.SeverityWarning, "interface", "flap storm", time.Now()), 6)
	assert.Equal(t, ScopeWidespread, manyRelated.Scope)
}

func TestImpactServicesAndSegments(t *testing.T) {
	impact := assessImpact(event("e", models.SeverityCritical, "dhcp",
		"dhcp failure on 192.168.10.0/24 and VLAN 30, dns fallback engaged on wan uplink", time.Now()), 1)

	assert.ElementsMatch(t, []string{"DHCP", "DNS"}, impact.Services)
	assert.ElementsMatch(t, []string{"192.168.10.0/24", "VLAN 30"}, impact.NetworkSegments)
	// Partial base 25 doubled by the WAN multiplier.
	assert.Equal(t, 50, impact.EstimatedUsers)
}

func TestSimilarIncidents(t *testing.T) {
	a := newTestAnalyzer(t, nil, nil)

	first, err := a.Analyze(context.Background(),
		event("e1", models.SeverityWarning, "dhcp", "dhcp lease expired on bridge1 pool exhausted", time.Now()))
	require.NoError(t, err)

	second, err := a.Analyze(context.Background(),
		event("e2", models.SeverityWarning, "dhcp", "dhcp lease expired on bridge1 pool exhausted", time.Now()))
	require.NoError(t, err)

	require.NotEmpty(t, second.SimilarIncidents)
	assert.Equal(t, first.ID, second.SimilarIncidents[0].AnalysisID)
	assert.GreaterOrEqual(t, second.SimilarIncidents[0].Similarity, similarThreshold)

	// An unrelated incident scores below the threshold.
	third, err := a.Analyze(context.Background(),
		event("e3", models.SeverityEmergency, "system", "kernel panic watchdog reboot", time.Now()))
	require.NoError(t, err)
	for _, s := range third.SimilarIncidents {
		assert.GreaterOrEqual(t, s.Similarity, similarThreshold)
	}
}

func TestCompositeEventRelatedCount(t *testing.T) {
	composite := event("c1", models.SeverityCritical, "interface", "ether1 flapping, 6 state changes", time.Now())
	composite.IsComposite = true
	composite.Aggregation = &models.Aggregation{Count: 6, Pattern: "interface-flapping"}

	assert.Equal(t, 6, relatedCount(composite))
	impact := assessImpact(composite, relatedCount(composite))
	assert.Equal(t, ScopeWidespread, impact.Scope)
}

func TestCorrelateEmptyBatch(t *testing.T) {
	a := newTestAnalyzer(t, nil, nil)
	_, err := a.Correlate(context.Background(), nil)
	assert.Equal(t, models.KindValidation, models.KindOf(err))
}

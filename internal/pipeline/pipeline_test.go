package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btnalit/routeros-aiops/internal/ai"
	"github.com/btnalit/routeros-aiops/internal/analysiscache"
	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/decision"
	"github.com/btnalit/routeros-aiops/internal/dedup"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/noise"
	"github.com/btnalit/routeros-aiops/internal/notify"
	"github.com/btnalit/routeros-aiops/internal/preprocessor"
	"github.com/btnalit/routeros-aiops/internal/rootcause"
	"github.com/btnalit/routeros-aiops/internal/syslogd"
)

func testPipeline(t *testing.T) (*Pipeline, *notify.Fake) {
	t.Helper()
	dir := t.TempDir()

	auditLog, err := audit.New(filepath.Join(dir, "audit"), 30)
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}

	filter, err := noise.New(
		filepath.Join(dir, "filters", "maintenance.json"),
		filepath.Join(dir, "filters", "known-issues.json"),
		filepath.Join(dir, "feedback"),
		ai.Noop{}, auditLog)
	if err != nil {
		t.Fatalf("noise.New: %v", err)
	}

	analyzer, err := rootcause.New(filepath.Join(dir, "analysis"), ai.Noop{}, analysiscache.New(time.Minute, 16))
	if err != nil {
		t.Fatalf("rootcause.New: %v", err)
	}

	dispatcher := notify.NewFakeDispatcher()
	engine, err := decision.New(
		filepath.Join(dir, "decisions", "rules.json"),
		filepath.Join(dir, "decisions", "history"),
		auditLog, dispatcher, nil)
	if err != nil {
		t.Fatalf("decision.New: %v", err)
	}

	pre := preprocessor.New(preprocessor.DefaultConfig(), nil, time.Second)
	p := New(pre, dedup.NewCache(time.Minute), filter, analyzer, engine, auditLog)
	return p, dispatcher
}

func warningEvent(id, message string) *models.UnifiedEvent {
	return &models.UnifiedEvent{
		ID:        id,
		Source:    models.SourceSyslog,
		Timestamp: models.Now(),
		Severity:  models.SeverityWarning,
		Category:  "system",
		Message:   message,
	}
}

func TestProcessReachesDecision(t *testing.T) {
	p, dispatcher := testPipeline(t)

	outcome := p.Process(context.Background(), warningEvent("evt-1", "cpu load climbing"))
	if outcome.Deduplicated || outcome.Filtered {
		t.Fatalf("event suppressed unexpectedly: %+v", outcome)
	}
	if outcome.Analysis == nil {
		t.Fatal("expected an analysis")
	}
	if outcome.Decision == nil {
		t.Fatal("expected a decision")
	}
	if outcome.Decision.Action != decision.ActionNotifyAndWait {
		t.Fatalf("action = %s, want notify_and_wait", outcome.Decision.Action)
	}
	if dispatcher.Last() == nil {
		t.Fatal("expected a notification")
	}

	stats := p.Stats()
	if stats.Processed != 1 || stats.Analyzed != 1 || stats.Decided != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestProcessDeduplicatesRepeats(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	first := p.Process(ctx, warningEvent("evt-1", "dhcp lease pool exhausted"))
	if first.Deduplicated {
		t.Fatal("first sighting deduplicated")
	}
	second := p.Process(ctx, warningEvent("evt-2", "dhcp lease pool exhausted"))
	if !second.Deduplicated {
		t.Fatal("repeat not deduplicated")
	}
	if second.Decision != nil {
		t.Fatal("deduplicated event reached the decision stage")
	}
	if stats := p.Stats(); stats.Deduplicated != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCompositeBypassesDedup(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	composite := warningEvent("evt-1", "interface ether1 flapping, 4 state changes in 30s")
	composite.Category = "interface"
	composite.IsComposite = true
	composite.ChildEventIDs = []string{"a", "b", "c", "d"}
	composite.Aggregation = &models.Aggregation{Count: 4, FirstSeen: models.Now(), LastSeen: models.Now()}

	if outcome := p.Process(ctx, composite); outcome.Deduplicated {
		t.Fatal("composite deduplicated")
	}
	repeat := *composite
	repeat.ID = "evt-2"
	if outcome := p.Process(ctx, &repeat); outcome.Deduplicated {
		t.Fatal("second composite deduplicated")
	}
}

func TestCompositeAnalyzedAsCorrelatedIncident(t *testing.T) {
	p, _ := testPipeline(t)

	base := time.Now()
	child := func(id, message string, severity models.Severity, offset time.Duration) *models.UnifiedEvent {
		e := warningEvent(id, message)
		e.Category = "interface"
		e.Severity = severity
		e.Timestamp = models.NewMillis(base.Add(offset))
		return e
	}
	children := []*models.UnifiedEvent{
		child("a", "connection lost to 10.0.0.1", models.SeverityWarning, 0),
		child("b", "ospf neighbor down", models.SeverityCritical, 10*time.Second),
		child("c", "host 10.0.0.1 unreachable", models.SeverityWarning, 20*time.Second),
	}

	composite := warningEvent("evt-parent", "connection-issue burst, 3 events aggregated")
	composite.Category = "interface"
	composite.IsComposite = true
	composite.ChildEventIDs = []string{"a", "b", "c"}
	composite.ChildEvents = children
	composite.Aggregation = &models.Aggregation{Count: 3, FirstSeen: children[0].Timestamp, LastSeen: children[2].Timestamp}

	outcome := p.Process(context.Background(), composite)
	if outcome.Analysis == nil {
		t.Fatal("expected an analysis")
	}
	// Correlation seeds on the highest-severity child and lays every child
	// on the timeline; single-event analysis would yield one entry for the
	// composite itself.
	if outcome.Analysis.AlertID != "b" {
		t.Fatalf("alertId = %s, want the critical child", outcome.Analysis.AlertID)
	}
	if len(outcome.Analysis.Timeline) != 3 {
		t.Fatalf("timeline = %d entries, want 3", len(outcome.Analysis.Timeline))
	}
}

func TestMetricAlertBypassesDedup(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	event := warningEvent("evt-1", "cpu usage 92.0 gt threshold 80.0")
	event.Source = models.SourceMetrics
	p.Process(ctx, event)

	repeat := warningEvent("evt-2", "cpu usage 92.0 gt threshold 80.0")
	repeat.Source = models.SourceMetrics
	if outcome := p.Process(ctx, repeat); outcome.Deduplicated {
		t.Fatal("metric alert deduplicated; rule cooldowns own repeat suppression")
	}
}

func TestFilteredEventStopsEarly(t *testing.T) {
	p, dispatcher := testPipeline(t)
	ctx := context.Background()

	now := time.Now()
	if _, err := p.filter.AddWindow(noise.MaintenanceWindow{
		Name:      "change window",
		StartTime: models.NewMillis(now.Add(-time.Hour)),
		EndTime:   models.NewMillis(now.Add(time.Hour)),
	}); err != nil {
		t.Fatalf("AddWindow: %v", err)
	}

	outcome := p.Process(ctx, warningEvent("evt-1", "router rebooted by admin"))
	if !outcome.Filtered {
		t.Fatal("event not filtered during maintenance")
	}
	if outcome.FilterReason != string(noise.ReasonMaintenance) {
		t.Fatalf("reason = %s", outcome.FilterReason)
	}
	if outcome.Decision != nil || dispatcher.Last() != nil {
		t.Fatal("filtered event reached downstream stages")
	}
}

func TestHandleSyslogProcessesImmediately(t *testing.T) {
	p, _ := testPipeline(t)

	p.HandleSyslog(context.Background(), syslogd.Message{
		Facility: 1,
		Severity: 4,
		Hostname: "router-1",
		Topics:   []string{"warning", "dhcp"},
		Content:  "dhcp server offering lease without success",
	})

	if stats := p.Stats(); stats.Processed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestHandleSyslogHoldsFlapUntilFlush(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		p.HandleSyslog(ctx, syslogd.Message{
			Facility: 1,
			Severity: 4,
			Hostname: "router-1",
			Topics:   []string{"interface", "warning"},
			Content:  "ether1 link down",
		})
	}
	if stats := p.Stats(); stats.Processed != 0 {
		t.Fatalf("flap events processed before window closed: %+v", stats)
	}

	p.flush(ctx)

	stats := p.Stats()
	if stats.Processed != 1 {
		t.Fatalf("expected exactly one composite processed, stats = %+v", stats)
	}
}

func TestHandleAlertRunsStages(t *testing.T) {
	p, _ := testPipeline(t)

	outcome := p.HandleAlert(context.Background(), &models.AlertEvent{
		ID:           "alert-1",
		RuleID:       "rule-1",
		RuleName:     "high cpu",
		Severity:     models.SeverityCritical,
		Metric:       models.MetricCPU,
		CurrentValue: 95,
		Threshold:    80,
		Message:      "cpu usage 95.0 gt threshold 80.0",
		TriggeredAt:  models.Now(),
	})
	if outcome.Decision == nil {
		t.Fatal("expected a decision for the alert event")
	}
}

func TestRunDrainsChannelOnClose(t *testing.T) {
	p, _ := testPipeline(t)

	messages := make(chan syslogd.Message, 4)
	messages <- syslogd.Message{Facility: 1, Severity: 3, Hostname: "router-1", Topics: []string{"system", "error"}, Content: "kernel failure detected"}
	close(messages)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), messages)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	if stats := p.Stats(); stats.Processed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

package decision

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/notify"
	"github.com/btnalit/routeros-aiops/internal/rootcause"
)

type stubExecutor struct {
	err    error
	calls  int
	detail string
}

func (s *stubExecutor) Execute(ctx context.Context, event *models.UnifiedEvent, d *Decision) (string, error) {
	s.calls++
	return s.detail, s.err
}

func newTestEngine(t *testing.T, dispatcher notify.Dispatcher, executor Executor) *Engine {
	t.Helper()
	dir := t.TempDir()
	auditLog, err := audit.New(filepath.Join(dir, "audit"), 0)
	require.NoError(t, err)
	e, err := New(filepath.Join(dir, "rules.json"), filepath.Join(dir, "history"), auditLog, dispatcher, executor)
	require.NoError(t, err)
	return e
}

func testEvent(severity models.Severity, message string) *models.UnifiedEvent {
	return &models.UnifiedEvent{
		ID:        "evt-1",
		Source:    models.SourceSyslog,
		Timestamp: models.Now(),
		Severity:  severity,
		Category:  "system",
		Message:   message,
	}
}

func analysisWithScope(scope string) *rootcause.Analysis {
	return &rootcause.Analysis{Impact: rootcause.Impact{Scope: scope}}
}

var pinnedNow = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

// Pin the clock to business hours so the time factor is stable.
func pinClock(e *Engine) {
	e.now = func() time.Time { return pinnedNow }
}

func seedDecision(e *Engine, id string, executed, success bool) {
	d := Decision{ID: id, Timestamp: models.NewMillis(pinnedNow), Executed: executed}
	if executed {
		d.ExecutionResult = &ExecutionResult{Success: success}
	}
	e.history.Append(d.Timestamp.DayKey(), d)
}

func TestFactorScores(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	pinClock(e)

	factors := e.scoreFactors(testEvent(models.SeverityEmergency, "x"), analysisWithScope(rootcause.ScopeWidespread))
	byName := map[string]Factor{}
	for _, f := range factors {
		byName[f.Name] = f
	}

	assert.Equal(t, 1.0, byName[FactorSeverity].Score)
	assert.Equal(t, 0.35, byName[FactorSeverity].Weight)
	assert.Equal(t, 0.3, byName[FactorTimeOfDay].Score)
	assert.Equal(t, defaultSuccessRate, byName[FactorSuccessRate].Score)
	assert.Equal(t, 0.2, byName[FactorScope].Score)
}

func TestTimeOfDayBands(t *testing.T) {
	night := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	business := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, 0.9, timeOfDayScore(night))
	assert.Equal(t, 0.3, timeOfDayScore(business))
	assert.Equal(t, 0.6, timeOfDayScore(evening))
}

func TestEmergencyEscalates(t *testing.T) {
	dispatcher := notify.NewFakeDispatcher()
	e := newTestEngine(t, dispatcher, nil)
	pinClock(e)

	d, err := e.Decide(context.Background(), testEvent(models.SeverityEmergency, "power failure"),
		analysisWithScope(rootcause.ScopeWidespread))
	require.NoError(t, err)

	assert.Equal(t, ActionEscalate, d.Action)
	assert.Equal(t, "rule-emergency-escalate", d.MatchedRuleID)
	assert.Contains(t, d.Reasoning, "rule-emergency-escalate")

	last := dispatcher.Last()
	require.NotNil(t, last)
	assert.Equal(t, notify.PriorityHigh, last.Message.Priority)
	assert.Contains(t, last.Message.Title, "ESCALATION")
}

func TestFallbackNotifies(t *testing.T) {
	dispatcher := notify.NewFakeDispatcher()
	e := newTestEngine(t, dispatcher, nil)
	pinClock(e)

	d, err := e.Decide(context.Background(), testEvent(models.SeverityCritical, "disk filling"),
		analysisWithScope(rootcause.ScopeLocal))
	require.NoError(t, err)

	assert.Equal(t, ActionNotifyAndWait, d.Action)
	assert.Equal(t, "rule-default-notify", d.MatchedRuleID)
	require.NotNil(t, dispatcher.Last())
	assert.Equal(t, notify.PriorityNormal, dispatcher.Last().Message.Priority)
}

func TestNotificationRoutesToRuleChannels(t *testing.T) {
	dispatcher := notify.NewFakeDispatcher()
	e := newTestEngine(t, dispatcher, nil)
	pinClock(e)

	event := testEvent(models.SeverityCritical, "wan traffic above threshold")
	event.Source = models.SourceMetrics
	event.AlertRuleInfo = &models.AlertRuleInfo{
		RuleID:   "rule-1",
		Metric:   models.MetricCPU,
		Channels: []string{"webhook"},
	}

	_, err := e.Decide(context.Background(), event, analysisWithScope(rootcause.ScopeLocal))
	require.NoError(t, err)

	last := dispatcher.Last()
	require.NotNil(t, last)
	assert.Equal(t, []string{"webhook"}, last.Channels)

	// Events without rule routing still broadcast to every channel.
	_, err = e.Decide(context.Background(), testEvent(models.SeverityCritical, "disk filling"),
		analysisWithScope(rootcause.ScopeLocal))
	require.NoError(t, err)
	assert.Empty(t, dispatcher.Last().Channels)
}

func TestNotifyRecoveryUsesAlertChannels(t *testing.T) {
	dispatcher := notify.NewFakeDispatcher()
	e := newTestEngine(t, dispatcher, nil)

	e.NotifyRecovery(context.Background(), &models.AlertEvent{
		ID:       "evt-1",
		RuleID:   "rule-1",
		RuleName: "cpu high",
		Message:  "cpu usage back below threshold",
		Channels: []string{"webhook"},
	}, "recovered")

	last := dispatcher.Last()
	require.NotNil(t, last)
	assert.Equal(t, []string{"webhook"}, last.Channels)
	assert.Equal(t, "recovery", last.Message.Type)
	assert.Contains(t, last.Message.Title, "cpu high")
	assert.Equal(t, "recovered", last.Message.Data["reason"])
}

func TestAutoExecuteInvokesExecutor(t *testing.T) {
	executor := &stubExecutor{detail: "interface reset"}
	e := newTestEngine(t, nil, executor)
	pinClock(e)

	// Seed enough successful history for the success-rate condition.
	for i := 0; i < 3; i++ {
		seedDecision(e, "seed", true, true)
	}

	d, err := e.Decide(context.Background(), testEvent(models.SeverityInfo, "dhcp lease renewal storm"),
		analysisWithScope(rootcause.ScopeLocal))
	require.NoError(t, err)

	assert.Equal(t, ActionAutoExecute, d.Action)
	assert.Equal(t, 1, executor.calls)
	assert.True(t, d.Executed)
	require.NotNil(t, d.ExecutionResult)
	assert.True(t, d.ExecutionResult.Success)
	assert.Equal(t, "interface reset", d.ExecutionResult.Detail)
}

func TestAutoExecuteFailureRecorded(t *testing.T) {
	executor := &stubExecutor{err: errors.New("device refused command")}
	e := newTestEngine(t, nil, executor)
	pinClock(e)

	for i := 0; i < 3; i++ {
		seedDecision(e, "seed", true, true)
	}

	d, err := e.Decide(context.Background(), testEvent(models.SeverityInfo, "noise"),
		analysisWithScope(rootcause.ScopeLocal))
	require.NoError(t, err)
	assert.True(t, d.Executed)
	require.NotNil(t, d.ExecutionResult)
	assert.False(t, d.ExecutionResult.Success)
	assert.Contains(t, d.ExecutionResult.Detail, "refused")
}

func TestSuccessRateFromHistory(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	pinClock(e)

	assert.Equal(t, defaultSuccessRate, e.successRate())

	seedDecision(e, "1", true, true)
	seedDecision(e, "2", true, false)
	seedDecision(e, "3", false, false)

	assert.InDelta(t, 0.5, e.successRate(), 0.0001)

	seedDecision(e, "4", true, true)
	assert.InDelta(t, 2.0/3.0, e.successRate(), 0.0001)
}

func TestConditionEqTolerance(t *testing.T) {
	scores := map[string]float64{FactorSeverity: 0.4}

	assert.True(t, conditionsMatch([]Condition{
		{Factor: FactorSeverity, Operator: models.OpEQ, Value: 0.4005},
	}, scores))
	assert.False(t, conditionsMatch([]Condition{
		{Factor: FactorSeverity, Operator: models.OpEQ, Value: 0.402},
	}, scores))
	assert.False(t, conditionsMatch([]Condition{
		{Factor: FactorSeverity, Operator: models.OpNE, Value: 0.4005},
	}, scores))
}

func TestPriorityOrderDeterministic(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	pinClock(e)

	// Two rules matching the same scores; the lower priority wins.
	_, err := e.AddRule(Rule{
		Name:     "late silence",
		Priority: 50,
		Conditions: []Condition{
			{Factor: FactorSeverity, Operator: models.OpGTE, Value: 0.0},
		},
		Action:  ActionSilence,
		Enabled: true,
	})
	require.NoError(t, err)
	_, err = e.AddRule(Rule{
		Name:     "early silence",
		Priority: 5,
		Conditions: []Condition{
			{Factor: FactorSeverity, Operator: models.OpGTE, Value: 0.0},
		},
		Action:  ActionSilence,
		Enabled: true,
	})
	require.NoError(t, err)

	d, err := e.Decide(context.Background(), testEvent(models.SeverityWarning, "x"), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionSilence, d.Action)

	rules := e.ListRules()
	var matched Rule
	for _, r := range rules {
		if r.ID == d.MatchedRuleID {
			matched = r
		}
	}
	assert.Equal(t, "early silence", matched.Name)
}

func TestSilenceSkipsDispatch(t *testing.T) {
	dispatcher := notify.NewFakeDispatcher()
	e := newTestEngine(t, dispatcher, nil)
	pinClock(e)

	_, err := e.AddRule(Rule{
		Name:       "silence all",
		Priority:   1,
		Conditions: nil,
		Action:     ActionSilence,
		Enabled:    true,
	})
	require.NoError(t, err)

	_, err = e.Decide(context.Background(), testEvent(models.SeverityWarning, "x"), nil)
	require.NoError(t, err)
	assert.Nil(t, dispatcher.Last())
}

func TestRuleCRUDAndValidation(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	_, err := e.AddRule(Rule{Name: "", Action: ActionSilence})
	assert.Equal(t, models.KindValidation, models.KindOf(err))

	_, err = e.AddRule(Rule{Name: "bad action", Action: "explode"})
	assert.Equal(t, models.KindValidation, models.KindOf(err))

	_, err = e.AddRule(Rule{
		Name:   "bad factor",
		Action: ActionSilence,
		Conditions: []Condition{
			{Factor: "phase_of_moon", Operator: models.OpGT, Value: 0.5},
		},
	})
	assert.Equal(t, models.KindValidation, models.KindOf(err))

	rule, err := e.AddRule(Rule{Name: "ok", Priority: 7, Action: ActionSilence, Enabled: true})
	require.NoError(t, err)

	updated, err := e.UpdateRule(rule.ID, Rule{Name: "renamed", Priority: 7, Action: ActionSilence, Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, rule.ID, updated.ID)

	require.NoError(t, e.DeleteRule(rule.ID))
	assert.True(t, models.IsNotFound(e.DeleteRule(rule.ID)))
}

func TestRulesPersistAcrossReload(t *testing.T) {
	dir := t.TempDir()
	auditLog, err := audit.New(filepath.Join(dir, "audit"), 0)
	require.NoError(t, err)
	rulesFile := filepath.Join(dir, "rules.json")

	e, err := New(rulesFile, filepath.Join(dir, "history"), auditLog, nil, nil)
	require.NoError(t, err)
	added, err := e.AddRule(Rule{Name: "custom", Priority: 3, Action: ActionEscalate, Enabled: true})
	require.NoError(t, err)

	reloaded, err := New(rulesFile, filepath.Join(dir, "history"), auditLog, nil, nil)
	require.NoError(t, err)
	var found bool
	for _, r := range reloaded.ListRules() {
		if r.ID == added.ID {
			found = true
		}
	}
	assert.True(t, found, "custom rule lost on reload")
}

func TestDecisionPersisted(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	pinClock(e)

	d, err := e.Decide(context.Background(), testEvent(models.SeverityWarning, "x"), nil)
	require.NoError(t, err)

	history, err := e.History(pinnedNow.Add(-time.Hour), pinnedNow.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, d.ID, history[0].ID)
	assert.NotEmpty(t, history[0].Reasoning)
}

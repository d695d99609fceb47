// Package rules owns alert rule lifecycle and evaluates rules against each
// collected sample set, emitting alert events with an active/resolved
// lifecycle.
package rules

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/storage"
)

const (
	// trafficWindow is the primary averaging window for interface_traffic.
	trafficWindow = 30 * time.Second
	// trafficWindowExtended is the fallback window when the primary one has
	// no samples yet.
	trafficWindowExtended = 120 * time.Second
	// activeRebuildDays is how far back startup scans event files for
	// still-active alerts.
	activeRebuildDays = 7
)

// TrafficRater supplies interface byte rates from recent samples.
type TrafficRater interface {
	TrafficRate(name string, window time.Duration) (float64, bool)
}

// AlertCallback fires when a new alert event is created.
type AlertCallback func(event *models.AlertEvent, rule *models.AlertRule)

// ResolveCallback fires when an alert event resolves. notify is false for
// silent resolutions (rule disabled or deleted).
type ResolveCallback func(event *models.AlertEvent, reason string, notify bool)

// AutoResponder runs a rule's configured auto-response and returns a
// result summary.
type AutoResponder func(rule *models.AlertRule, event *models.AlertEvent) (string, error)

// triggerState tracks per-rule persistence counting. Reset when the
// condition is not met or an alert fires.
type triggerState struct {
	consecutiveCount int
	lastEvaluatedAt  time.Time
}

// Engine is the alert rule engine.
type Engine struct {
	mu sync.Mutex

	rulesFile string
	events    *storage.DayStore[models.AlertEvent]
	auditLog  *audit.Log
	rater     TrafficRater

	rules    map[string]*models.AlertRule
	active   map[string]*models.AlertEvent // keyed by rule ID
	triggers map[string]*triggerState

	onAlert    []AlertCallback
	onResolved []ResolveCallback
	responder  AutoResponder

	now func() time.Time
}

// New loads rules and rebuilds active alerts from the last seven days of
// persisted events.
func New(rulesFile, eventsDir string, auditLog *audit.Log, rater TrafficRater) (*Engine, error) {
	events, err := storage.NewDayStore[models.AlertEvent](eventsDir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		rulesFile: rulesFile,
		events:    events,
		auditLog:  auditLog,
		rater:     rater,
		rules:     make(map[string]*models.AlertRule),
		active:    make(map[string]*models.AlertEvent),
		triggers:  make(map[string]*triggerState),
		now:       time.Now,
	}

	if err := e.loadRules(); err != nil {
		return nil, err
	}
	e.rebuildActive()
	return e, nil
}

// OnAlert registers a new-alert callback.
func (e *Engine) OnAlert(cb AlertCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAlert = append(e.onAlert, cb)
}

// OnResolved registers a resolution callback.
func (e *Engine) OnResolved(cb ResolveCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onResolved = append(e.onResolved, cb)
}

// SetAutoResponder sets the auto-response runner.
func (e *Engine) SetAutoResponder(r AutoResponder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responder = r
}

// CreateRule validates, assigns identity, and persists a new rule. A
// persistence failure rolls the rule back out of memory and is surfaced.
func (e *Engine) CreateRule(rule *models.AlertRule) (*models.AlertRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rule = rule.Clone()
	rule.ID = uuid.NewString()
	now := models.NewMillis(e.now())
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if rule.Metric == models.MetricInterfaceStatus && rule.TargetStatus == "" {
		rule.TargetStatus = models.InterfaceDown
	}
	if rule.Metric == models.MetricInterfaceTraffic && rule.Unit == "" {
		rule.Unit = models.UnitKBps
	}

	e.rules[rule.ID] = rule
	if err := e.saveRulesLocked(); err != nil {
		delete(e.rules, rule.ID)
		return nil, models.WrapE(models.KindIO, err, "persist rule")
	}

	e.auditLog.Action("rule_create", "user", rule.ID, rule.Name)
	return rule.Clone(), nil
}

// UpdateRule replaces a rule's mutable fields.
func (e *Engine) UpdateRule(rule *models.AlertRule) (*models.AlertRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	previous, ok := e.rules[rule.ID]
	if !ok {
		return nil, models.E(models.KindNotFound, "rule %s not found", rule.ID)
	}

	updated := rule.Clone()
	updated.CreatedAt = previous.CreatedAt
	updated.LastTriggeredAt = previous.LastTriggeredAt
	updated.UpdatedAt = models.NewMillis(e.now())

	e.rules[rule.ID] = updated
	if err := e.saveRulesLocked(); err != nil {
		e.rules[rule.ID] = previous
		return nil, models.WrapE(models.KindIO, err, "persist rule")
	}

	// A previously-enabled rule being disabled auto-resolves its active
	// alert without a recovery notification.
	if previous.Enabled && !updated.Enabled {
		e.resolveLocked(rule.ID, "rule_disabled", false)
	}

	e.auditLog.Action("rule_update", "user", rule.ID, updated.Name)
	return updated.Clone(), nil
}

// DeleteRule removes a rule; its active alert, if any, resolves silently.
func (e *Engine) DeleteRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[id]
	if !ok {
		return models.E(models.KindNotFound, "rule %s not found", id)
	}

	delete(e.rules, id)
	if err := e.saveRulesLocked(); err != nil {
		e.rules[id] = rule
		return models.WrapE(models.KindIO, err, "persist rules")
	}

	e.resolveLocked(id, "rule_deleted", false)
	delete(e.triggers, id)

	e.auditLog.Action("rule_delete", "user", id, rule.Name)
	return nil
}

// SetEnabled toggles a rule. Disabling auto-resolves the rule's active
// alert with reason rule_disabled and no recovery notification.
func (e *Engine) SetEnabled(id string, enabled bool) (*models.AlertRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[id]
	if !ok {
		return nil, models.E(models.KindNotFound, "rule %s not found", id)
	}
	if rule.Enabled == enabled {
		return rule.Clone(), nil
	}

	previous := rule.Clone()
	rule.Enabled = enabled
	rule.UpdatedAt = models.NewMillis(e.now())
	if err := e.saveRulesLocked(); err != nil {
		e.rules[id] = previous
		return nil, models.WrapE(models.KindIO, err, "persist rules")
	}

	if !enabled {
		e.resolveLocked(id, "rule_disabled", false)
		delete(e.triggers, id)
		e.auditLog.Action("rule_disable", "user", id, rule.Name)
	} else {
		e.auditLog.Action("rule_enable", "user", id, rule.Name)
	}
	return rule.Clone(), nil
}

// GetRule returns a rule by ID.
func (e *Engine) GetRule(id string) (*models.AlertRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[id]
	if !ok {
		return nil, models.E(models.KindNotFound, "rule %s not found", id)
	}
	return rule.Clone(), nil
}

// ListRules returns all rules sorted by creation time.
func (e *Engine) ListRules() []*models.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*models.AlertRule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, rule.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
	})
	return out
}

// GetActiveAlerts returns a snapshot of all active alert events.
func (e *Engine) GetActiveAlerts() []*models.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*models.AlertEvent, 0, len(e.active))
	for _, event := range e.active {
		out = append(out, event.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggeredAt.Before(out[j].TriggeredAt.Time)
	})
	return out
}

// GetAlertHistory returns persisted alert events between from and to.
func (e *Engine) GetAlertHistory(from, to time.Time) ([]models.AlertEvent, error) {
	events, err := e.events.Range(from, to)
	if err != nil {
		return nil, models.WrapE(models.KindIO, err, "read alert history")
	}
	filtered := events[:0]
	for _, ev := range events {
		if ev.TriggeredAt.Before(from) || ev.TriggeredAt.After(to) {
			continue
		}
		filtered = append(filtered, ev)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].TriggeredAt.Before(filtered[j].TriggeredAt.Time)
	})
	return filtered, nil
}

// ResolveAlert manually resolves an active alert by event ID.
func (e *Engine) ResolveAlert(eventID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for ruleID, event := range e.active {
		if event.ID == eventID {
			e.resolveLocked(ruleID, "manual", true)
			return nil
		}
	}
	return models.E(models.KindState, "alert %s is not active", eventID)
}

// Evaluate runs one evaluation tick: recovery checks over active alerts
// first, then trigger evaluation for every enabled rule. A rule that fails
// evaluation is logged and skipped; the rest continue.
func (e *Engine) Evaluate(set models.SampleSet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.checkRecoveryLocked(set)

	now := e.now()
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		if rule.LastTriggeredAt != nil && rule.CooldownMs > 0 {
			if now.Sub(rule.LastTriggeredAt.Time) < time.Duration(rule.CooldownMs)*time.Millisecond {
				continue
			}
		}
		e.evaluateRuleLocked(rule, set, now)
	}
}

// checkRecoveryLocked resolves active alerts whose triggering condition no
// longer holds. Deleted rules auto-resolve silently.
func (e *Engine) checkRecoveryLocked(set models.SampleSet) {
	for ruleID, event := range e.active {
		rule, ok := e.rules[ruleID]
		if !ok {
			e.resolveLocked(ruleID, "rule_deleted", false)
			continue
		}

		value, ok := e.currentValueLocked(rule, set)
		if !ok {
			continue
		}

		recovered := false
		if rule.Metric == models.MetricInterfaceStatus {
			// Condition is status == target; recovery is status != target.
			recovered = models.InterfaceStatus(statusName(value)) != rule.TargetStatus
		} else {
			recovered = !rule.Operator.Compare(value, rule.Threshold)
		}

		if recovered {
			notify := rule.Enabled
			reason := "recovered"
			if !notify {
				reason = "rule_disabled"
			}
			log.Info().
				Str("rule", rule.Name).
				Str("eventID", event.ID).
				Float64("value", value).
				Msg("alert condition recovered")
			e.resolveLocked(ruleID, reason, notify)
		}
	}
}

func (e *Engine) evaluateRuleLocked(rule *models.AlertRule, set models.SampleSet, now time.Time) {
	value, ok := e.currentValueLocked(rule, set)
	if !ok {
		return
	}

	met := false
	if rule.Metric == models.MetricInterfaceStatus {
		met = models.InterfaceStatus(statusName(value)) == rule.TargetStatus
	} else {
		met = rule.Operator.Compare(value, rule.Threshold)
	}

	state := e.triggers[rule.ID]
	if state == nil {
		state = &triggerState{}
		e.triggers[rule.ID] = state
	}
	state.lastEvaluatedAt = now

	if !met {
		state.consecutiveCount = 0
		return
	}
	state.consecutiveCount++

	if state.consecutiveCount < rule.DurationSamples {
		return
	}
	if _, hasActive := e.active[rule.ID]; hasActive {
		return
	}

	event := &models.AlertEvent{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		Severity:     rule.Severity,
		Metric:       rule.Metric,
		CurrentValue: value,
		Threshold:    rule.Threshold,
		Channels:     append([]string(nil), rule.Channels...),
		Message:      e.alertMessage(rule, value),
		Status:       models.AlertActive,
		TriggeredAt:  models.NewMillis(now),
	}

	triggeredAt := models.NewMillis(now)
	rule.LastTriggeredAt = &triggeredAt
	state.consecutiveCount = 0

	if err := e.events.Append(event.TriggeredAt.DayKey(), *event); err != nil {
		log.Error().Err(err).Str("rule", rule.Name).Msg("failed to persist alert event")
	}
	if err := e.saveRulesLocked(); err != nil {
		log.Error().Err(err).Msg("failed to persist rule trigger time")
	}

	e.active[rule.ID] = event
	e.auditLog.Record(audit.Entry{
		Action:   "alert_trigger",
		Actor:    "rule_engine",
		Resource: event.ID,
		Detail:   event.Message,
		Data:     map[string]string{"ruleId": rule.ID, "severity": string(rule.Severity)},
	})

	log.Warn().
		Str("rule", rule.Name).
		Str("severity", string(rule.Severity)).
		Float64("value", value).
		Float64("threshold", rule.Threshold).
		Msg("alert triggered")

	callbacks := append([]AlertCallback(nil), e.onAlert...)
	eventCopy := event.Clone()
	ruleCopy := rule.Clone()
	responder := e.responder

	// Callbacks and auto-response run outside the lock.
	go func() {
		for _, cb := range callbacks {
			cb(eventCopy, ruleCopy)
		}
		if responder != nil && ruleCopy.AutoResponse != "" {
			result, err := responder(ruleCopy, eventCopy)
			if err != nil {
				result = fmt.Sprintf("auto-response failed: %v", err)
				log.Error().Err(err).Str("rule", ruleCopy.Name).Msg("auto-response failed")
			}
			e.setAutoResponseResult(eventCopy.ID, ruleCopy.ID, result)
		}
	}()
}

// currentValueLocked extracts the rule's current metric value from the
// sample set. For interface_status the value encodes the status (1=up,
// 0=down). A false return means the rule is skipped this tick.
func (e *Engine) currentValueLocked(rule *models.AlertRule, set models.SampleSet) (float64, bool) {
	switch rule.Metric {
	case models.MetricCPU:
		if set.System == nil {
			return 0, false
		}
		return set.System.CPUPct, true
	case models.MetricMemory:
		if set.System == nil {
			return 0, false
		}
		return set.System.MemUsedPct(), true
	case models.MetricDisk:
		if set.System == nil {
			return 0, false
		}
		return set.System.DiskUsedPct(), true
	case models.MetricInterfaceStatus:
		ifc, ok := set.Interface(rule.MetricLabel)
		if !ok {
			log.Warn().Str("rule", rule.Name).Str("interface", rule.MetricLabel).Msg("interface missing from sample set")
			return 0, false
		}
		if ifc.Status == models.InterfaceUp {
			return 1, true
		}
		return 0, true
	case models.MetricInterfaceTraffic:
		if e.rater == nil {
			return 0, false
		}
		rate, ok := e.rater.TrafficRate(rule.MetricLabel, trafficWindow)
		if !ok {
			rate, ok = e.rater.TrafficRate(rule.MetricLabel, trafficWindowExtended)
		}
		if !ok {
			return 0, false
		}
		// The measured rate is bytes/sec; convert to the rule's unit.
		if rule.Unit == models.UnitBps {
			return rate, true
		}
		return rate / 1024, true
	}
	return 0, false
}

func statusName(value float64) string {
	if value >= 1 {
		return string(models.InterfaceUp)
	}
	return string(models.InterfaceDown)
}

func (e *Engine) alertMessage(rule *models.AlertRule, value float64) string {
	switch rule.Metric {
	case models.MetricInterfaceStatus:
		return fmt.Sprintf("interface %s is %s", rule.MetricLabel, statusName(value))
	case models.MetricInterfaceTraffic:
		unit := rule.Unit
		if unit == "" {
			unit = models.UnitKBps
		}
		return fmt.Sprintf("interface %s traffic %.1f %s %s threshold %.1f %s",
			rule.MetricLabel, value, unit, rule.Operator, rule.Threshold, unit)
	default:
		return fmt.Sprintf("%s usage %.1f%% %s threshold %.1f%%", rule.Metric, value, rule.Operator, rule.Threshold)
	}
}

// resolveLocked finalizes an active alert: sets resolved state, updates the
// persisted record, audits, and fires resolution callbacks.
func (e *Engine) resolveLocked(ruleID, reason string, notify bool) {
	event, ok := e.active[ruleID]
	if !ok {
		return
	}
	delete(e.active, ruleID)
	delete(e.triggers, ruleID)

	resolvedAt := models.NewMillis(e.now())
	if resolvedAt.Before(event.TriggeredAt.Time) {
		resolvedAt = event.TriggeredAt
	}
	event.Status = models.AlertResolved
	event.ResolvedAt = &resolvedAt

	e.updatePersistedEvent(event)
	e.auditLog.Record(audit.Entry{
		Action:   "alert_resolve",
		Actor:    "rule_engine",
		Resource: event.ID,
		Detail:   event.Message,
		Data:     map[string]string{"ruleId": ruleID, "resolve_reason": reason},
	})

	callbacks := append([]ResolveCallback(nil), e.onResolved...)
	eventCopy := event.Clone()
	go func() {
		for _, cb := range callbacks {
			cb(eventCopy, reason, notify)
		}
	}()
}

// updatePersistedEvent rewrites the event's record inside its trigger-day
// file.
func (e *Engine) updatePersistedEvent(event *models.AlertEvent) {
	day := event.TriggeredAt.DayKey()
	records, err := e.events.ReadDay(day)
	if err != nil {
		log.Error().Err(err).Str("day", day).Msg("failed to read alert events for update")
		return
	}
	for i := range records {
		if records[i].ID == event.ID {
			records[i] = *event
			if err := e.events.ReplaceDay(day, records); err != nil {
				log.Error().Err(err).Str("day", day).Msg("failed to update alert event")
			}
			return
		}
	}
}

func (e *Engine) setAutoResponseResult(eventID, ruleID, result string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if event, ok := e.active[ruleID]; ok && event.ID == eventID {
		event.AutoResponseResult = result
		e.updatePersistedEvent(event)
	}
}

func (e *Engine) loadRules() error {
	var rules []*models.AlertRule
	err := storage.ReadJSONFile(e.rulesFile, &rules)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return models.WrapE(models.KindIO, err, "load rules")
	}
	for _, rule := range rules {
		e.rules[rule.ID] = rule
	}
	log.Info().Int("count", len(rules)).Msg("loaded alert rules")
	return nil
}

func (e *Engine) saveRulesLocked() error {
	rules := make([]*models.AlertRule, 0, len(e.rules))
	for _, rule := range e.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CreatedAt.Before(rules[j].CreatedAt.Time)
	})
	return storage.WriteJSONFile(e.rulesFile, rules)
}

// rebuildActive rescans recent event files for alerts persisted as active.
// In-memory trigger counters are not rebuilt; they restart from zero.
func (e *Engine) rebuildActive() {
	now := e.now()
	events, err := e.events.Range(now.AddDate(0, 0, -activeRebuildDays), now)
	if err != nil {
		log.Error().Err(err).Msg("failed to rebuild active alerts")
		return
	}
	for i := range events {
		event := events[i]
		if event.Status != models.AlertActive {
			continue
		}
		if _, ok := e.rules[event.RuleID]; !ok {
			continue
		}
		copied := event
		e.active[event.RuleID] = &copied
	}
	if len(e.active) > 0 {
		log.Info().Int("count", len(e.active)).Msg("rebuilt active alerts from disk")
	}
}

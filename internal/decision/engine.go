package decision

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/notify"
	"github.com/btnalit/routeros-aiops/internal/rootcause"
	"github.com/btnalit/routeros-aiops/internal/storage"
)

// historyRetentionDays is how long decision day files are kept.
const historyRetentionDays = 90

// eqTolerance is the epsilon used by eq and ne conditions on factor scores.
const eqTolerance = 0.001

// Executor runs the automated remediation for a decision. Implemented by
// the remediation planner.
type Executor interface {
	Execute(ctx context.Context, event *models.UnifiedEvent, d *Decision) (string, error)
}

// Engine owns decision rules and history.
type Engine struct {
	mu sync.Mutex

	rulesFile  string
	rules      []Rule
	history    *storage.DayStore[Decision]
	auditLog   *audit.Log
	dispatcher notify.Dispatcher
	executor   Executor

	now func() time.Time
}

// New loads rules from rulesFile, seeding the defaults when the file does
// not exist. dispatcher and executor may be nil; affected actions then
// degrade to audit-only.
func New(rulesFile, historyDir string, auditLog *audit.Log, dispatcher notify.Dispatcher, executor Executor) (*Engine, error) {
	history, err := storage.NewDayStore[Decision](historyDir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		rulesFile:  rulesFile,
		history:    history,
		auditLog:   auditLog,
		dispatcher: dispatcher,
		executor:   executor,
		now:        time.Now,
	}

	if err := storage.ReadJSONFile(rulesFile, &e.rules); err != nil {
		if !os.IsNotExist(err) {
			return nil, models.WrapE(models.KindIO, err, "load decision rules %s", rulesFile)
		}
		e.rules = defaultRules()
		if err := storage.WriteJSONFile(rulesFile, e.rules); err != nil {
			return nil, models.WrapE(models.KindIO, err, "seed decision rules")
		}
	}
	e.sortRulesLocked()

	return e, nil
}

// defaultRules is the out-of-the-box rule list. Emergencies always
// escalate; quiet low-severity local incidents during stable operation are
// auto-remediated; everything else falls through to notify_and_wait.
func defaultRules() []Rule {
	return []Rule{
		{
			ID:       "rule-emergency-escalate",
			Name:     "Escalate emergencies",
			Priority: 1,
			Conditions: []Condition{
				{Factor: FactorSeverity, Operator: models.OpGTE, Value: 0.95},
			},
			Action:  ActionEscalate,
			Enabled: true,
		},
		{
			ID:       "rule-safe-auto-execute",
			Name:     "Auto-remediate low-risk local incidents",
			Priority: 10,
			Conditions: []Condition{
				{Factor: FactorSeverity, Operator: models.OpLTE, Value: 0.4},
				{Factor: FactorScope, Operator: models.OpGTE, Value: 0.8},
				{Factor: FactorSuccessRate, Operator: models.OpGTE, Value: 0.7},
			},
			Action:  ActionAutoExecute,
			Enabled: true,
		},
		{
			ID:       "rule-widespread-escalate",
			Name:     "Escalate widespread impact",
			Priority: 20,
			Conditions: []Condition{
				{Factor: FactorScope, Operator: models.OpLTE, Value: 0.2},
				{Factor: FactorSeverity, Operator: models.OpGTE, Value: 0.8},
			},
			Action:  ActionEscalate,
			Enabled: true,
		},
		{
			ID:         "rule-default-notify",
			Name:       "Fallback",
			Priority:   100,
			Conditions: nil,
			Action:     ActionNotifyAndWait,
			Enabled:    true,
		},
	}
}

func (e *Engine) sortRulesLocked() {
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority < e.rules[j].Priority
	})
}

func (e *Engine) persistLocked() error {
	if err := storage.WriteJSONFile(e.rulesFile, e.rules); err != nil {
		return models.WrapE(models.KindIO, err, "persist decision rules")
	}
	return nil
}

// Decide scores the event, matches a rule, executes the action, and
// persists the decision.
func (e *Engine) Decide(ctx context.Context, event *models.UnifiedEvent, analysis *rootcause.Analysis) (*Decision, error) {
	factors := e.scoreFactors(event, analysis)
	action, matched := e.matchRule(factors)

	d := &Decision{
		ID:        uuid.NewString(),
		AlertID:   event.ID,
		Timestamp: models.NewMillis(e.now()),
		Action:    action,
		Factors:   factors,
		Reasoning: reasoning(factors, matched, action),
	}
	if matched != nil {
		d.MatchedRuleID = matched.ID
	}

	e.execute(ctx, event, d)

	if err := e.history.Append(d.Timestamp.DayKey(), *d); err != nil {
		return nil, models.WrapE(models.KindIO, err, "persist decision")
	}
	return d, nil
}

// matchRule walks rules in priority order and returns the first whose
// conditions all hold. No match falls back to notify_and_wait.
func (e *Engine) matchRule(factors []Factor) (string, *Rule) {
	scores := make(map[string]float64, len(factors))
	for _, f := range factors {
		scores[f.Name] = f.Score
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.Enabled {
			continue
		}
		if conditionsMatch(rule.Conditions, scores) {
			copied := *rule
			return rule.Action, &copied
		}
	}
	return ActionNotifyAndWait, nil
}

func conditionsMatch(conditions []Condition, scores map[string]float64) bool {
	for _, c := range conditions {
		score, ok := scores[c.Factor]
		if !ok {
			return false
		}
		switch c.Operator {
		case models.OpEQ:
			if math.Abs(score-c.Value) >= eqTolerance {
				return false
			}
		case models.OpNE:
			if math.Abs(score-c.Value) < eqTolerance {
				return false
			}
		default:
			if !c.Operator.Compare(score, c.Value) {
				return false
			}
		}
	}
	return true
}

func reasoning(factors []Factor, matched *Rule, action string) string {
	var b strings.Builder
	for i, f := range factors {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%.2f (weight %.2f)", f.Name, f.Score, f.Weight)
	}
	if matched != nil {
		fmt.Fprintf(&b, "; matched rule %s (priority %d) -> %s", matched.ID, matched.Priority, action)
	} else {
		fmt.Fprintf(&b, "; no rule matched -> %s", action)
	}
	return b.String()
}

// execute carries out the decided action. Failures are recorded on the
// decision, never propagated: one bad action must not stall the stream.
func (e *Engine) execute(ctx context.Context, event *models.UnifiedEvent, d *Decision) {
	e.auditLog.Record(audit.Entry{
		Action:   "alert_trigger",
		Actor:    "decision-engine",
		Resource: event.ID,
		Detail:   d.Action + "_decision",
		Data:     map[string]string{"decisionId": d.ID, "ruleId": d.MatchedRuleID},
	})

	switch d.Action {
	case ActionAutoExecute:
		e.runExecutor(ctx, event, d)
	case ActionNotifyAndWait:
		e.send(ctx, event, d, notify.PriorityNormal)
	case ActionEscalate:
		e.send(ctx, event, d, notify.PriorityHigh)
	case ActionSilence:
		// Audit only.
	}
}

func (e *Engine) runExecutor(ctx context.Context, event *models.UnifiedEvent, d *Decision) {
	if e.executor == nil {
		d.ExecutionResult = &ExecutionResult{
			Success:     false,
			Detail:      "no remediation executor configured",
			CompletedAt: models.NewMillis(e.now()),
		}
		return
	}

	detail, err := e.executor.Execute(ctx, event, d)
	d.Executed = true
	result := &ExecutionResult{Detail: detail, CompletedAt: models.NewMillis(e.now())}
	if err != nil {
		result.Success = false
		result.Detail = err.Error()
		log.Error().Err(err).Str("event", event.ID).Msg("auto-execute failed")
	} else {
		result.Success = true
	}
	d.ExecutionResult = result
}

func (e *Engine) send(ctx context.Context, event *models.UnifiedEvent, d *Decision, priority string) {
	if e.dispatcher == nil {
		return
	}

	// Metric-origin events route to the triggering rule's channels; an
	// empty list still means every registered channel.
	var channels []string
	if event.AlertRuleInfo != nil {
		channels = event.AlertRuleInfo.Channels
	}

	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(event.Severity)), event.Category)
	if priority == notify.PriorityHigh {
		title = "ESCALATION: " + title
	}
	err := e.dispatcher.Send(ctx, channels, notify.Message{
		Type:     "decision",
		Title:    title,
		Body:     event.Message,
		Priority: priority,
		Data: map[string]string{
			"eventId":    event.ID,
			"decisionId": d.ID,
			"action":     d.Action,
			"reasoning":  d.Reasoning,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("event", event.ID).Msg("decision notification failed")
	}
}

// NotifyRecovery announces a resolved alert on the channels the alert was
// routed to when it triggered. Best effort.
func (e *Engine) NotifyRecovery(ctx context.Context, event *models.AlertEvent, reason string) {
	if e.dispatcher == nil {
		return
	}

	err := e.dispatcher.Send(ctx, event.Channels, notify.Message{
		Type:     "recovery",
		Title:    fmt.Sprintf("RESOLVED: %s", event.RuleName),
		Body:     event.Message,
		Priority: notify.PriorityNormal,
		Data: map[string]string{
			"eventId": event.ID,
			"ruleId":  event.RuleID,
			"reason":  reason,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("event", event.ID).Msg("recovery notification failed")
	}
}

// History returns persisted decisions in the given range.
func (e *Engine) History(from, to time.Time) ([]Decision, error) {
	decisions, err := e.history.Range(from, to)
	if err != nil {
		return nil, models.WrapE(models.KindIO, err, "read decision history")
	}
	return decisions, nil
}

// Sweep removes decision day files past retention.
func (e *Engine) Sweep() {
	cutoff := e.now().UTC().AddDate(0, 0, -historyRetentionDays)
	if removed, err := e.history.Sweep(cutoff); err != nil {
		log.Error().Err(err).Msg("decision retention sweep failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("decision retention sweep completed")
	}
}

// AddRule registers a rule.
func (e *Engine) AddRule(rule Rule) (*Rule, error) {
	if err := validateRule(&rule); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rule.ID = uuid.NewString()
	e.rules = append(e.rules, rule)
	e.sortRulesLocked()
	if err := e.persistLocked(); err != nil {
		e.removeRuleLocked(rule.ID)
		return nil, err
	}
	e.auditLog.Action("decision_rule_create", "user", rule.ID, rule.Name)
	return &rule, nil
}

// UpdateRule replaces a rule by id.
func (e *Engine) UpdateRule(id string, rule Rule) (*Rule, error) {
	if err := validateRule(&rule); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.rules {
		if e.rules[i].ID != id {
			continue
		}
		previous := e.rules[i]
		rule.ID = id
		e.rules[i] = rule
		e.sortRulesLocked()
		if err := e.persistLocked(); err != nil {
			e.removeRuleLocked(id)
			e.rules = append(e.rules, previous)
			e.sortRulesLocked()
			return nil, err
		}
		e.auditLog.Action("decision_rule_update", "user", id, rule.Name)
		return &rule, nil
	}
	return nil, models.E(models.KindNotFound, "decision rule %s not found", id)
}

// DeleteRule removes a rule by id.
func (e *Engine) DeleteRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.rules {
		if e.rules[i].ID != id {
			continue
		}
		removed := e.rules[i]
		e.rules = append(e.rules[:i], e.rules[i+1:]...)
		if err := e.persistLocked(); err != nil {
			e.rules = append(e.rules, removed)
			e.sortRulesLocked()
			return err
		}
		e.auditLog.Action("decision_rule_delete", "user", id, removed.Name)
		return nil
	}
	return models.E(models.KindNotFound, "decision rule %s not found", id)
}

// ListRules returns rules in priority order.
func (e *Engine) ListRules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

func (e *Engine) removeRuleLocked(id string) {
	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return
		}
	}
}

func validateRule(rule *Rule) error {
	if rule.Name == "" {
		return models.E(models.KindValidation, "decision rule requires a name")
	}
	if !validAction(rule.Action) {
		return models.E(models.KindValidation, "invalid action %q", rule.Action)
	}
	for _, c := range rule.Conditions {
		if !c.Operator.Valid() {
			return models.E(models.KindValidation, "invalid operator %q", c.Operator)
		}
		switch c.Factor {
		case FactorSeverity, FactorTimeOfDay, FactorSuccessRate, FactorScope:
		default:
			return models.E(models.KindValidation, "unknown factor %q", c.Factor)
		}
	}
	return nil
}

// Package decision scores events on weighted factors and maps them to an
// action through a prioritized rule list, then executes the action.
package decision

import (
	"github.com/btnalit/routeros-aiops/internal/models"
)

// Actions a decision can take.
const (
	ActionAutoExecute   = "auto_execute"
	ActionNotifyAndWait = "notify_and_wait"
	ActionEscalate      = "escalate"
	ActionSilence       = "silence"
)

// Built-in factor names.
const (
	FactorSeverity    = "severity"
	FactorTimeOfDay   = "time_of_day"
	FactorSuccessRate = "success_rate"
	FactorScope       = "affected_scope"
)

// Factor is one scored dimension of a decision. Scores are clamped to [0,1].
type Factor struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Condition compares one factor score against a value.
type Condition struct {
	Factor   string          `json:"factor"`
	Operator models.Operator `json:"operator"`
	Value    float64         `json:"value"`
}

// Rule maps factor conditions to an action. Lower priority matches first;
// an empty condition list always matches and serves as the fallback.
type Rule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Priority   int         `json:"priority"`
	Conditions []Condition `json:"conditions"`
	Action     string      `json:"action"`
	Enabled    bool        `json:"enabled"`
}

// ExecutionResult records the outcome of an executed action.
type ExecutionResult struct {
	Success     bool          `json:"success"`
	Detail      string        `json:"detail,omitempty"`
	CompletedAt models.Millis `json:"completedAt"`
}

// Decision is the persisted outcome for one event.
type Decision struct {
	ID              string           `json:"id"`
	AlertID         string           `json:"alertId"`
	Timestamp       models.Millis    `json:"timestamp"`
	Action          string           `json:"action"`
	Reasoning       string           `json:"reasoning"`
	Factors         []Factor         `json:"factors"`
	MatchedRuleID   string           `json:"matchedRuleId,omitempty"`
	Executed        bool             `json:"executed"`
	ExecutionResult *ExecutionResult `json:"executionResult,omitempty"`
}

func validAction(action string) bool {
	switch action {
	case ActionAutoExecute, ActionNotifyAndWait, ActionEscalate, ActionSilence:
		return true
	}
	return false
}

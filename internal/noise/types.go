// Package noise decides whether an event is noise before it reaches
// analysis. Checks run in priority order: maintenance window, known issue,
// transient flap, optional AI assist.
package noise

import (
	"regexp"
	"strings"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// Filter reasons, in check priority order.
const (
	ReasonMaintenance = "maintenance"
	ReasonKnownIssue  = "known_issue"
	ReasonTransient   = "transient"
	ReasonAIFiltered  = "ai_filtered"
)

// Recurrence schedule types.
const (
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
)

// Recurrence describes how a maintenance window repeats.
type Recurrence struct {
	Type       string `json:"type"`
	DayOfWeek  []int  `json:"dayOfWeek,omitempty"`  // 0=Sunday
	DayOfMonth []int  `json:"dayOfMonth,omitempty"` // 1-31
}

// MaintenanceWindow suppresses events on its resources while active. An
// empty resource list matches every event; resource items support the *
// wildcard.
type MaintenanceWindow struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	StartTime models.Millis `json:"startTime"`
	EndTime   models.Millis `json:"endTime"`
	Resources []string      `json:"resources"`
	Recurring *Recurrence   `json:"recurring,omitempty"`
	CreatedAt models.Millis `json:"createdAt"`
}

// KnownIssue marks matching events as expected. Pattern is a
// case-insensitive regular expression; on compile failure it degrades to a
// case-insensitive substring match.
type KnownIssue struct {
	ID          string         `json:"id"`
	Pattern     string         `json:"pattern"`
	Description string         `json:"description"`
	ExpiresAt   *models.Millis `json:"expiresAt,omitempty"`
	AutoResolve bool           `json:"autoResolve"`
	CreatedAt   models.Millis  `json:"createdAt"`

	re *regexp.Regexp
}

func (k *KnownIssue) compile() {
	re, err := regexp.Compile("(?i)" + k.Pattern)
	if err != nil {
		k.re = nil
		return
	}
	k.re = re
}

// matches tests the pattern against a string, falling back to substring
// match when the pattern failed to compile.
func (k *KnownIssue) matches(s string) bool {
	if k.re != nil {
		return k.re.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(k.Pattern))
}

// Result is the outcome of a filter check.
type Result struct {
	Filtered   bool     `json:"filtered"`
	Reason     string   `json:"reason,omitempty"`
	Details    string   `json:"details,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Feedback verdicts a user can attach to a filter decision.
const (
	FeedbackCorrect       = "correct"
	FeedbackFalsePositive = "false_positive"
	FeedbackFalseNegative = "false_negative"
)

// Feedback records a user verdict on a filter decision, appended per UTC day.
type Feedback struct {
	AlertID      string        `json:"alertId"`
	FilterResult Result        `json:"filterResult"`
	UserFeedback string        `json:"userFeedback"`
	RecordedAt   models.Millis `json:"recordedAt"`
}

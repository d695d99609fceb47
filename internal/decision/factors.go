package decision

import (
	"time"

	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/rootcause"
)

// Factor weights. They sum to 1.0.
const (
	weightSeverity    = 0.35
	weightTimeOfDay   = 0.15
	weightSuccessRate = 0.25
	weightScope       = 0.25
)

// defaultSuccessRate is assumed when no executed decisions exist yet.
const defaultSuccessRate = 0.5

// scoreFactors computes the four built-in factors for an event. analysis
// may be nil, in which case the scope factor assumes local impact.
func (e *Engine) scoreFactors(event *models.UnifiedEvent, analysis *rootcause.Analysis) []Factor {
	scope := rootcause.ScopeLocal
	if analysis != nil && analysis.Impact.Scope != "" {
		scope = analysis.Impact.Scope
	}

	return []Factor{
		{Name: FactorSeverity, Score: severityScore(event.Severity), Weight: weightSeverity},
		{Name: FactorTimeOfDay, Score: timeOfDayScore(e.now()), Weight: weightTimeOfDay},
		{Name: FactorSuccessRate, Score: clampScore(e.successRate()), Weight: weightSuccessRate},
		{Name: FactorScope, Score: scopeScore(scope), Weight: weightScope},
	}
}

func severityScore(s models.Severity) float64 {
	switch s {
	case models.SeverityEmergency:
		return 1.0
	case models.SeverityCritical:
		return 0.8
	case models.SeverityWarning:
		return 0.4
	default:
		return 0.1
	}
}

// timeOfDayScore rates how risky automation is right now: business hours
// are safest to act in, deep night is when an unattended change hurts most.
func timeOfDayScore(now time.Time) float64 {
	hour := now.Hour()
	switch {
	case hour >= 9 && hour < 18:
		return 0.3
	case hour < 6:
		return 0.9
	default:
		return 0.6
	}
}

func scopeScore(scope string) float64 {
	switch scope {
	case rootcause.ScopeWidespread:
		return 0.2
	case rootcause.ScopePartial:
		return 0.5
	default:
		return 0.8
	}
}

// successRate is the fraction of executed decisions that succeeded over the
// retained history.
func (e *Engine) successRate() float64 {
	from := e.now().UTC().AddDate(0, 0, -historyRetentionDays)
	history, err := e.history.Range(from, e.now().UTC())
	if err != nil {
		return defaultSuccessRate
	}

	executed, succeeded := 0, 0
	for _, d := range history {
		if !d.Executed || d.ExecutionResult == nil {
			continue
		}
		executed++
		if d.ExecutionResult.Success {
			succeeded++
		}
	}
	if executed == 0 {
		return defaultSuccessRate
	}
	return float64(succeeded) / float64(executed)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

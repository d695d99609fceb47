// Package rootcause turns single events or correlated batches into a ranked
// root-cause analysis with timeline, impact scope, and similar-incident
// links.
package rootcause

import (
	"github.com/btnalit/routeros-aiops/internal/models"
)

// Impact scopes, ordered by blast radius.
const (
	ScopeLocal      = "local"
	ScopePartial    = "partial"
	ScopeWidespread = "widespread"
)

// Timeline entry classifications.
const (
	EntryTrigger = "trigger"
	EntryCause   = "cause"
	EntryEffect  = "effect"
	EntrySymptom = "symptom"
)

// Cause is one ranked hypothesis. Confidence is an integer 0-100.
type Cause struct {
	ID            string   `json:"id"`
	Category      string   `json:"category"`
	Description   string   `json:"description"`
	Confidence    int      `json:"confidence"`
	Evidence      []string `json:"evidence,omitempty"`
	RelatedAlerts []string `json:"relatedAlerts,omitempty"`
}

// TimelineEntry places one event in the incident timeline.
type TimelineEntry struct {
	Timestamp   models.Millis `json:"timestamp"`
	EventID     string        `json:"eventId"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
}

// Impact describes the estimated blast radius of an incident.
type Impact struct {
	Scope           string   `json:"scope"`
	Services        []string `json:"services,omitempty"`
	NetworkSegments []string `json:"networkSegments,omitempty"`
	EstimatedUsers  int      `json:"estimatedUsers"`
}

// SimilarIncident links a past analysis with its similarity score.
type SimilarIncident struct {
	AnalysisID string        `json:"analysisId"`
	AlertID    string        `json:"alertId"`
	Timestamp  models.Millis `json:"timestamp"`
	Similarity float64       `json:"similarity"`
	Summary    string        `json:"summary,omitempty"`
}

// Analysis is the persisted outcome of a root-cause run. Causes are sorted
// by confidence descending. The alert message, severity, and category are
// carried for similar-incident scoring.
type Analysis struct {
	ID               string            `json:"id"`
	AlertID          string            `json:"alertId"`
	Timestamp        models.Millis     `json:"timestamp"`
	AlertMessage     string            `json:"alertMessage"`
	AlertSeverity    models.Severity   `json:"alertSeverity"`
	AlertCategory    string            `json:"alertCategory"`
	RootCauses       []Cause           `json:"rootCauses"`
	Timeline         []TimelineEntry   `json:"timeline"`
	Impact           Impact            `json:"impact"`
	SimilarIncidents []SimilarIncident `json:"similarIncidents,omitempty"`
}

// TopCause returns the highest-confidence cause, or nil for an empty list.
func (a *Analysis) TopCause() *Cause {
	if len(a.RootCauses) == 0 {
		return nil
	}
	return &a.RootCauses[0]
}

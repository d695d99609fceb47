// Package ai defines the analyzer contract consumed by the noise filter,
// root-cause analyzer, and alert triage, plus an HTTP-backed implementation
// speaking an OpenAI-compatible chat endpoint.
package ai

import (
	"context"
)

// Request is one analysis task sent to the model.
type Request struct {
	// Type labels the task, e.g. "noise_check", "root_cause", "alert_triage".
	Type string `json:"type"`
	// Context carries the task payload as pre-rendered key/value strings.
	Context map[string]string `json:"context"`
}

// Result is the structured analyzer response.
type Result struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations,omitempty"`
	// RiskLevel is one of low, medium, high, critical.
	RiskLevel  string  `json:"riskLevel"`
	Confidence float64 `json:"confidence"`
}

// Analyzer produces a structured assessment of an analysis request.
// Implementations must honor context cancellation.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Result, error)
	// Enabled reports whether the analyzer is configured and usable.
	Enabled() bool
}

// Noop is the analyzer used when no LLM endpoint is configured. Analyze
// always reports itself unavailable.
type Noop struct{}

func (Noop) Analyze(ctx context.Context, req Request) (Result, error) {
	return Result{}, ErrDisabled
}

func (Noop) Enabled() bool { return false }

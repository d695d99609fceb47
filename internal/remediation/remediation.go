// Package remediation plans and executes corrective actions for analyzed
// events. Plans move through an explicit state machine; execution always
// captures a pre-remediation snapshot so any plan can be rolled back.
package remediation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/decision"
	"github.com/btnalit/routeros-aiops/internal/device"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/rootcause"
	"github.com/btnalit/routeros-aiops/internal/snapshot"
	"github.com/btnalit/routeros-aiops/internal/storage"
)

// Plan statuses. Legal transitions: pending -> approved -> running ->
// completed|failed, and completed|failed -> rolled_back.
const (
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusRunning    = "running"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled_back"
)

// retentionDays is how long plan day files are kept.
const retentionDays = 90

// planTTL is how long a pending plan stays approvable. The situation it was
// planned for is stale after a day.
const planTTL = 24 * time.Hour

// Step is one corrective command. Auto steps may run without approval when
// the decision engine chose auto_execute. Rollback, when set, is the command
// that undoes this step after a later step fails.
type Step struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Command     string `json:"command"`
	Auto        bool   `json:"auto"`
	Risk        string `json:"risk"`
	Rollback    string `json:"rollback,omitempty"`

	Executed   bool   `json:"executed"`
	Success    bool   `json:"success"`
	RolledBack bool   `json:"rolledBack,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// Plan is one remediation proposal with its execution record.
type Plan struct {
	ID          string         `json:"id"`
	AlertID     string         `json:"alertId"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	Steps       []Step         `json:"steps"`
	CreatedAt   models.Millis  `json:"createdAt"`
	ApprovedAt  *models.Millis `json:"approvedAt,omitempty"`
	CompletedAt *models.Millis `json:"completedAt,omitempty"`
	// SnapshotID is the pre-remediation snapshot used for rollback.
	SnapshotID string `json:"snapshotId,omitempty"`
}

// Engine owns plan lifecycle and execution.
type Engine struct {
	mu sync.Mutex

	plans     map[string]*Plan
	store     *storage.DayStore[Plan]
	client    device.Client
	snapshots *snapshot.Store
	auditLog  *audit.Log

	now func() time.Time
}

// NewEngine opens the plan store. snapshots may be nil; rollback is then
// unavailable and execution proceeds without a safety snapshot.
func NewEngine(dir string, client device.Client, snapshots *snapshot.Store, auditLog *audit.Log) (*Engine, error) {
	store, err := storage.NewDayStore[Plan](dir)
	if err != nil {
		return nil, err
	}
	return &Engine{
		plans:     make(map[string]*Plan),
		store:     store,
		client:    client,
		snapshots: snapshots,
		auditLog:  auditLog,
		now:       time.Now,
	}, nil
}

// CreatePlan derives a plan from an analyzed event. Events whose top cause
// has no playbook get an empty manual plan.
func (e *Engine) CreatePlan(event *models.UnifiedEvent, analysis *rootcause.Analysis) *Plan {
	plan := &Plan{
		ID:        uuid.NewString(),
		AlertID:   event.ID,
		Status:    StatusPending,
		CreatedAt: models.NewMillis(e.now()),
	}

	causeID := "unknown"
	if analysis != nil {
		if top := analysis.TopCause(); top != nil {
			causeID = top.ID
		}
	}
	plan.Description, plan.Steps = playbook(causeID, event)

	e.mu.Lock()
	e.plans[plan.ID] = plan
	e.mu.Unlock()
	e.persist(plan)

	e.auditLog.Action("remediation_plan_create", "remediation-engine", plan.ID, plan.Description)
	return plan.clone()
}

// Approve moves a pending plan to approved.
func (e *Engine) Approve(id string) (*Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, ok := e.plans[id]
	if !ok {
		return nil, models.E(models.KindNotFound, "remediation plan %s not found", id)
	}
	if plan.Status != StatusPending {
		return nil, models.E(models.KindState, "cannot approve plan in status %s", plan.Status)
	}
	if e.now().Sub(plan.CreatedAt.Time) > planTTL {
		return nil, models.E(models.KindState, "plan %s expired, create a fresh one", id)
	}
	now := models.NewMillis(e.now())
	plan.Status = StatusApproved
	plan.ApprovedAt = &now
	e.persist(plan)
	e.auditLog.Action("remediation_plan_approve", "user", id, plan.Description)
	return plan.clone(), nil
}

// Execute runs an approved plan. With autoOnly set, only auto-marked steps
// run; the rest stay unexecuted. Execution stops at the first failing step
// and the rollback commands of already-applied steps run in reverse order.
// The plan completes when every executed step succeeded.
func (e *Engine) Execute(ctx context.Context, id string, autoOnly bool) (*Plan, error) {
	e.mu.Lock()
	plan, ok := e.plans[id]
	if !ok {
		e.mu.Unlock()
		return nil, models.E(models.KindNotFound, "remediation plan %s not found", id)
	}
	if plan.Status != StatusApproved {
		e.mu.Unlock()
		return nil, models.E(models.KindState, "cannot execute plan in status %s", plan.Status)
	}
	plan.Status = StatusRunning
	e.mu.Unlock()

	if e.snapshots != nil {
		pre, err := e.snapshots.Create(ctx, snapshot.TriggerPreRemediation)
		if err != nil {
			log.Warn().Err(err).Str("plan", id).Msg("pre-remediation snapshot failed, continuing without rollback point")
		} else {
			e.mu.Lock()
			plan.SnapshotID = pre.ID
			e.mu.Unlock()
		}
	}

	failed := 0
	executed := 0
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if autoOnly && !step.Auto {
			continue
		}
		started := time.Now()
		output, err := e.client.ExecuteRaw(ctx, step.Command, nil)
		step.DurationMs = time.Since(started).Milliseconds()
		step.Executed = true
		executed++
		if err != nil {
			step.Success = false
			step.Error = err.Error()
			failed++
			log.Error().Err(err).Str("plan", id).Str("step", step.ID).Msg("remediation step failed")
			e.undoApplied(ctx, id, plan.Steps[:i])
			break
		}
		step.Success = true
		step.Output = output
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := models.NewMillis(e.now())
	plan.CompletedAt = &now
	if failed > 0 || executed == 0 {
		plan.Status = StatusFailed
	} else {
		plan.Status = StatusCompleted
	}
	e.persist(plan)

	e.auditLog.Record(audit.Entry{
		Action:   "remediation_execute",
		Actor:    "remediation-engine",
		Resource: id,
		Detail:   plan.Status,
		Data:     map[string]string{"executed": fmt.Sprintf("%d", executed), "failed": fmt.Sprintf("%d", failed)},
	})
	return plan.clone(), nil
}

// undoApplied runs the rollback commands of already-applied steps, newest
// first. Best effort; a failing rollback is logged and the rest continue.
func (e *Engine) undoApplied(ctx context.Context, planID string, applied []Step) {
	for i := len(applied) - 1; i >= 0; i-- {
		step := &applied[i]
		if !step.Executed || !step.Success || step.Rollback == "" {
			continue
		}
		if _, err := e.client.ExecuteRaw(ctx, step.Rollback, nil); err != nil {
			log.Warn().Err(err).Str("plan", planID).Str("step", step.ID).Msg("step rollback failed")
			continue
		}
		step.RolledBack = true
	}
}

// Rollback restores the plan's pre-remediation snapshot. Only completed or
// failed plans can roll back.
func (e *Engine) Rollback(ctx context.Context, id string) (*Plan, error) {
	e.mu.Lock()
	plan, ok := e.plans[id]
	if !ok {
		e.mu.Unlock()
		return nil, models.E(models.KindNotFound, "remediation plan %s not found", id)
	}
	if plan.Status != StatusCompleted && plan.Status != StatusFailed {
		status := plan.Status
		e.mu.Unlock()
		return nil, models.E(models.KindState, "cannot roll back plan in status %s", status)
	}
	if plan.SnapshotID == "" || e.snapshots == nil {
		e.mu.Unlock()
		return nil, models.E(models.KindState, "plan %s has no rollback snapshot", id)
	}
	snapshotID := plan.SnapshotID
	e.mu.Unlock()

	result, err := e.snapshots.Restore(ctx, snapshotID)
	if err != nil {
		return nil, models.WrapE(models.KindDependency, err, "rollback restore failed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	plan.Status = StatusRolledBack
	e.persist(plan)
	e.auditLog.Record(audit.Entry{
		Action:   "remediation_rollback",
		Actor:    "user",
		Resource: id,
		Detail:   fmt.Sprintf("applied=%d failed=%d", result.Applied, result.Failed),
	})
	return plan.clone(), nil
}

// Get returns a plan by id.
func (e *Engine) Get(id string) (*Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, ok := e.plans[id]
	if !ok {
		return nil, models.E(models.KindNotFound, "remediation plan %s not found", id)
	}
	return plan.clone(), nil
}

// List returns all in-memory plans.
func (e *Engine) List() []Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Plan, 0, len(e.plans))
	for _, plan := range e.plans {
		out = append(out, *plan.clone())
	}
	return out
}

// Sweep removes plan day files past retention.
func (e *Engine) Sweep() {
	cutoff := e.now().UTC().AddDate(0, 0, -retentionDays)
	if removed, err := e.store.Sweep(cutoff); err != nil {
		log.Error().Err(err).Msg("remediation retention sweep failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("remediation retention sweep completed")
	}
}

// persist rewrites the plan's creation-day file with its current state.
func (e *Engine) persist(plan *Plan) {
	day := plan.CreatedAt.DayKey()
	records, err := e.store.ReadDay(day)
	if err != nil {
		log.Error().Err(err).Str("plan", plan.ID).Msg("failed to read plan day file")
		return
	}
	replaced := false
	for i := range records {
		if records[i].ID == plan.ID {
			records[i] = *plan.clone()
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, *plan.clone())
	}
	if err := e.store.ReplaceDay(day, records); err != nil {
		log.Error().Err(err).Str("plan", plan.ID).Msg("failed to persist plan")
	}
}

func (p *Plan) clone() *Plan {
	clone := *p
	clone.Steps = make([]Step, len(p.Steps))
	copy(clone.Steps, p.Steps)
	if p.ApprovedAt != nil {
		t := *p.ApprovedAt
		clone.ApprovedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// Responder adapts the engine to the decision engine's executor contract:
// create a plan, auto-approve it, and run its auto steps.
type Responder struct {
	Engine   *Engine
	Analyzer *rootcause.Analyzer
}

func (r *Responder) Execute(ctx context.Context, event *models.UnifiedEvent, d *decision.Decision) (string, error) {
	var analysis *rootcause.Analysis
	if r.Analyzer != nil {
		if a, err := r.Analyzer.Analyze(ctx, event); err == nil {
			analysis = a
		}
	}

	plan := r.Engine.CreatePlan(event, analysis)
	if !hasAutoSteps(plan) {
		return "", models.E(models.KindState, "no automatic remediation available for event %s", event.ID)
	}

	if _, err := r.Engine.Approve(plan.ID); err != nil {
		return "", err
	}
	executed, err := r.Engine.Execute(ctx, plan.ID, true)
	if err != nil {
		return "", err
	}
	if executed.Status != StatusCompleted {
		return "", models.E(models.KindDependency, "remediation plan %s finished %s", plan.ID, executed.Status)
	}
	return fmt.Sprintf("remediation plan %s completed", plan.ID), nil
}

func hasAutoSteps(plan *Plan) bool {
	for _, step := range plan.Steps {
		if step.Auto {
			return true
		}
	}
	return false
}

package remediation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/device"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/rootcause"
	"github.com/btnalit/routeros-aiops/internal/snapshot"
)

func testEngine(t *testing.T) (*Engine, *device.Fake) {
	t.Helper()
	dir := t.TempDir()

	auditLog, err := audit.New(filepath.Join(dir, "audit"), 30)
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}

	fake := device.NewFake()
	fake.PrimeRaw("/export", "/system identity\nset name=lab-router\n")

	snapshots, err := snapshot.New(filepath.Join(dir, "snapshots"), fake, auditLog)
	if err != nil {
		t.Fatalf("snapshot.New: %v", err)
	}

	engine, err := NewEngine(filepath.Join(dir, "plans"), fake, snapshots, auditLog)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, fake
}

func flapEvent() *models.UnifiedEvent {
	return &models.UnifiedEvent{
		ID:       "evt-flap",
		Severity: models.SeverityWarning,
		Category: "interface",
		Message:  "ether1 link down",
		Metadata: map[string]string{"interface": "ether1"},
	}
}

func flapAnalysis() *rootcause.Analysis {
	return &rootcause.Analysis{
		RootCauses: []rootcause.Cause{{ID: "interface-instability", Confidence: 85}},
	}
}

func TestPlanLifecycle(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()

	plan := engine.CreatePlan(flapEvent(), flapAnalysis())
	if plan.Status != StatusPending {
		t.Fatalf("status = %s, want pending", plan.Status)
	}
	if len(plan.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(plan.Steps))
	}

	if _, err := engine.Execute(ctx, plan.ID, false); models.KindOf(err) != models.KindState {
		t.Fatalf("execute before approval: err = %v, want state kind", err)
	}

	if _, err := engine.Approve(plan.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := engine.Approve(plan.ID); models.KindOf(err) != models.KindState {
		t.Fatalf("double approve: err = %v, want state kind", err)
	}

	done, err := engine.Execute(ctx, plan.ID, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if done.SnapshotID == "" {
		t.Fatal("expected a pre-remediation snapshot id")
	}
	for _, step := range done.Steps {
		if !step.Executed || !step.Success {
			t.Fatalf("step %s not executed successfully", step.ID)
		}
	}
	if len(fake.RawCalls) < 3 {
		t.Fatalf("device calls = %d, want at least 3", len(fake.RawCalls))
	}
}

func TestExecuteAutoOnlySkipsManualSteps(t *testing.T) {
	engine, _ := testEngine(t)
	ctx := context.Background()

	plan := engine.CreatePlan(flapEvent(), flapAnalysis())
	if _, err := engine.Approve(plan.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	done, err := engine.Execute(ctx, plan.ID, true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	for _, step := range done.Steps {
		if step.Auto && !step.Executed {
			t.Fatalf("auto step %s was skipped", step.ID)
		}
		if !step.Auto && step.Executed {
			t.Fatalf("manual step %s ran in auto-only mode", step.ID)
		}
	}
}

func TestExecuteStepFailureMarksPlanFailed(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()

	fake.FailRaw("/interface set [find default-name=ether1] disabled=no", errors.New("timeout"))

	plan := engine.CreatePlan(flapEvent(), flapAnalysis())
	if _, err := engine.Approve(plan.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	done, err := engine.Execute(ctx, plan.ID, true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", done.Status)
	}
	var failing *Step
	for i := range done.Steps {
		if done.Steps[i].ID == "enable-interface" {
			failing = &done.Steps[i]
		}
	}
	if failing == nil || failing.Success || failing.Error == "" {
		t.Fatalf("expected enable-interface step to record failure, got %+v", failing)
	}

	// The applied disable step must have been undone. Its rollback command
	// happens to be the enable command, so the device sees it twice: once as
	// the failing step, once as the rollback attempt.
	rollbacks := 0
	for _, call := range fake.RawCalls {
		if call == "/interface set [find default-name=ether1] disabled=no" {
			rollbacks++
		}
	}
	if rollbacks != 2 {
		t.Fatalf("enable command issued %d times, want step + rollback", rollbacks)
	}
}

func TestRollbackRestoresSnapshot(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()

	plan := engine.CreatePlan(flapEvent(), flapAnalysis())
	if _, err := engine.Rollback(ctx, plan.ID); models.KindOf(err) != models.KindState {
		t.Fatalf("rollback pending plan: err = %v, want state kind", err)
	}

	if _, err := engine.Approve(plan.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := engine.Execute(ctx, plan.ID, true); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	before := len(fake.RawCalls)
	rolled, err := engine.Rollback(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rolled.Status != StatusRolledBack {
		t.Fatalf("status = %s, want rolled_back", rolled.Status)
	}
	if len(fake.RawCalls) <= before {
		t.Fatal("rollback issued no device commands")
	}
}

func TestCreatePlanWithoutPlaybookIsManual(t *testing.T) {
	engine, _ := testEngine(t)

	event := &models.UnifiedEvent{ID: "evt-odd", Severity: models.SeverityInfo, Category: "system", Message: "strange state"}
	plan := engine.CreatePlan(event, &rootcause.Analysis{
		RootCauses: []rootcause.Cause{{ID: "unknown", Confidence: 40}},
	})
	if len(plan.Steps) != 0 {
		t.Fatalf("steps = %d, want 0", len(plan.Steps))
	}
	if plan.Description != "Manual investigation required" {
		t.Fatalf("description = %q", plan.Description)
	}
}

func TestResponderRunsAutoSteps(t *testing.T) {
	engine, _ := testEngine(t)
	responder := &Responder{Engine: engine}

	summary, err := responder.Execute(context.Background(), flapEvent(), nil)
	if err == nil {
		// Without an analyzer the cause is unknown, so no auto steps exist.
		t.Fatalf("expected no-playbook error, got summary %q", summary)
	}
	if models.KindOf(err) != models.KindState {
		t.Fatalf("err = %v, want state kind", err)
	}
}

func TestSweepRemovesOldPlans(t *testing.T) {
	engine, _ := testEngine(t)

	old := models.NewMillis(time.Now().AddDate(0, 0, -120))
	plan := &Plan{ID: "old-plan", Status: StatusCompleted, CreatedAt: old}
	engine.persist(plan)

	engine.Sweep()

	records, err := engine.store.ReadDay(old.DayKey())
	if err != nil {
		t.Fatalf("ReadDay: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("old plan survived sweep: %d records", len(records))
	}
}

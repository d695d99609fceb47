package noise

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/ai"
	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/storage"
)

// SuppressFlapChanges is the number of interface state changes inside
// flapWindow that marks an event as transient. Deliberately stricter than
// the aggregation threshold: aggregation groups, suppression discards.
const SuppressFlapChanges = 3

const flapWindow = 30 * time.Second

// feedbackRetentionDays is how long feedback day files are kept.
const feedbackRetentionDays = 90

// Filter is the noise decision engine.
type Filter struct {
	mu sync.Mutex

	windowsFile string
	issuesFile  string
	windows     []MaintenanceWindow
	issues      []*KnownIssue
	flaps       map[string][]time.Time
	feedback    *storage.DayStore[Feedback]
	analyzer    ai.Analyzer
	auditLog    *audit.Log

	now func() time.Time
}

// New loads maintenance windows and known issues from their files and opens
// the feedback store. analyzer may be nil to disable the AI check.
func New(maintenanceFile, knownIssuesFile, feedbackDir string, analyzer ai.Analyzer, auditLog *audit.Log) (*Filter, error) {
	feedback, err := storage.NewDayStore[Feedback](feedbackDir)
	if err != nil {
		return nil, err
	}

	f := &Filter{
		windowsFile: maintenanceFile,
		issuesFile:  knownIssuesFile,
		flaps:       make(map[string][]time.Time),
		feedback:    feedback,
		analyzer:    analyzer,
		auditLog:    auditLog,
		now:         time.Now,
	}

	if err := storage.ReadJSONFile(maintenanceFile, &f.windows); err != nil && !os.IsNotExist(err) {
		return nil, models.WrapE(models.KindIO, err, "load maintenance windows %s", maintenanceFile)
	}
	var issues []*KnownIssue
	if err := storage.ReadJSONFile(knownIssuesFile, &issues); err != nil && !os.IsNotExist(err) {
		return nil, models.WrapE(models.KindIO, err, "load known issues %s", knownIssuesFile)
	}
	for _, issue := range issues {
		issue.compile()
		f.issues = append(f.issues, issue)
	}

	return f, nil
}

func (f *Filter) persistWindowsLocked() error {
	if err := storage.WriteJSONFile(f.windowsFile, f.windows); err != nil {
		return models.WrapE(models.KindIO, err, "persist maintenance windows")
	}
	return nil
}

func (f *Filter) persistIssuesLocked() error {
	if err := storage.WriteJSONFile(f.issuesFile, f.issues); err != nil {
		return models.WrapE(models.KindIO, err, "persist known issues")
	}
	return nil
}

// Filter runs the checks in priority order and returns the first match.
func (f *Filter) Filter(ctx context.Context, event *models.UnifiedEvent) Result {
	if result := f.checkMaintenance(event); result.Filtered {
		return result
	}
	if result := f.checkKnownIssue(event); result.Filtered {
		return result
	}
	if result := f.checkTransient(event); result.Filtered {
		return result
	}
	return f.checkAI(ctx, event)
}

func (f *Filter) checkKnownIssue(event *models.UnifiedEvent) Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for _, issue := range f.issues {
		if issue.ExpiresAt != nil && now.After(issue.ExpiresAt.Time) {
			continue
		}
		if issue.matches(event.Message) || issue.matches(event.Category) {
			return Result{
				Filtered: true,
				Reason:   ReasonKnownIssue,
				Details:  issue.Description,
			}
		}
	}
	return Result{}
}

// checkTransient tracks interface state changes and suppresses once the
// change rate crosses the transient threshold.
func (f *Filter) checkTransient(event *models.UnifiedEvent) Result {
	if event.Category != "interface" || event.IsComposite {
		return Result{}
	}
	name := eventInterface(event)
	if name == "" || !isStateChange(event.Message) {
		return Result{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	cutoff := now.Add(-flapWindow)
	changes := f.flaps[name][:0]
	for _, at := range f.flaps[name] {
		if !at.Before(cutoff) {
			changes = append(changes, at)
		}
	}
	changes = append(changes, now)
	f.flaps[name] = changes

	if len(changes) >= SuppressFlapChanges {
		return Result{
			Filtered: true,
			Reason:   ReasonTransient,
			Details:  "interface " + name + " flapping faster than transient threshold",
		}
	}
	return Result{}
}

// noiseKeywords mark an AI summary as describing ignorable behavior.
var noiseKeywords = []string{"noise", "routine", "expected", "normal", "harmless", "benign"}

// checkAI consults the analyzer for info-severity events only. Any analyzer
// error defaults to not filtering.
func (f *Filter) checkAI(ctx context.Context, event *models.UnifiedEvent) Result {
	if event.Severity != models.SeverityInfo {
		return Result{}
	}
	if f.analyzer == nil || !f.analyzer.Enabled() {
		return Result{}
	}

	result, err := f.analyzer.Analyze(ctx, ai.Request{
		Type: "noise_check",
		Context: map[string]string{
			"category": event.Category,
			"severity": string(event.Severity),
			"message":  event.Message,
		},
	})
	if err != nil {
		if err != ai.ErrDisabled {
			log.Debug().Err(err).Str("event", event.ID).Msg("ai noise check failed, not filtering")
		}
		return Result{}
	}

	summary := strings.ToLower(result.Summary)
	if result.RiskLevel != "low" {
		return Result{}
	}
	for _, kw := range noiseKeywords {
		if strings.Contains(summary, kw) {
			confidence := result.Confidence
			return Result{
				Filtered:   true,
				Reason:     ReasonAIFiltered,
				Details:    result.Summary,
				Confidence: &confidence,
			}
		}
	}
	return Result{}
}

// RecordFeedback appends a user verdict on a filter decision.
func (f *Filter) RecordFeedback(fb Feedback) error {
	switch fb.UserFeedback {
	case FeedbackCorrect, FeedbackFalsePositive, FeedbackFalseNegative:
	default:
		return models.E(models.KindValidation, "invalid feedback verdict %q", fb.UserFeedback)
	}
	if fb.AlertID == "" {
		return models.E(models.KindValidation, "feedback requires an alert id")
	}

	fb.RecordedAt = models.NewMillis(f.now())
	if err := f.feedback.Append(fb.RecordedAt.DayKey(), fb); err != nil {
		return models.WrapE(models.KindIO, err, "persist filter feedback")
	}
	f.auditLog.Action("filter_feedback", "user", fb.AlertID, fb.UserFeedback)
	return nil
}

// SweepFeedback removes feedback day files past retention.
func (f *Filter) SweepFeedback() {
	cutoff := f.now().UTC().AddDate(0, 0, -feedbackRetentionDays)
	if removed, err := f.feedback.Sweep(cutoff); err != nil {
		log.Error().Err(err).Msg("feedback retention sweep failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("feedback retention sweep completed")
	}
}

// AddKnownIssue registers a pattern. The pattern is compiled case
// insensitively; compile failures degrade to substring matching.
func (f *Filter) AddKnownIssue(issue KnownIssue) (*KnownIssue, error) {
	if issue.Pattern == "" {
		return nil, models.E(models.KindValidation, "known issue requires a pattern")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	issue.ID = uuid.NewString()
	issue.CreatedAt = models.NewMillis(f.now())
	issue.compile()
	if issue.re == nil {
		log.Warn().Str("pattern", issue.Pattern).Msg("known issue pattern did not compile, using substring match")
	}
	f.issues = append(f.issues, &issue)
	if err := f.persistIssuesLocked(); err != nil {
		f.issues = f.issues[:len(f.issues)-1]
		return nil, err
	}

	f.auditLog.Action("known_issue_create", "user", issue.ID, issue.Pattern)
	copied := issue
	return &copied, nil
}

// DeleteKnownIssue removes a pattern by id.
func (f *Filter) DeleteKnownIssue(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, issue := range f.issues {
		if issue.ID != id {
			continue
		}
		f.issues = append(f.issues[:i], f.issues[i+1:]...)
		if err := f.persistIssuesLocked(); err != nil {
			return err
		}
		f.auditLog.Action("known_issue_delete", "user", id, issue.Pattern)
		return nil
	}
	return models.E(models.KindNotFound, "known issue %s not found", id)
}

// ListKnownIssues returns the registered issues.
func (f *Filter) ListKnownIssues() []KnownIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]KnownIssue, 0, len(f.issues))
	for _, issue := range f.issues {
		out = append(out, *issue)
	}
	return out
}

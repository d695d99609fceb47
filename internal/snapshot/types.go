// Package snapshot captures device configuration exports, diffs them, and
// flags dangerous changes. Snapshots are an out-of-band change source for
// the pipeline: a config edit shows up here even when no alert fired.
package snapshot

import (
	"github.com/btnalit/routeros-aiops/internal/models"
)

// Snapshot triggers.
const (
	TriggerAuto           = "auto"
	TriggerManual         = "manual"
	TriggerPreRemediation = "pre-remediation"
)

// MaxSnapshots is the FIFO retention cap enforced after every create.
const MaxSnapshots = 30

// Snapshot is one captured configuration export. The config body lives in
// <id>.rsc next to the index.
type Snapshot struct {
	ID        string            `json:"id"`
	Timestamp models.Millis     `json:"timestamp"`
	Trigger   string            `json:"trigger"`
	Size      int               `json:"size"`
	Checksum  string            `json:"checksum"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Modification is one changed config line, keyed identically in both
// snapshots.
type Modification struct {
	Key    string `json:"key"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Diff is the keyed delta between two snapshots.
type Diff struct {
	Additions     map[string]string `json:"additions"`
	Deletions     map[string]string `json:"deletions"`
	Modifications []Modification    `json:"modifications"`
}

// Empty reports whether the diff carries no changes.
func (d *Diff) Empty() bool {
	return len(d.Additions) == 0 && len(d.Deletions) == 0 && len(d.Modifications) == 0
}

// Risk levels for dangerous changes.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// DangerousMatch is one triggered pattern with the change lines that hit it.
type DangerousMatch struct {
	Name    string   `json:"name"`
	Risk    string   `json:"risk"`
	Matches []string `json:"matches"`
}

// DangerousReport summarizes dangerous-change detection over a diff.
type DangerousReport struct {
	Detected         bool             `json:"detected"`
	OverallRiskLevel string           `json:"overallRiskLevel,omitempty"`
	Patterns         []DangerousMatch `json:"patterns,omitempty"`
}

// RestoreResult reports a best-effort line-by-line restore.
type RestoreResult struct {
	Applied int      `json:"applied"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
	// PreRestoreSnapshotID is the safety snapshot taken before applying.
	PreRestoreSnapshotID string `json:"preRestoreSnapshotId"`
}

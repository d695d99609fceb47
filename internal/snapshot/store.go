package snapshot

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/device"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/storage"
)

// fallbackSections are exported one by one when the full export fails.
var fallbackSections = []string{
	"/system identity",
	"/system clock",
	"/interface",
	"/ip address",
	"/ip route",
	"/ip firewall filter",
	"/ip firewall nat",
	"/ip dns",
	"/ip service",
	"/user",
}

// Store owns the snapshot directory and its index.
type Store struct {
	mu sync.Mutex

	dir      string
	index    []Snapshot
	client   device.Client
	auditLog *audit.Log

	now func() time.Time
}

// New opens the snapshot directory and loads the index.
func New(dir string, client device.Client, auditLog *audit.Log) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, models.WrapE(models.KindIO, err, "create snapshot dir %s", dir)
	}

	s := &Store{
		dir:      dir,
		client:   client,
		auditLog: auditLog,
		now:      time.Now,
	}
	if err := storage.ReadJSONFile(s.indexFile(), &s.index); err != nil && !os.IsNotExist(err) {
		return nil, models.WrapE(models.KindIO, err, "load snapshot index")
	}
	return s, nil
}

func (s *Store) indexFile() string {
	return filepath.Join(s.dir, "index.json")
}

func (s *Store) configFile(id string) string {
	return filepath.Join(s.dir, id+".rsc")
}

// Create captures the current device configuration. Except for
// pre-remediation snapshots, the new capture is diffed against the previous
// one and any dangerous change is audited.
func (s *Store) Create(ctx context.Context, trigger string) (*Snapshot, error) {
	switch trigger {
	case TriggerAuto, TriggerManual, TriggerPreRemediation:
	default:
		return nil, models.E(models.KindValidation, "invalid snapshot trigger %q", trigger)
	}

	config, err := s.fetchConfig(ctx)
	if err != nil {
		return nil, err
	}

	sum := md5.Sum([]byte(config))
	snap := Snapshot{
		ID:        uuid.NewString(),
		Timestamp: models.NewMillis(s.now()),
		Trigger:   trigger,
		Size:      len(config),
		Checksum:  hex.EncodeToString(sum[:]),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *Snapshot
	if len(s.index) > 0 {
		p := s.index[len(s.index)-1]
		previous = &p
	}

	if err := os.WriteFile(s.configFile(snap.ID), []byte(config), 0o644); err != nil {
		return nil, models.WrapE(models.KindIO, err, "write snapshot %s", snap.ID)
	}
	s.index = append(s.index, snap)
	s.enforceRetentionLocked()
	if err := storage.WriteJSONFile(s.indexFile(), s.index); err != nil {
		s.removeLocked(snap.ID)
		return nil, models.WrapE(models.KindIO, err, "update snapshot index")
	}

	s.auditLog.Record(audit.Entry{
		Action:   "config_snapshot",
		Actor:    "snapshot-store",
		Resource: snap.ID,
		Detail:   trigger,
		Data:     map[string]string{"checksum": snap.Checksum, "size": fmt.Sprintf("%d", snap.Size)},
	})

	if trigger != TriggerPreRemediation && previous != nil {
		s.detectAndAuditLocked(previous.ID, &snap, config)
	}

	return &snap, nil
}

// detectAndAuditLocked diffs against the previous snapshot and writes a
// dangerous-change audit entry when the catalog matches.
func (s *Store) detectAndAuditLocked(previousID string, snap *Snapshot, config string) {
	previousConfig, err := os.ReadFile(s.configFile(previousID))
	if err != nil {
		log.Warn().Err(err).Str("snapshot", previousID).Msg("previous snapshot unreadable, skipping diff")
		return
	}

	diff := DiffConfigs(string(previousConfig), config)
	if diff.Empty() {
		return
	}

	report := DetectDangerousChanges(diff)
	if !report.Detected {
		return
	}

	names := make([]string, 0, len(report.Patterns))
	for _, p := range report.Patterns {
		names = append(names, p.Name)
	}
	log.Warn().Str("snapshot", snap.ID).Str("risk", report.OverallRiskLevel).
		Strs("patterns", names).Msg("dangerous configuration change detected")
	s.auditLog.Record(audit.Entry{
		Action:   "config_change",
		Actor:    "snapshot-store",
		Resource: snap.ID,
		Detail:   "dangerous_change_detection",
		Data: map[string]string{
			"risk":     report.OverallRiskLevel,
			"patterns": strings.Join(names, ","),
		},
	})
}

// fetchConfig exports the full configuration, falling back to per-section
// exports when the device rejects the full export.
func (s *Store) fetchConfig(ctx context.Context) (string, error) {
	if !s.client.IsConnected() {
		return "", models.E(models.KindDependency, "device not connected")
	}

	config, err := s.client.ExecuteRaw(ctx, "/export", nil)
	if err == nil && strings.TrimSpace(config) != "" {
		return config, nil
	}
	if err != nil {
		log.Debug().Err(err).Msg("full export failed, falling back to per-section export")
	}

	var b strings.Builder
	exported := 0
	for _, section := range fallbackSections {
		out, err := s.client.ExecuteRaw(ctx, section+" export", nil)
		if err != nil || strings.TrimSpace(out) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s\n%s\n", section, strings.TrimSpace(out))
		exported++
	}
	if exported == 0 {
		return "", models.E(models.KindDependency, "configuration export failed on every section")
	}
	return b.String(), nil
}

// enforceRetentionLocked drops the oldest snapshots past the cap.
func (s *Store) enforceRetentionLocked() {
	for len(s.index) > MaxSnapshots {
		oldest := s.index[0]
		s.index = s.index[1:]
		if err := os.Remove(s.configFile(oldest.ID)); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("snapshot", oldest.ID).Msg("failed to remove evicted snapshot")
		}
	}
}

func (s *Store) removeLocked(id string) {
	for i := range s.index {
		if s.index[i].ID == id {
			s.index = append(s.index[:i], s.index[i+1:]...)
			break
		}
	}
	_ = os.Remove(s.configFile(id))
}

// List returns the index, oldest first.
func (s *Store) List() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, len(s.index))
	copy(out, s.index)
	return out
}

// Get returns one snapshot's metadata and config body.
func (s *Store) Get(id string) (*Snapshot, string, error) {
	s.mu.Lock()
	var snap *Snapshot
	for i := range s.index {
		if s.index[i].ID == id {
			copied := s.index[i]
			snap = &copied
			break
		}
	}
	s.mu.Unlock()

	if snap == nil {
		return nil, "", models.E(models.KindNotFound, "snapshot %s not found", id)
	}
	config, err := os.ReadFile(s.configFile(id))
	if err != nil {
		return nil, "", models.WrapE(models.KindIO, err, "read snapshot %s", id)
	}
	return snap, string(config), nil
}

// DiffSnapshots diffs two stored snapshots by id.
func (s *Store) DiffSnapshots(fromID, toID string) (*Diff, error) {
	_, fromConfig, err := s.Get(fromID)
	if err != nil {
		return nil, err
	}
	_, toConfig, err := s.Get(toID)
	if err != nil {
		return nil, err
	}
	return DiffConfigs(fromConfig, toConfig), nil
}

// Restore applies a stored snapshot line by line, best-effort. A
// pre-restore snapshot is always taken first; partial success is reported
// with counts.
func (s *Store) Restore(ctx context.Context, id string) (*RestoreResult, error) {
	_, config, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	pre, err := s.Create(ctx, TriggerPreRemediation)
	if err != nil {
		return nil, models.WrapE(models.KindDependency, err, "pre-restore snapshot failed")
	}

	result := &RestoreResult{PreRestoreSnapshotID: pre.ID}
	path := ""
	for _, raw := range strings.Split(config, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "/") {
			path = line
			continue
		}

		command := path + " " + line
		if _, err := s.client.ExecuteRaw(ctx, command, nil); err != nil {
			result.Failed++
			if len(result.Errors) < 20 {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", command, err))
			}
			continue
		}
		result.Applied++
	}

	s.auditLog.Record(audit.Entry{
		Action:   "config_restore",
		Actor:    "user",
		Resource: id,
		Detail:   fmt.Sprintf("applied=%d failed=%d", result.Applied, result.Failed),
	})
	return result, nil
}

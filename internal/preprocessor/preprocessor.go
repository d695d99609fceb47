// Package preprocessor maps every input source into the unified event
// shape, aggregates bursts into composite events, and enriches events with
// cached device identity.
package preprocessor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/device"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/syslogd"
)

// identityTTL is how long cached device identity stays fresh.
const identityTTL = 5 * time.Minute

// Config tunes the aggregation behavior.
type Config struct {
	// AggregateFlapChanges is the number of interface state changes within
	// FlapWindow that marks an interface as flapping for aggregation.
	AggregateFlapChanges int
	FlapWindow           time.Duration
}

// DefaultConfig returns the built-in aggregation thresholds.
func DefaultConfig() Config {
	return Config{
		AggregateFlapChanges: 2,
		FlapWindow:           30 * time.Second,
	}
}

// Preprocessor normalizes, aggregates, and enriches events.
type Preprocessor struct {
	mu sync.Mutex

	cfg     Config
	client  device.Client
	timeout time.Duration

	burstRules []*burstRule
	flaps      map[string]*flapState

	identity   *models.DeviceInfo
	identityAt time.Time

	now func() time.Time
}

// New creates a preprocessor. client may be nil, in which case enrichment
// is skipped.
func New(cfg Config, client device.Client, deviceTimeout time.Duration) *Preprocessor {
	if cfg.AggregateFlapChanges <= 0 {
		cfg.AggregateFlapChanges = 2
	}
	if cfg.FlapWindow <= 0 {
		cfg.FlapWindow = 30 * time.Second
	}
	if deviceTimeout <= 0 {
		deviceTimeout = 10 * time.Second
	}
	return &Preprocessor{
		cfg:        cfg,
		client:     client,
		timeout:    deviceTimeout,
		burstRules: builtinBurstRules(),
		flaps:      make(map[string]*flapState),
		now:        time.Now,
	}
}

// FromSyslog normalizes a parsed syslog message. Syslog severity codes map
// 0 to emergency, 1-2 to critical, 3-4 to warning, and 5-7 to info; the
// first non-severity topic becomes the category.
func (p *Preprocessor) FromSyslog(msg syslogd.Message) *models.UnifiedEvent {
	raw, _ := json.Marshal(msg)

	category := "system"
	for _, topic := range msg.Topics {
		switch topic {
		case "critical", "error", "warning", "info":
			continue
		}
		category = topic
		break
	}

	metadata := map[string]string{}
	if msg.Hostname != "" {
		metadata["hostname"] = msg.Hostname
	}
	if len(msg.Topics) > 0 {
		metadata["topic"] = msg.Topic()
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}

	return &models.UnifiedEvent{
		ID:        uuid.NewString(),
		Source:    models.SourceSyslog,
		Timestamp: models.NewMillis(ts),
		Severity:  models.SeverityFromSyslog(msg.Severity),
		Category:  category,
		Message:   msg.Content,
		RawData:   raw,
		Metadata:  metadata,
	}
}

// FromAlertEvent normalizes a rule-engine alert. Metric categories map
// cpu/memory/disk to system and interface metrics to interface.
func (p *Preprocessor) FromAlertEvent(alert *models.AlertEvent) *models.UnifiedEvent {
	raw, _ := json.Marshal(alert)

	category := "system"
	if alert.Metric.IsInterface() {
		category = "interface"
	}

	return &models.UnifiedEvent{
		ID:        uuid.NewString(),
		Source:    models.SourceMetrics,
		Timestamp: alert.TriggeredAt,
		Severity:  alert.Severity,
		Category:  category,
		Message:   alert.Message,
		RawData:   raw,
		AlertRuleInfo: &models.AlertRuleInfo{
			RuleID:       alert.RuleID,
			RuleName:     alert.RuleName,
			Metric:       alert.Metric,
			CurrentValue: alert.CurrentValue,
			Threshold:    alert.Threshold,
			Channels:     append([]string(nil), alert.Channels...),
		},
	}
}

// NewManualEvent constructs a user-injected event. Stateless.
func NewManualEvent(severity models.Severity, category, message string) *models.UnifiedEvent {
	return newDirectEvent(models.SourceManual, severity, category, message)
}

// NewAPIEvent constructs an API-injected event. Stateless.
func NewAPIEvent(severity models.Severity, category, message string) *models.UnifiedEvent {
	return newDirectEvent(models.SourceAPI, severity, category, message)
}

func newDirectEvent(source models.EventSource, severity models.Severity, category, message string) *models.UnifiedEvent {
	if !severity.Valid() {
		severity = models.SeverityInfo
	}
	if category == "" {
		category = "system"
	}
	return &models.UnifiedEvent{
		ID:        uuid.NewString(),
		Source:    source,
		Timestamp: models.Now(),
		Severity:  severity,
		Category:  category,
		Message:   message,
	}
}

// Enrich attaches cached device identity to the event. The identity is
// refreshed from the device at most every five minutes; a fetch failure is
// logged and the event proceeds unenriched.
func (p *Preprocessor) Enrich(ctx context.Context, event *models.UnifiedEvent) {
	if p.client == nil || event.DeviceInfo != nil {
		return
	}

	p.mu.Lock()
	cached := p.identity
	fresh := p.now().Sub(p.identityAt) < identityTTL
	p.mu.Unlock()

	if cached != nil && fresh {
		info := *cached
		event.DeviceInfo = &info
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	identity, err := device.FetchIdentity(ctx, p.client)
	if err != nil {
		log.Debug().Err(err).Msg("device identity fetch failed, skipping enrichment")
		return
	}

	info := &models.DeviceInfo{
		Hostname: identity.Hostname,
		Model:    identity.Model,
		Version:  identity.Version,
		IP:       identity.IP,
	}

	p.mu.Lock()
	p.identity = info
	p.identityAt = p.now()
	p.mu.Unlock()

	copied := *info
	event.DeviceInfo = &copied
}

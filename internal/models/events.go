package models

import "encoding/json"

// EventSource identifies where an event entered the system.
type EventSource string

const (
	SourceSyslog  EventSource = "syslog"
	SourceMetrics EventSource = "metrics"
	SourceManual  EventSource = "manual"
	SourceAPI     EventSource = "api"
)

// DeviceInfo is the cached identity of the device an event refers to.
type DeviceInfo struct {
	Hostname string `json:"hostname,omitempty"`
	Model    string `json:"model,omitempty"`
	Version  string `json:"version,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// AlertRuleInfo carries the originating rule context for metric-origin
// events, including the rule's notification channel routing.
type AlertRuleInfo struct {
	RuleID       string   `json:"ruleId"`
	RuleName     string   `json:"ruleName"`
	Metric       Metric   `json:"metric"`
	CurrentValue float64  `json:"currentValue"`
	Threshold    float64  `json:"threshold"`
	Channels     []string `json:"channels,omitempty"`
}

// Aggregation describes how a composite event was assembled from its children.
type Aggregation struct {
	Count     int    `json:"count"`
	FirstSeen Millis `json:"firstSeen"`
	LastSeen  Millis `json:"lastSeen"`
	Pattern   string `json:"pattern"`
}

// UnifiedEvent is the single event shape every input source normalizes into.
// Composite events set IsComposite and carry child references plus
// aggregation metadata; aggregation count always equals len(ChildEventIDs).
type UnifiedEvent struct {
	ID            string            `json:"id"`
	Source        EventSource       `json:"source"`
	Timestamp     Millis            `json:"timestamp"`
	Severity      Severity          `json:"severity"`
	Category      string            `json:"category"`
	Message       string            `json:"message"`
	RawData       json.RawMessage   `json:"rawData,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	DeviceInfo    *DeviceInfo       `json:"deviceInfo,omitempty"`
	AlertRuleInfo *AlertRuleInfo    `json:"alertRuleInfo,omitempty"`

	IsComposite   bool         `json:"isComposite,omitempty"`
	ChildEventIDs []string     `json:"childEventIds,omitempty"`
	Aggregation   *Aggregation `json:"aggregation,omitempty"`

	// ChildEvents holds the aggregated children in memory so composites can
	// be analyzed as one correlated incident. Not persisted; the IDs above
	// are the durable record.
	ChildEvents []*UnifiedEvent `json:"-"`
}

// Clone returns a deep copy of the event so it can be safely shared across
// goroutines.
func (e *UnifiedEvent) Clone() *UnifiedEvent {
	if e == nil {
		return nil
	}
	clone := *e
	if e.RawData != nil {
		clone.RawData = append(json.RawMessage(nil), e.RawData...)
	}
	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	if e.DeviceInfo != nil {
		di := *e.DeviceInfo
		clone.DeviceInfo = &di
	}
	if e.AlertRuleInfo != nil {
		ri := *e.AlertRuleInfo
		if ri.Channels != nil {
			ri.Channels = append([]string(nil), ri.Channels...)
		}
		clone.AlertRuleInfo = &ri
	}
	if len(e.ChildEventIDs) > 0 {
		clone.ChildEventIDs = append([]string(nil), e.ChildEventIDs...)
	}
	if e.Aggregation != nil {
		agg := *e.Aggregation
		clone.Aggregation = &agg
	}
	if len(e.ChildEvents) > 0 {
		clone.ChildEvents = make([]*UnifiedEvent, len(e.ChildEvents))
		for i, c := range e.ChildEvents {
			clone.ChildEvents[i] = c.Clone()
		}
	}
	return &clone
}

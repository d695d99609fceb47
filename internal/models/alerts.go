package models

// Metric names a measurable quantity an alert rule evaluates.
type Metric string

const (
	MetricCPU              Metric = "cpu"
	MetricMemory           Metric = "memory"
	MetricDisk             Metric = "disk"
	MetricInterfaceStatus  Metric = "interface_status"
	MetricInterfaceTraffic Metric = "interface_traffic"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCPU, MetricMemory, MetricDisk, MetricInterfaceStatus, MetricInterfaceTraffic:
		return true
	}
	return false
}

// IsInterface reports whether the metric requires an interface label.
func (m Metric) IsInterface() bool {
	return m == MetricInterfaceStatus || m == MetricInterfaceTraffic
}

// Operator is a threshold comparison operator.
type Operator string

const (
	OpGT  Operator = "gt"
	OpLT  Operator = "lt"
	OpEQ  Operator = "eq"
	OpNE  Operator = "ne"
	OpGTE Operator = "gte"
	OpLTE Operator = "lte"
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpGT, OpLT, OpEQ, OpNE, OpGTE, OpLTE:
		return true
	}
	return false
}

// Compare applies the operator to value against threshold.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGT:
		return value > threshold
	case OpLT:
		return value < threshold
	case OpEQ:
		return value == threshold
	case OpNE:
		return value != threshold
	case OpGTE:
		return value >= threshold
	case OpLTE:
		return value <= threshold
	}
	return false
}

// TrafficUnit is the unit an interface_traffic threshold is expressed in.
// The measured rate is always bytes/sec internally and is converted to the
// rule's unit before the operator is applied.
type TrafficUnit string

const (
	UnitKBps TrafficUnit = "kbps" // kilobytes per second (default)
	UnitBps  TrafficUnit = "bps"  // bytes per second
)

// AlertRule is a user-managed evaluation rule over collected samples.
type AlertRule struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Enabled         bool            `json:"enabled"`
	Metric          Metric          `json:"metric"`
	MetricLabel     string          `json:"metricLabel,omitempty"` // required for interface metrics
	Operator        Operator        `json:"operator"`
	Threshold       float64         `json:"threshold"`
	Unit            TrafficUnit     `json:"unit,omitempty"`         // interface_traffic only
	TargetStatus    InterfaceStatus `json:"targetStatus,omitempty"` // interface_status only, default down
	DurationSamples int             `json:"durationSamples"`
	CooldownMs      int64           `json:"cooldownMs"`
	Severity        Severity        `json:"severity"`
	Channels        []string        `json:"channels,omitempty"`
	AutoResponse    string          `json:"autoResponse,omitempty"`
	CreatedAt       Millis          `json:"createdAt"`
	UpdatedAt       Millis          `json:"updatedAt"`
	LastTriggeredAt *Millis         `json:"lastTriggeredAt,omitempty"`
}

// Validate checks the rule for structural problems.
func (r *AlertRule) Validate() error {
	if r.Name == "" {
		return E(KindValidation, "rule name is required")
	}
	if !r.Metric.Valid() {
		return E(KindValidation, "unknown metric %q", r.Metric)
	}
	if !r.Operator.Valid() {
		return E(KindValidation, "unknown operator %q", r.Operator)
	}
	if r.Metric.IsInterface() && r.MetricLabel == "" {
		return E(KindValidation, "metricLabel is required for metric %q", r.Metric)
	}
	if r.DurationSamples < 1 {
		return E(KindValidation, "durationSamples must be >= 1")
	}
	if r.CooldownMs < 0 {
		return E(KindValidation, "cooldownMs must be >= 0")
	}
	if !r.Severity.Valid() {
		return E(KindValidation, "unknown severity %q", r.Severity)
	}
	return nil
}

// Clone returns a deep copy of the rule.
func (r *AlertRule) Clone() *AlertRule {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Channels != nil {
		clone.Channels = append([]string(nil), r.Channels...)
	}
	if r.LastTriggeredAt != nil {
		t := *r.LastTriggeredAt
		clone.LastTriggeredAt = &t
	}
	return &clone
}

// AlertStatus is the lifecycle state of an alert event.
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// AlertEvent is a fired alert. At most one active event exists per rule;
// ResolvedAt is set exactly when Status is resolved and is never earlier
// than TriggeredAt. Channels is the rule's notification routing, captured
// at trigger time so resolution notices reach the same channels.
type AlertEvent struct {
	ID                 string      `json:"id"`
	RuleID             string      `json:"ruleId"`
	RuleName           string      `json:"ruleName"`
	Severity           Severity    `json:"severity"`
	Metric             Metric      `json:"metric"`
	CurrentValue       float64     `json:"currentValue"`
	Threshold          float64     `json:"threshold"`
	Channels           []string    `json:"channels,omitempty"`
	Message            string      `json:"message"`
	AIAnalysis         string      `json:"aiAnalysis,omitempty"`
	Status             AlertStatus `json:"status"`
	TriggeredAt        Millis      `json:"triggeredAt"`
	ResolvedAt         *Millis     `json:"resolvedAt,omitempty"`
	AutoResponseResult string      `json:"autoResponseResult,omitempty"`
}

// Clone returns a deep copy of the alert event.
func (a *AlertEvent) Clone() *AlertEvent {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Channels != nil {
		clone.Channels = append([]string(nil), a.Channels...)
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		clone.ResolvedAt = &t
	}
	return &clone
}

package models

// Severity classifies events and alerts.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Rank returns the ordinal rank of a severity. Unknown severities rank as info.
func (s Severity) Rank() int {
	switch s {
	case SeverityEmergency:
		return 3
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical, SeverityEmergency:
		return true
	}
	return false
}

// Escalate returns the next severity rank up, capped at emergency.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityInfo:
		return SeverityWarning
	case SeverityWarning:
		return SeverityCritical
	default:
		return SeverityEmergency
	}
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// SeverityFromSyslog maps a syslog severity number (0-7) to an event severity.
func SeverityFromSyslog(code int) Severity {
	switch {
	case code <= 0:
		return SeverityEmergency
	case code <= 2:
		return SeverityCritical
	case code <= 4:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// Dynamic substrings are replaced with fixed tokens so that two messages
// describing the same condition hash identically regardless of addresses,
// timestamps, ports, or session identifiers.
var (
	reISOTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	reIPv4Port     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}:\d{1,5}\b`)
	reIPv4         = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	reIPv6         = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`)
	reUUID         = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	reHexToken     = regexp.MustCompile(`\b[0-9a-fA-F]{16,32}\b`)
	reEpoch        = regexp.MustCompile(`\b\d{10,13}\b`)
	rePortWord     = regexp.MustCompile(`(?i)\bport\s+\d{1,5}\b`)
)

// NormalizeMessage strips the dynamic parts of an alert message. Replacement
// order matters: composite shapes (timestamps, ip:port) are rewritten before
// the narrower patterns they contain.
func NormalizeMessage(msg string) string {
	out := reISOTimestamp.ReplaceAllString(msg, "<TIMESTAMP>")
	out = reIPv4Port.ReplaceAllString(out, "<IP>:<PORT>")
	out = reIPv4.ReplaceAllString(out, "<IP>")
	out = reIPv6.ReplaceAllString(out, "<IP>")
	out = reUUID.ReplaceAllString(out, "<SESSION>")
	out = reHexToken.ReplaceAllString(out, "<SESSION>")
	out = reEpoch.ReplaceAllString(out, "<TIMESTAMP>")
	out = rePortWord.ReplaceAllString(out, "port <PORT>")
	return strings.TrimSpace(out)
}

// Fingerprint computes the stable identity hash of an alert: the rule, the
// metric, the severity, and the normalized message.
func Fingerprint(ruleID string, metric models.Metric, severity models.Severity, message string) string {
	h := sha256.New()
	h.Write([]byte(ruleID))
	h.Write([]byte{'|'})
	h.Write([]byte(metric))
	h.Write([]byte{'|'})
	h.Write([]byte(severity))
	h.Write([]byte{'|'})
	h.Write([]byte(NormalizeMessage(message)))
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintEvent computes the fingerprint of a unified event, using the
// originating rule when the event is metric-origin and the category
// otherwise.
func FingerprintEvent(e *models.UnifiedEvent) string {
	ruleID := ""
	metric := models.Metric(e.Category)
	if e.AlertRuleInfo != nil {
		ruleID = e.AlertRuleInfo.RuleID
		metric = e.AlertRuleInfo.Metric
	}
	return Fingerprint(ruleID, metric, e.Severity, e.Message)
}

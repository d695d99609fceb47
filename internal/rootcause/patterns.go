package rootcause

import (
	"regexp"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// causePattern maps a message signature to a cause hypothesis.
type causePattern struct {
	id             string
	re             *regexp.Regexp
	category       string
	baseConfidence int
	description    string
}

// catalog is the built-in cause catalog, matched against event messages.
var catalog = []causePattern{
	{
		id:             "interface-instability",
		re:             regexp.MustCompile(`(?i)flapping|link down.*link up|link up.*link down|state changes`),
		category:       "interface",
		baseConfidence: 85,
		description:    "Physical link instability, likely a cable or transceiver fault",
	},
	{
		id:             "cpu-overload",
		re:             regexp.MustCompile(`(?i)cpu\b.*(high|overload|load)|cpu usage \d+`),
		category:       "system",
		baseConfidence: 75,
		description:    "Sustained CPU overload from routing churn or packet flood",
	},
	{
		id:             "memory-exhaustion",
		re:             regexp.MustCompile(`(?i)memory\b.*(high|full|exhaust|low)|out of memory`),
		category:       "system",
		baseConfidence: 80,
		description:    "Memory exhaustion, possible connection-table growth or leak",
	},
	{
		id:             "disk-pressure",
		re:             regexp.MustCompile(`(?i)disk\b.*(full|space|usage)|storage (low|full)`),
		category:       "system",
		baseConfidence: 80,
		description:    "Disk pressure from logs or backups filling local storage",
	},
	{
		id:             "credential-attack",
		re:             regexp.MustCompile(`(?i)login failure|authentication fail|invalid user|brute`),
		category:       "account",
		baseConfidence: 70,
		description:    "Credential brute-force attempt against management services",
	},
	{
		id:             "dhcp-failure",
		re:             regexp.MustCompile(`(?i)dhcp\b.*(fail|expired|conflict|no lease|offering)`),
		category:       "dhcp",
		baseConfidence: 65,
		description:    "DHCP service failure or address-pool exhaustion",
	},
	{
		id:             "dns-failure",
		re:             regexp.MustCompile(`(?i)dns\b.*(fail|timeout|unreachable)|name resolution`),
		category:       "dns",
		baseConfidence: 65,
		description:    "Upstream DNS resolution failure",
	},
	{
		id:             "routing-instability",
		re:             regexp.MustCompile(`(?i)(ospf|bgp)\b.*(down|change|flap|lost)|route.*(lost|unreachable|removed)`),
		category:       "routing",
		baseConfidence: 70,
		description:    "Routing protocol instability, neighbor loss or route churn",
	},
	{
		id:             "tunnel-failure",
		re:             regexp.MustCompile(`(?i)(ipsec|l2tp|pppoe|vpn|tunnel)\b.*(down|fail|disconnect|timeout)`),
		category:       "vpn",
		baseConfidence: 70,
		description:    "VPN tunnel failure, peer unreachable or negotiation error",
	},
}

// unknownConfidence is the confidence of the generic fallback cause.
const unknownConfidence = 40

// matchPatterns runs the catalog against one event. Confidence is adjusted
// by 10 for high and low severities and clamped to [0,100]; no match yields
// the generic unknown cause.
func matchPatterns(event *models.UnifiedEvent) []Cause {
	adjust := 0
	switch event.Severity {
	case models.SeverityCritical, models.SeverityEmergency:
		adjust = 10
	case models.SeverityInfo:
		adjust = -10
	}

	var causes []Cause
	for _, p := range catalog {
		if !p.re.MatchString(event.Message) {
			continue
		}
		causes = append(causes, Cause{
			ID:            p.id,
			Category:      p.category,
			Description:   p.description,
			Confidence:    clampConfidence(p.baseConfidence + adjust),
			Evidence:      []string{event.Message},
			RelatedAlerts: []string{event.ID},
		})
	}

	if len(causes) == 0 {
		causes = append(causes, Cause{
			ID:            "unknown",
			Category:      event.Category,
			Description:   "Unclassified incident, manual investigation required",
			Confidence:    unknownConfidence,
			Evidence:      []string{event.Message},
			RelatedAlerts: []string{event.ID},
		})
	}
	return causes
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

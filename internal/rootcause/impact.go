package rootcause

import (
	"regexp"

	"github.com/btnalit/routeros-aiops/internal/models"
)

var (
	cidrRe = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}/\d{1,2}\b`)
	vlanRe = regexp.MustCompile(`(?i)vlan\s*(\d+)`)
	wanRe  = regexp.MustCompile(`(?i)\b(wan|uplink|pppoe|internet|isp)\b`)
)

// serviceKeywords map message and category signals to affected services.
var serviceKeywords = []struct {
	service string
	re      *regexp.Regexp
}{
	{"DHCP", regexp.MustCompile(`(?i)\bdhcp\b`)},
	{"DNS", regexp.MustCompile(`(?i)\bdns\b|name resolution`)},
	{"VPN", regexp.MustCompile(`(?i)\b(vpn|ipsec|l2tp|pppoe|tunnel)\b`)},
	{"Firewall", regexp.MustCompile(`(?i)\bfirewall\b|\bnat\b`)},
}

// assessImpact classifies the blast radius of an event. related counts the
// underlying events the incident spans.
func assessImpact(event *models.UnifiedEvent, related int) Impact {
	segments := extractSegments(event.Message)

	scope := ScopeLocal
	switch {
	case event.Severity == models.SeverityEmergency || related+len(segments) >= 5:
		scope = ScopeWidespread
	case event.Severity == models.SeverityCritical || related+len(segments) > 2:
		scope = ScopePartial
	}

	haystack := event.Category + " " + event.Message
	var services []string
	for _, kw := range serviceKeywords {
		if kw.re.MatchString(haystack) {
			services = append(services, kw.service)
		}
	}

	users := scopeUserBase(scope)
	if wanRe.MatchString(event.Message) {
		users *= 2
	}
	if event.Category == "system" {
		users = users * 3 / 2
	}

	return Impact{
		Scope:           scope,
		Services:        services,
		NetworkSegments: segments,
		EstimatedUsers:  users,
	}
}

func scopeUserBase(scope string) int {
	switch scope {
	case ScopeWidespread:
		return 100
	case ScopePartial:
		return 25
	default:
		return 5
	}
}

// extractSegments pulls CIDR blocks and VLAN references out of a message.
func extractSegments(message string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, cidr := range cidrRe.FindAllString(message, -1) {
		add(cidr)
	}
	for _, m := range vlanRe.FindAllStringSubmatch(message, -1) {
		add("VLAN " + m[1])
	}
	return out
}

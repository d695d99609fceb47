package snapshot

import (
	"regexp"
	"sort"
)

// dangerousPattern names one risky change signature. Deletion-only patterns
// are matched against lines rendered with a leading "- ".
type dangerousPattern struct {
	name string
	risk string
	re   *regexp.Regexp
}

// dangerousCatalog is the built-in dangerous-change catalog.
var dangerousCatalog = []dangerousPattern{
	{
		name: "firewall_rule_deletion",
		risk: RiskHigh,
		re:   regexp.MustCompile(`^-\s*/ip(v6)?\s+firewall\s+(filter|nat|mangle)`),
	},
	{
		name: "password_change",
		risk: RiskHigh,
		re:   regexp.MustCompile(`password=|/user .*password`),
	},
	{
		name: "admin_user_change",
		risk: RiskHigh,
		re:   regexp.MustCompile(`/user\s+(add|remove|set)|group=full`),
	},
	{
		name: "interface_disable",
		risk: RiskMedium,
		re:   regexp.MustCompile(`/interface .* disable|/interface[^,]*\bdisabled=yes`),
	},
	{
		name: "routing_change",
		risk: RiskMedium,
		re:   regexp.MustCompile(`/ip route (add|remove|set)|/routing`),
	},
	{
		name: "dns_change",
		risk: RiskLow,
		re:   regexp.MustCompile(`/ip dns set|/ip dns static`),
	},
	{
		name: "service_disable",
		risk: RiskMedium,
		re:   regexp.MustCompile(`/ip service .* disable|/ip service\b.*\bdisabled=yes`),
	},
	{
		name: "system_reset",
		risk: RiskHigh,
		re:   regexp.MustCompile(`/system reset|/system reboot`),
	},
}

func riskRank(risk string) int {
	switch risk {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	}
	return 0
}

// DetectDangerousChanges renders each diff entry as a signed change line
// and applies the catalog. Overall risk is the maximum matched level.
func DetectDangerousChanges(d *Diff) DangerousReport {
	lines := renderChangeLines(d)

	byName := make(map[string]*DangerousMatch)
	for _, line := range lines {
		for _, p := range dangerousCatalog {
			if !p.re.MatchString(line) {
				continue
			}
			match, ok := byName[p.name]
			if !ok {
				match = &DangerousMatch{Name: p.name, Risk: p.risk}
				byName[p.name] = match
			}
			match.Matches = append(match.Matches, line)
		}
	}

	report := DangerousReport{}
	for _, match := range byName {
		report.Patterns = append(report.Patterns, *match)
	}
	sort.Slice(report.Patterns, func(i, j int) bool {
		if riskRank(report.Patterns[i].Risk) != riskRank(report.Patterns[j].Risk) {
			return riskRank(report.Patterns[i].Risk) > riskRank(report.Patterns[j].Risk)
		}
		return report.Patterns[i].Name < report.Patterns[j].Name
	})

	if len(report.Patterns) > 0 {
		report.Detected = true
		report.OverallRiskLevel = report.Patterns[0].Risk
	}
	return report
}

// renderChangeLines flattens a diff into "- <path> <line>" deletions,
// "+ <path> <line>" additions, and modification after-lines.
func renderChangeLines(d *Diff) []string {
	var lines []string
	for key, line := range d.Deletions {
		lines = append(lines, "- "+linePath(key)+" "+line)
	}
	for key, line := range d.Additions {
		lines = append(lines, "+ "+linePath(key)+" "+line)
	}
	for _, m := range d.Modifications {
		lines = append(lines, "+ "+linePath(m.Key)+" "+m.After)
	}
	sort.Strings(lines)
	return lines
}

package snapshot

import (
	"regexp"
	"strings"
)

// dynamicFieldRe strips counter and rate fields that churn between exports
// without representing a real change.
var dynamicFieldRe = regexp.MustCompile(`\s*\b(rx-byte|tx-byte|rx-packet|tx-packet|rx-error|tx-error|rx-drop|tx-drop|bytes|packets|rate|uptime|last-seen|last-logged-in)=\S+`)

// identifierRe pulls the stable identifier out of a config line, preferring
// name over address over internal id over comment.
var identifierRes = []*regexp.Regexp{
	regexp.MustCompile(`\bname="([^"]*)"`),
	regexp.MustCompile(`\bname=(\S+)`),
	regexp.MustCompile(`\baddress=(\S+)`),
	regexp.MustCompile(`\.id=(\S+)`),
	regexp.MustCompile(`\bcomment="([^"]*)"`),
	regexp.MustCompile(`\bcomment=(\S+)`),
}

// parseConfig splits a RouterOS-style export into a map keyed by
// `<path>:<identifier>`. Section headers (lines starting with /) set the
// path context; comments and blank lines are skipped; dynamic counter
// fields are normalized away. Lines without an identifier key on their own
// normalized text.
func parseConfig(config string) map[string]string {
	keyed := make(map[string]string)
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

		normalized := normalizeLine(line)
		if normalized == "" {
			continue
		}
		keyed[lineKey(path, normalized)] = normalized
	}
	return keyed
}

func normalizeLine(line string) string {
	line = dynamicFieldRe.ReplaceAllString(line, "")
	return strings.Join(strings.Fields(line), " ")
}

func lineKey(path, line string) string {
	for _, re := range identifierRes {
		if m := re.FindStringSubmatch(line); m != nil {
			return path + ":" + m[1]
		}
	}
	return path + ":" + line
}

// linePath recovers the section path from a diff key.
func linePath(key string) string {
	if i := strings.Index(key, ":"); i >= 0 {
		return key[:i]
	}
	return key
}

// DiffConfigs computes the keyed delta from old to new. Applying additions
// and modifications to old and removing deletions yields new's keyed set.
func DiffConfigs(oldConfig, newConfig string) *Diff {
	oldKeyed := parseConfig(oldConfig)
	newKeyed := parseConfig(newConfig)

	d := &Diff{
		Additions: make(map[string]string),
		Deletions: make(map[string]string),
	}

	for key, line := range newKeyed {
		before, existed := oldKeyed[key]
		switch {
		case !existed:
			d.Additions[key] = line
		case before != line:
			d.Modifications = append(d.Modifications, Modification{Key: key, Before: before, After: line})
		}
	}
	for key, line := range oldKeyed {
		if _, exists := newKeyed[key]; !exists {
			d.Deletions[key] = line
		}
	}
	return d
}

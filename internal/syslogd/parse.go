package syslogd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Message is one parsed syslog datagram.
type Message struct {
	Facility  int       `json:"facility"`
	Severity  int       `json:"severity"` // syslog code 0-7
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
	AppName   string    `json:"appName,omitempty"`
	ProcID    string    `json:"procId,omitempty"`
	MsgID     string    `json:"msgId,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Content   string    `json:"content"`
	Raw       string    `json:"raw"`
}

// Topic returns the primary topic, or "unknown" when the message carried
// none the vocabulary recognized.
func (m Message) Topic() string {
	if len(m.Topics) > 0 {
		return m.Topics[0]
	}
	return "unknown"
}

// deviceTopics is the known device-topic vocabulary used to split a leading
// "topic,topic " prefix from the message body.
var deviceTopics = map[string]bool{
	"system": true, "interface": true, "firewall": true, "dhcp": true,
	"wireless": true, "ospf": true, "bgp": true, "vpn": true, "ipsec": true,
	"l2tp": true, "pppoe": true, "dns": true, "ntp": true, "script": true,
	"backup": true, "account": true, "caps": true, "certificate": true,
	"critical": true, "error": true, "warning": true, "info": true,
}

var (
	priRe      = regexp.MustCompile(`^<(\d{1,3})>`)
	rfc3164Re  = regexp.MustCompile(`^([A-Z][a-z]{2}) {1,2}(\d{1,2}) (\d{2}:\d{2}:\d{2}) (\S+) (.*)$`)
	topicRe    = regexp.MustCompile(`^[a-z,]+\s`)
	months     = map[string]time.Month{"Jan": 1, "Feb": 2, "Mar": 3, "Apr": 4, "May": 5, "Jun": 6, "Jul": 7, "Aug": 8, "Sep": 9, "Oct": 10, "Nov": 11, "Dec": 12}
	monthNames = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

// Parse decodes an RFC 3164 or RFC 5424 syslog line, auto-detecting the
// format by the version digit after the PRI field.
func Parse(raw string) (Message, error) {
	m := Message{Raw: raw, Timestamp: time.Now().UTC()}

	pri := priRe.FindStringSubmatch(raw)
	if pri == nil {
		return m, fmt.Errorf("missing PRI field")
	}
	priVal, err := strconv.Atoi(pri[1])
	if err != nil || priVal > 191 {
		return m, fmt.Errorf("invalid PRI value %q", pri[1])
	}
	m.Facility = priVal / 8
	m.Severity = priVal % 8

	rest := raw[len(pri[0]):]

	// RFC 5424 messages follow the PRI with a version digit and a space.
	if len(rest) >= 2 && rest[0] == '1' && rest[1] == ' ' {
		return parse5424(m, rest[2:])
	}
	return parse3164(m, rest)
}

func parse3164(m Message, rest string) (Message, error) {
	fields := rfc3164Re.FindStringSubmatch(rest)
	if fields == nil {
		// Headerless payloads are legal 3164; treat the whole rest as content.
		m.Hostname = ""
		m.Topics, m.Content = splitTopics(rest)
		return m, nil
	}

	month, ok := months[fields[1]]
	if !ok {
		return m, fmt.Errorf("invalid month %q", fields[1])
	}
	day, _ := strconv.Atoi(fields[2])
	clock, err := time.Parse("15:04:05", fields[3])
	if err != nil {
		return m, fmt.Errorf("invalid time %q: %w", fields[3], err)
	}

	// 3164 carries no year; assume the current one.
	now := time.Now().UTC()
	m.Timestamp = time.Date(now.Year(), month, day,
		clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)
	// Render writes "-" for an absent hostname; treat it as nil on the way
	// back in, as 5424 does.
	m.Hostname = nilDash(fields[4])
	m.Topics, m.Content = splitTopics(fields[5])
	return m, nil
}

func parse5424(m Message, rest string) (Message, error) {
	// TIMESTAMP HOSTNAME APP-NAME PROCID MSGID STRUCTURED-DATA MSG
	parts := strings.SplitN(rest, " ", 7)
	if len(parts) < 7 {
		return m, fmt.Errorf("truncated RFC 5424 header")
	}

	if parts[0] != "-" {
		if ts, err := time.Parse(time.RFC3339Nano, parts[0]); err == nil {
			m.Timestamp = ts.UTC()
		}
	}
	m.Hostname = nilDash(parts[1])
	m.AppName = nilDash(parts[2])
	m.ProcID = nilDash(parts[3])
	m.MsgID = nilDash(parts[4])

	msg := parts[6]
	// Skip structured data; only the element boundary matters here.
	if parts[5] != "-" && strings.HasPrefix(parts[5], "[") && !strings.HasSuffix(parts[5], "]") {
		// Structured data containing spaces got split into the MSG part;
		// rejoin and cut at the closing bracket.
		full := parts[5] + " " + msg
		if end := strings.Index(full, "] "); end >= 0 {
			msg = full[end+2:]
		}
	}
	if strings.HasPrefix(msg, "\uFEFF") {
		msg = strings.TrimPrefix(msg, "\uFEFF")
	}

	m.Topics, m.Content = splitTopics(msg)
	return m, nil
}

func nilDash(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

// splitTopics splits a leading comma-separated topic prefix off a message
// body. The prefix is honored only when at least one comma-part belongs to
// the device topic vocabulary; otherwise the topic is unknown and the body
// is left whole.
func splitTopics(msg string) ([]string, string) {
	loc := topicRe.FindStringIndex(msg)
	if loc == nil {
		return nil, msg
	}
	prefix := strings.TrimSpace(msg[:loc[1]])
	parts := strings.Split(prefix, ",")
	known := false
	for _, p := range parts {
		if deviceTopics[p] {
			known = true
			break
		}
	}
	if !known {
		return nil, msg
	}
	return parts, strings.TrimSpace(msg[loc[1]:])
}

// Render formats a message as an RFC 3164 line. Parse(Render(m)) preserves
// facility, severity, hostname, topics, and content.
func Render(m Message) string {
	pri := m.Facility*8 + m.Severity
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	host := m.Hostname
	if host == "" {
		host = "-"
	}
	body := m.Content
	if len(m.Topics) > 0 {
		body = strings.Join(m.Topics, ",") + " " + body
	}
	return fmt.Sprintf("<%d>%s %2d %s %s %s",
		pri, monthNames[ts.Month()-1], ts.Day(), ts.Format("15:04:05"), host, body)
}

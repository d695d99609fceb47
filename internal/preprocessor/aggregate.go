package preprocessor

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// PatternInterfaceFlapping marks composites produced by flap detection.
const PatternInterfaceFlapping = "interface-flapping"

// burstRule aggregates matching events inside a sliding window and emits a
// composite once minCount is reached.
type burstRule struct {
	pattern  string
	re       *regexp.Regexp
	window   time.Duration
	minCount int
	category string

	buffer []*models.UnifiedEvent
}

func builtinBurstRules() []*burstRule {
	return []*burstRule{
		{
			pattern:  "auth-failure",
			re:       regexp.MustCompile(`(?i)login failure|authentication fail|invalid user|wrong password`),
			window:   60 * time.Second,
			minCount: 5,
			category: "account",
		},
		{
			pattern:  "connection-issue",
			re:       regexp.MustCompile(`(?i)connection (lost|refused|timed out|reset)|unreachable|no route to host`),
			window:   120 * time.Second,
			minCount: 3,
			category: "interface",
		},
	}
}

func (r *burstRule) matches(event *models.UnifiedEvent) bool {
	return r.re.MatchString(event.Message) || event.Category == r.pattern
}

// trim drops buffered events older than the window.
func (r *burstRule) trim(now time.Time) {
	cutoff := now.Add(-r.window)
	kept := r.buffer[:0]
	for _, e := range r.buffer {
		if !e.Timestamp.Time.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	r.buffer = kept
}

// flapState tracks recent state-change events for one interface.
type flapState struct {
	events  []*models.UnifiedEvent
	changes []time.Time
}

var (
	ifaceNameRe  = regexp.MustCompile(`\b(ether\d+|wlan\d+|sfp[\w-]*\d*|bridge[\w-]*|vlan\d+|lte\d*|pppoe-out\d*)\b`)
	linkChangeRe = regexp.MustCompile(`(?i)link (up|down)|interface .* (up|down)|\b(up|down)\b.*\b(ether\d+|wlan\d+)`)
)

// interfaceName pulls the interface identifier out of an event, preferring
// explicit metadata over message scraping.
func interfaceName(event *models.UnifiedEvent) string {
	if name, ok := event.Metadata["interface"]; ok && name != "" {
		return name
	}
	if m := ifaceNameRe.FindString(event.Message); m != "" {
		return m
	}
	return ""
}

// Aggregate runs the event through flap detection and the burst rules.
// Matching events are buffered and held back (held=true); ready composites
// are returned for downstream processing. Non-matching events pass through
// untouched.
func (p *Preprocessor) Aggregate(event *models.UnifiedEvent) (composites []*models.UnifiedEvent, held bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	// Interface state changes feed the flap detector instead of the
	// generic burst rules. The composite is deferred to window expiry so
	// a whole flap episode lands in a single composite.
	if event.Category == "interface" && linkChangeRe.MatchString(event.Message) {
		if name := interfaceName(event); name != "" {
			p.trackFlapLocked(name, event, now)
			return p.expireFlapsLocked(now), true
		}
	}

	for _, rule := range p.burstRules {
		if !rule.matches(event) {
			continue
		}
		rule.trim(now)
		rule.buffer = append(rule.buffer, event)
		if len(rule.buffer) >= rule.minCount {
			composite := buildComposite(rule.pattern, rule.category, rule.buffer)
			rule.buffer = nil
			return append(p.expireFlapsLocked(now), composite), true
		}
		return p.expireFlapsLocked(now), true
	}

	return p.expireFlapsLocked(now), false
}

func (p *Preprocessor) trackFlapLocked(name string, event *models.UnifiedEvent, now time.Time) {
	state, ok := p.flaps[name]
	if !ok {
		state = &flapState{}
		p.flaps[name] = state
	}

	cutoff := now.Add(-p.cfg.FlapWindow)
	changes := state.changes[:0]
	events := state.events[:0]
	for i, at := range state.changes {
		if !at.Before(cutoff) {
			changes = append(changes, at)
			events = append(events, state.events[i])
		}
	}
	state.changes = append(changes, now)
	state.events = append(events, event)
}

// expireFlapsLocked emits composites for interfaces whose flap window has
// closed with enough state changes, and drops stale single-change state.
func (p *Preprocessor) expireFlapsLocked(now time.Time) []*models.UnifiedEvent {
	var out []*models.UnifiedEvent
	for name, state := range p.flaps {
		if len(state.changes) == 0 {
			delete(p.flaps, name)
			continue
		}
		if now.Sub(state.changes[0]) < p.cfg.FlapWindow {
			continue
		}
		if len(state.changes) >= p.cfg.AggregateFlapChanges {
			composite := buildComposite(PatternInterfaceFlapping, "interface", state.events)
			composite.Metadata = map[string]string{"interface": name}
			composite.Message = fmt.Sprintf("interface %s flapping, %d state changes in %s",
				name, len(state.events), p.cfg.FlapWindow)
			out = append(out, composite)
			log.Debug().Str("interface", name).Int("changes", len(state.events)).
				Msg("interface flap aggregated")
		}
		delete(p.flaps, name)
	}
	return out
}

// Flush force-emits every pending flap aggregation regardless of window
// state. Used on shutdown and by consumers that need prompt emission.
func (p *Preprocessor) Flush() []*models.UnifiedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*models.UnifiedEvent
	for name, state := range p.flaps {
		if len(state.changes) >= p.cfg.AggregateFlapChanges {
			composite := buildComposite(PatternInterfaceFlapping, "interface", state.events)
			composite.Metadata = map[string]string{"interface": name}
			composite.Message = fmt.Sprintf("interface %s flapping, %d state changes in %s",
				name, len(state.events), p.cfg.FlapWindow)
			out = append(out, composite)
		}
		delete(p.flaps, name)
	}
	return out
}

// Tick advances the flap detector clock and returns any composites whose
// window expired. Drive this from the pipeline's housekeeping ticker.
func (p *Preprocessor) Tick() []*models.UnifiedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expireFlapsLocked(p.now())
}

// buildComposite assembles a composite event from its children. Severity is
// the maximum child severity escalated one rank; count always equals the
// number of child ids.
func buildComposite(pattern, category string, children []*models.UnifiedEvent) *models.UnifiedEvent {
	severity := models.SeverityInfo
	first := children[0].Timestamp
	last := children[0].Timestamp
	ids := make([]string, 0, len(children))
	for _, c := range children {
		severity = models.MaxSeverity(severity, c.Severity)
		if c.Timestamp.Time.Before(first.Time) {
			first = c.Timestamp
		}
		if c.Timestamp.Time.After(last.Time) {
			last = c.Timestamp
		}
		ids = append(ids, c.ID)
	}

	return &models.UnifiedEvent{
		ID:            uuid.NewString(),
		Source:        children[0].Source,
		Timestamp:     last,
		Severity:      severity.Escalate(),
		Category:      category,
		Message:       fmt.Sprintf("%s burst, %d events aggregated", pattern, len(children)),
		IsComposite:   true,
		ChildEventIDs: ids,
		ChildEvents:   children,
		Aggregation: &models.Aggregation{
			Count:     len(ids),
			FirstSeen: first,
			LastSeen:  last,
			Pattern:   pattern,
		},
	}
}

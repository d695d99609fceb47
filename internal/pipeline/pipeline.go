// Package pipeline chains the event-processing stages: normalize,
// deduplicate, filter, analyze, decide. A stage failure is contained,
// audited, and counted; it never takes the pipeline down.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/audit"
	"github.com/btnalit/routeros-aiops/internal/decision"
	"github.com/btnalit/routeros-aiops/internal/dedup"
	"github.com/btnalit/routeros-aiops/internal/models"
	"github.com/btnalit/routeros-aiops/internal/noise"
	"github.com/btnalit/routeros-aiops/internal/preprocessor"
	"github.com/btnalit/routeros-aiops/internal/rootcause"
	"github.com/btnalit/routeros-aiops/internal/syslogd"
)

// tickInterval drives aggregation-window housekeeping while the run loop
// is otherwise idle.
const tickInterval = 5 * time.Second

// Stats is a point-in-time view of pipeline throughput.
type Stats struct {
	Processed    int64 `json:"processed"`
	Deduplicated int64 `json:"deduplicated"`
	Filtered     int64 `json:"filtered"`
	Analyzed     int64 `json:"analyzed"`
	Decided      int64 `json:"decided"`
	Errors       int64 `json:"errors"`
}

// Outcome reports what happened to one event.
type Outcome struct {
	Event        *models.UnifiedEvent `json:"event"`
	Deduplicated bool                 `json:"deduplicated,omitempty"`
	Filtered     bool                 `json:"filtered,omitempty"`
	FilterReason string               `json:"filterReason,omitempty"`
	Analysis     *rootcause.Analysis  `json:"analysis,omitempty"`
	Decision     *decision.Decision   `json:"decision,omitempty"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	pre      *preprocessor.Preprocessor
	cache    *dedup.Cache
	filter   *noise.Filter
	analyzer *rootcause.Analyzer
	engine   *decision.Engine
	auditLog *audit.Log

	mu    sync.Mutex
	stats Stats
}

// New assembles a pipeline from its stages.
func New(pre *preprocessor.Preprocessor, cache *dedup.Cache, filter *noise.Filter, analyzer *rootcause.Analyzer, engine *decision.Engine, auditLog *audit.Log) *Pipeline {
	return &Pipeline{
		pre:      pre,
		cache:    cache,
		filter:   filter,
		analyzer: analyzer,
		engine:   engine,
		auditLog: auditLog,
	}
}

// Run consumes syslog messages until the channel closes or the context is
// cancelled. Aggregation windows are expired on a ticker so flap composites
// surface even when the feed goes quiet; on shutdown, pending windows are
// flushed.
func (p *Pipeline) Run(ctx context.Context, messages <-chan syslogd.Message) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain(messages)
			return
		case <-ticker.C:
			for _, composite := range p.pre.Tick() {
				p.Process(ctx, composite)
			}
		case msg, ok := <-messages:
			if !ok {
				p.flush(ctx)
				return
			}
			p.HandleSyslog(ctx, msg)
		}
	}
}

func (p *Pipeline) drain(messages <-chan syslogd.Message) {
	// Context is gone; give buffered messages a bounded chance to land in
	// pending state, then flush everything.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				p.flush(ctx)
				return
			}
			p.HandleSyslog(ctx, msg)
		default:
			p.flush(ctx)
			return
		}
	}
}

func (p *Pipeline) flush(ctx context.Context) {
	for _, composite := range p.pre.Flush() {
		p.Process(ctx, composite)
	}
}

// HandleSyslog normalizes one syslog message and runs it through the
// stages. Messages absorbed into an aggregation window are held; any
// composite the message completes is processed instead.
func (p *Pipeline) HandleSyslog(ctx context.Context, msg syslogd.Message) {
	event := p.pre.FromSyslog(msg)
	composites, held := p.pre.Aggregate(event)
	for _, composite := range composites {
		p.Process(ctx, composite)
	}
	if held {
		return
	}
	p.pre.Enrich(ctx, event)
	p.Process(ctx, event)
}

// HandleAlert runs a triggered alert event through the stages.
func (p *Pipeline) HandleAlert(ctx context.Context, alert *models.AlertEvent) *Outcome {
	return p.Process(ctx, p.pre.FromAlertEvent(alert))
}

// Process runs one normalized event through dedup, filter, analyze, and
// decide. Stage errors are audited and absorbed.
func (p *Pipeline) Process(ctx context.Context, event *models.UnifiedEvent) *Outcome {
	outcome := &Outcome{Event: event}

	p.count(func(s *Stats) { s.Processed++ })
	eventsTotal.Inc()

	// Composites already summarize a dedup-like window, and metric alerts
	// carry rule-level cooldowns; neither goes through the fingerprint cache.
	if !event.IsComposite && event.Source != models.SourceMetrics {
		fp := dedup.FingerprintEvent(event)
		if p.cache.Exists(fp) {
			entry := p.cache.Set(fp, 0)
			p.count(func(s *Stats) { s.Deduplicated++ })
			deduplicatedTotal.Inc()
			log.Debug().Str("event", event.ID).Int("count", entry.Count).Msg("event deduplicated")
			outcome.Deduplicated = true
			return outcome
		}
		p.cache.Set(fp, 0)
	}

	if result := p.filter.Filter(ctx, event); result.Filtered {
		p.count(func(s *Stats) { s.Filtered++ })
		filteredTotal.Inc()
		log.Debug().Str("event", event.ID).Str("reason", string(result.Reason)).Msg("event filtered as noise")
		outcome.Filtered = true
		outcome.FilterReason = string(result.Reason)
		return outcome
	}

	// Composites that still carry their children are analyzed as one
	// correlated incident rather than as an isolated event.
	var analysis *rootcause.Analysis
	var err error
	if event.IsComposite && len(event.ChildEvents) > 0 {
		analysis, err = p.analyzer.Correlate(ctx, event.ChildEvents)
	} else {
		analysis, err = p.analyzer.Analyze(ctx, event)
	}
	if err != nil {
		p.noteError(event, "analyze", err)
	} else {
		p.count(func(s *Stats) { s.Analyzed++ })
		analyzedTotal.Inc()
		outcome.Analysis = analysis
	}

	d, err := p.engine.Decide(ctx, event, analysis)
	if err != nil {
		p.noteError(event, "decide", err)
		return outcome
	}
	p.count(func(s *Stats) { s.Decided++ })
	decisionsTotal.Inc()
	outcome.Decision = d
	return outcome
}

// Stats returns current throughput counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) count(f func(*Stats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f(&p.stats)
}

func (p *Pipeline) noteError(event *models.UnifiedEvent, stage string, err error) {
	p.count(func(s *Stats) { s.Errors++ })
	errorsTotal.Inc()
	log.Error().Err(err).Str("event", event.ID).Str("stage", stage).Msg("pipeline stage failed")
	p.auditLog.Record(audit.Entry{
		Action:   "pipeline_error",
		Actor:    "pipeline",
		Resource: event.ID,
		Detail:   stage,
		Data:     map[string]string{"error": err.Error()},
	})
}

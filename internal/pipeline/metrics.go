package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiops_pipeline_events_total",
		Help: "Events entering the pipeline.",
	})
	deduplicatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiops_pipeline_deduplicated_total",
		Help: "Events suppressed as duplicates.",
	})
	filteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiops_pipeline_filtered_total",
		Help: "Events suppressed by the noise filter.",
	})
	analyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiops_pipeline_analyzed_total",
		Help: "Events with a completed root-cause analysis.",
	})
	decisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiops_pipeline_decisions_total",
		Help: "Events with a completed decision.",
	})
	errorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiops_pipeline_errors_total",
		Help: "Stage failures absorbed by the pipeline.",
	})
)

package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	collectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiops_collector_collections_total",
		Help: "Number of successful metric collection ticks.",
	})
	collectionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiops_collector_failures_total",
		Help: "Number of failed metric collection attempts.",
	})
)

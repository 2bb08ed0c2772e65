package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRouterMetrics() {
	r.RouterQueriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "dualdb_router_queries_total",
			Help: "Total number of routed queries",
		},
		[]string{"pool", "kind", "status"}, // kind: read, write, critical
	)

	r.RouterQueryDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dualdb_router_query_duration_seconds",
			Help:    "Routed query latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"pool"},
	)

	r.RouterFailovers = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "dualdb_router_failovers_total",
			Help: "Reads retried on the primary after the secondary failed",
		},
	)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicationMetrics() {
	r.ReplicationWritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "dualdb_replication_writes_total",
			Help: "Dual-write attempts per replica",
		},
		[]string{"operation", "replica", "status"}, // status: success, failed
	)
}

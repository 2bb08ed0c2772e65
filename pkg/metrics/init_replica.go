package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicaMetrics() {
	r.ReplicaOnline = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dualdb_replica_online",
			Help: "1 if the last health probe of the replica succeeded",
		},
		[]string{"replica"},
	)

	r.ReplicaResponseTime = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dualdb_replica_response_time_ms",
			Help: "Latency of the last health probe in milliseconds, -1 when offline",
		},
		[]string{"replica"},
	)

	r.ReplicaConnections = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dualdb_replica_connections",
			Help: "Open connections in the replica pool at the last probe",
		},
		[]string{"replica"},
	)

	r.ReplicaLoadPercent = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dualdb_replica_load_percent",
			Help: "Share of open connections held by each replica",
		},
		[]string{"replica"},
	)
}

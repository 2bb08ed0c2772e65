package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSyncMetrics() {
	r.SyncDifferenceRows = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dualdb_sync_difference_rows",
			Help: "Primary row count minus secondary row count at the last check",
		},
		[]string{"table"},
	)

	r.SyncRepairsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "dualdb_sync_repairs_total",
			Help: "Auto-repair runs per table",
		},
		[]string{"table", "status"}, // status: success, partial, failed
	)

	r.SyncRepairedRows = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "dualdb_sync_repaired_rows_total",
			Help: "Rows copied from the primary to the secondary by auto-repair",
		},
		[]string{"table"},
	)

	r.SyncCyclesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "dualdb_sync_cycles_total",
			Help: "Completed consistency monitor cycles",
		},
	)

	r.SyncLastCycleSeconds = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "dualdb_sync_last_cycle_timestamp_seconds",
			Help: "Unix time the last consistency monitor cycle finished",
		},
	)
}

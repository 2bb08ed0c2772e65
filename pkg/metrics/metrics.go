package metrics

import (
	"runtime"
	"time"
)

// Every Record/Update method is a no-op on a nil *Registry so components can
// run without metrics.

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncHTTPRequestsInFlight marks the start of a request
func (r *Registry) IncHTTPRequestsInFlight() {
	if r == nil {
		return
	}
	r.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight marks the end of a request
func (r *Registry) DecHTTPRequestsInFlight() {
	if r == nil {
		return
	}
	r.HTTPRequestsInFlight.Dec()
}

// RecordRouterQuery records one routed query attempt
func (r *Registry) RecordRouterQuery(pool, kind, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.RouterQueriesTotal.WithLabelValues(pool, kind, status).Inc()
	r.RouterQueryDuration.WithLabelValues(pool).Observe(duration.Seconds())
}

// RecordFailover counts a read retried on the primary
func (r *Registry) RecordFailover() {
	if r == nil {
		return
	}
	r.RouterFailovers.Inc()
}

// UpdateReplicaHealth publishes the result of one health probe
func (r *Registry) UpdateReplicaHealth(replica string, online bool, responseTimeMs int64, connections int32) {
	if r == nil {
		return
	}
	if online {
		r.ReplicaOnline.WithLabelValues(replica).Set(1)
	} else {
		r.ReplicaOnline.WithLabelValues(replica).Set(0)
	}
	r.ReplicaResponseTime.WithLabelValues(replica).Set(float64(responseTimeMs))
	r.ReplicaConnections.WithLabelValues(replica).Set(float64(connections))
}

// SetLoadSplit publishes the primary/secondary connection share
func (r *Registry) SetLoadSplit(primaryPercent, secondaryPercent int) {
	if r == nil {
		return
	}
	r.ReplicaLoadPercent.WithLabelValues("primary").Set(float64(primaryPercent))
	r.ReplicaLoadPercent.WithLabelValues("secondary").Set(float64(secondaryPercent))
}

// RecordReplicationWrite records one dual-write attempt on one replica
func (r *Registry) RecordReplicationWrite(operation, replica string, success bool) {
	if r == nil {
		return
	}
	r.ReplicationWritesTotal.WithLabelValues(operation, replica, statusLabel(success)).Inc()
}

// RecordSyncStatus records the row count difference for a table
func (r *Registry) RecordSyncStatus(table string, difference int64) {
	if r == nil {
		return
	}
	r.SyncDifferenceRows.WithLabelValues(table).Set(float64(difference))
}

// RecordRepair records an auto-repair run and the rows it copied
func (r *Registry) RecordRepair(table, status string, rows int) {
	if r == nil {
		return
	}
	r.SyncRepairsTotal.WithLabelValues(table, status).Inc()
	if rows > 0 {
		r.SyncRepairedRows.WithLabelValues(table).Add(float64(rows))
	}
}

// RecordSyncCycle marks the end of a consistency monitor cycle
func (r *Registry) RecordSyncCycle(finished time.Time) {
	if r == nil {
		return
	}
	r.SyncCyclesTotal.Inc()
	r.SyncLastCycleSeconds.Set(float64(finished.Unix()))
}

// UpdateSystemMetrics refreshes uptime and runtime gauges
func (r *Registry) UpdateSystemMetrics() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(r.startedAt).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	// Verify all metrics are initialized
	if r.RouterQueriesTotal == nil {
		t.Error("RouterQueriesTotal not initialized")
	}
	if r.ReplicaOnline == nil {
		t.Error("ReplicaOnline not initialized")
	}
	if r.ReplicationWritesTotal == nil {
		t.Error("ReplicationWritesTotal not initialized")
	}
	if r.SyncRepairsTotal == nil {
		t.Error("SyncRepairsTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	// Should return the same instance
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.RecordFailover()

	if got := counterValue(t, a.RouterFailovers); got != 1 {
		t.Errorf("registry a failovers = %v, want 1", got)
	}
	if got := counterValue(t, b.RouterFailovers); got != 0 {
		t.Errorf("registry b failovers = %v, want 0", got)
	}
}

func TestRecordRouterQuery(t *testing.T) {
	r := NewRegistry()

	r.RecordRouterQuery("secondary", "read", "success", 5*time.Millisecond)
	r.RecordRouterQuery("secondary", "read", "success", 7*time.Millisecond)
	r.RecordRouterQuery("primary", "critical", "error", 3*time.Millisecond)

	if got := counterValue(t, r.RouterQueriesTotal.WithLabelValues("secondary", "read", "success")); got != 2 {
		t.Errorf("secondary reads = %v, want 2", got)
	}
	if got := counterValue(t, r.RouterQueriesTotal.WithLabelValues("primary", "critical", "error")); got != 1 {
		t.Errorf("primary critical errors = %v, want 1", got)
	}
}

func TestUpdateReplicaHealth(t *testing.T) {
	r := NewRegistry()

	r.UpdateReplicaHealth("secondary", true, 12, 4)
	if got := gaugeValue(t, r.ReplicaOnline.WithLabelValues("secondary")); got != 1 {
		t.Errorf("online = %v, want 1", got)
	}

	r.UpdateReplicaHealth("secondary", false, -1, 0)
	if got := gaugeValue(t, r.ReplicaOnline.WithLabelValues("secondary")); got != 0 {
		t.Errorf("online = %v, want 0", got)
	}
	if got := gaugeValue(t, r.ReplicaResponseTime.WithLabelValues("secondary")); got != -1 {
		t.Errorf("response time = %v, want -1", got)
	}
	if got := gaugeValue(t, r.ReplicaConnections.WithLabelValues("secondary")); got != 0 {
		t.Errorf("connections = %v, want 0", got)
	}
}

func TestRecordReplicationWrite(t *testing.T) {
	r := NewRegistry()

	r.RecordReplicationWrite("INSERT", "primary", true)
	r.RecordReplicationWrite("INSERT", "secondary", false)

	if got := counterValue(t, r.ReplicationWritesTotal.WithLabelValues("INSERT", "primary", "success")); got != 1 {
		t.Errorf("primary successes = %v, want 1", got)
	}
	if got := counterValue(t, r.ReplicationWritesTotal.WithLabelValues("INSERT", "secondary", "failed")); got != 1 {
		t.Errorf("secondary failures = %v, want 1", got)
	}
}

func TestRecordRepair(t *testing.T) {
	r := NewRegistry()

	r.RecordSyncStatus("users", 3)
	r.RecordRepair("users", "success", 10)
	r.RecordRepair("users", "partial", 4)
	r.RecordRepair("users", "failed", 0)

	if got := gaugeValue(t, r.SyncDifferenceRows.WithLabelValues("users")); got != 3 {
		t.Errorf("difference = %v, want 3", got)
	}
	if got := counterValue(t, r.SyncRepairedRows.WithLabelValues("users")); got != 14 {
		t.Errorf("repaired rows = %v, want 14", got)
	}
	if got := counterValue(t, r.SyncRepairsTotal.WithLabelValues("users", "failed")); got != 1 {
		t.Errorf("failed repairs = %v, want 1", got)
	}
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry

	// None of these may panic.
	r.RecordHTTPRequest("GET", "/stats", "200", time.Millisecond)
	r.RecordRouterQuery("primary", "write", "success", time.Millisecond)
	r.RecordFailover()
	r.UpdateReplicaHealth("primary", true, 1, 1)
	r.SetLoadSplit(50, 50)
	r.RecordReplicationWrite("DELETE", "secondary", true)
	r.RecordSyncStatus("t", 0)
	r.RecordRepair("t", "success", 1)
	r.RecordSyncCycle(time.Now())
	r.UpdateSystemMetrics()
}

func TestGatherExposesNames(t *testing.T) {
	r := NewRegistry()
	r.RecordFailover()
	r.SetLoadSplit(60, 40)
	r.RecordSyncCycle(time.Now())
	r.UpdateSystemMetrics()

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")

	for _, want := range []string{
		"dualdb_router_failovers_total",
		"dualdb_replica_load_percent",
		"dualdb_sync_cycles_total",
		"dualdb_uptime_seconds",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("gathered metrics missing %s", want)
		}
	}
}

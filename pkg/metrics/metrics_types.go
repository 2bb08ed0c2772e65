package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Router Metrics
	RouterQueriesTotal  *prometheus.CounterVec
	RouterQueryDuration *prometheus.HistogramVec
	RouterFailovers     prometheus.Counter

	// Replica Health Metrics
	ReplicaOnline       *prometheus.GaugeVec
	ReplicaResponseTime *prometheus.GaugeVec
	ReplicaConnections  *prometheus.GaugeVec
	ReplicaLoadPercent  *prometheus.GaugeVec

	// Replication Metrics
	ReplicationWritesTotal *prometheus.CounterVec

	// Sync Metrics
	SyncDifferenceRows   *prometheus.GaugeVec
	SyncRepairsTotal     *prometheus.CounterVec
	SyncRepairedRows     *prometheus.CounterVec
	SyncCyclesTotal      prometheus.Counter
	SyncLastCycleSeconds prometheus.Gauge

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry  *prometheus.Registry
	startedAt time.Time
	mu        sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry:  reg,
		startedAt: time.Now(),
	}

	// Initialize all metrics
	r.initHTTPMetrics()
	r.initRouterMetrics()
	r.initReplicaMetrics()
	r.initReplicationMetrics()
	r.initSyncMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

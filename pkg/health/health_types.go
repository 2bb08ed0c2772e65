package health

import (
	"errors"
	"sync"
	"time"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/metrics"
	"github.com/dd0wney/dualdb/pkg/replica"
)

// ErrReplicaUnreachable marks a failed liveness probe.
var ErrReplicaUnreachable = errors.New("replica unreachable")

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check for a specific component
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ms"`
}

// CheckFunc is a function that performs a health check
type CheckFunc func() Check

// HealthChecker aggregates named checks into one response
type HealthChecker struct {
	service     string
	startedAt   time.Time
	checks      map[string]CheckFunc
	mu          sync.RWMutex
	readyChecks map[string]CheckFunc // Checks for readiness
	liveChecks  map[string]CheckFunc // Checks for liveness
}

// Response represents the overall health response
type Response struct {
	Service   string           `json:"service"`
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    float64          `json:"uptime_seconds"`
}

// ReplicaHealth is the latest probe result for one replica. A failed probe
// always yields exactly Offline().
type ReplicaHealth struct {
	Online       bool  `json:"online"`
	ResponseTime int64 `json:"responseTime"`
	Connections  int32 `json:"connections"`
}

// Offline is the sentinel recorded after a failed probe.
func Offline() ReplicaHealth {
	return ReplicaHealth{Online: false, ResponseTime: -1, Connections: 0}
}

// ProbeInfo tracks probe history beyond the latest snapshot.
type ProbeInfo struct {
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastProbe           time.Time `json:"lastProbe"`
	LastFailure         time.Time `json:"lastFailure"`
	LastError           string    `json:"lastError,omitempty"`
}

// Snapshot is a consistent copy of the monitor's state.
type Snapshot struct {
	Primary       ReplicaHealth              `json:"primary"`
	Secondary     ReplicaHealth              `json:"secondary"`
	PrimaryLoad   int                        `json:"primaryLoad"`
	SecondaryLoad int                        `json:"secondaryLoad"`
	LastCheck     time.Time                  `json:"lastCheck"`
	Probes        map[replica.Role]ProbeInfo `json:"probes"`
}

// Monitor probes both replicas and holds the latest health of each.
type Monitor struct {
	primary      replica.Pool
	secondary    replica.Pool
	probeTimeout time.Duration
	logger       logging.Logger
	metrics      *metrics.Registry

	mu            sync.RWMutex
	health        map[replica.Role]ReplicaHealth
	probes        map[replica.Role]ProbeInfo
	primaryLoad   int
	secondaryLoad int
	lastCheck     time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

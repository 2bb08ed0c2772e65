package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/metrics"
	"github.com/dd0wney/dualdb/pkg/replica"
	"github.com/dd0wney/dualdb/pkg/sqlbuild"
)

// WithProbeTimeout bounds each liveness probe.
func WithProbeTimeout(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithLogger sets the monitor's logger.
func WithLogger(l logging.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics publishes probe results to r.
func WithMetrics(r *metrics.Registry) MonitorOption {
	return func(m *Monitor) { m.metrics = r }
}

// NewMonitor creates a monitor for the two pools. Both replicas start out
// online so reads may use the secondary before the first probe completes.
func NewMonitor(primary, secondary replica.Pool, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		primary:      primary,
		secondary:    secondary,
		probeTimeout: 5 * time.Second,
		logger:       logging.NewNopLogger(),
		health: map[replica.Role]ReplicaHealth{
			replica.Primary:   {Online: true},
			replica.Secondary: {Online: true},
		},
		probes: map[replica.Role]ProbeInfo{
			replica.Primary:   {},
			replica.Secondary: {},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logging.Component("health"))
	return m
}

type probeResult struct {
	role   replica.Role
	health ReplicaHealth
	err    error
	at     time.Time
}

// ProbeAll probes both replicas concurrently and replaces each replica's
// health record wholesale with the result.
func (m *Monitor) ProbeAll(ctx context.Context) Snapshot {
	pools := []replica.Pool{m.primary, m.secondary}
	results := make([]probeResult, len(pools))

	var g errgroup.Group
	for i, pool := range pools {
		i, pool := i, pool
		g.Go(func() error {
			results[i] = m.probe(ctx, pool)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	for _, res := range results {
		prev := m.health[res.role]
		info := m.probes[res.role]
		info.LastProbe = res.at

		m.health[res.role] = res.health
		if res.err != nil {
			info.ConsecutiveFailures++
			info.LastFailure = res.at
			info.LastError = res.err.Error()
			m.logger.Warn(fmt.Sprintf("[LOAD BALANCER] %s database offline", res.role),
				logging.Replica(string(res.role)),
				logging.Int("consecutive_failures", info.ConsecutiveFailures),
				logging.Error(res.err))
		} else {
			if !prev.Online {
				m.logger.Info(fmt.Sprintf("[LOAD BALANCER] %s database back online", res.role),
					logging.Replica(string(res.role)),
					logging.Int("failed_probes", info.ConsecutiveFailures))
			}
			info.ConsecutiveFailures = 0
			info.LastError = ""
		}
		m.probes[res.role] = info
		m.metrics.UpdateReplicaHealth(string(res.role), res.health.Online, res.health.ResponseTime, res.health.Connections)
	}

	m.recomputeLoadLocked()
	m.lastCheck = time.Now()
	m.metrics.SetLoadSplit(m.primaryLoad, m.secondaryLoad)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug("[LOAD BALANCER] health check complete",
		logging.Bool("primary_online", snap.Primary.Online),
		logging.Bool("secondary_online", snap.Secondary.Online),
		logging.Int("primary_load", snap.PrimaryLoad),
		logging.Int("secondary_load", snap.SecondaryLoad))

	return snap
}

func (m *Monitor) probe(ctx context.Context, pool replica.Pool) probeResult {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	stmt := sqlbuild.Ping()
	start := time.Now()
	_, err := pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return probeResult{
			role:   pool.Role(),
			health: Offline(),
			err:    fmt.Errorf("%w: %s: %w", ErrReplicaUnreachable, pool.Role(), err),
			at:     start,
		}
	}

	return probeResult{
		role: pool.Role(),
		health: ReplicaHealth{
			Online:       true,
			ResponseTime: time.Since(start).Milliseconds(),
			Connections:  pool.Stat().TotalConns,
		},
		at: start,
	}
}

// recomputeLoadLocked splits load by open connections. When neither pool
// holds a connection the previous split is kept.
func (m *Monitor) recomputeLoadLocked() {
	p := m.health[replica.Primary].Connections
	s := m.health[replica.Secondary].Connections
	total := p + s
	if total == 0 {
		return
	}
	m.primaryLoad = int(math.Round(float64(p) / float64(total) * 100))
	m.secondaryLoad = 100 - m.primaryLoad
}

// IsOnline reports the last known state of role.
func (m *Monitor) IsOnline(role replica.Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health[role].Online
}

// Health returns the last probe result for role.
func (m *Monitor) Health(role replica.Role) ReplicaHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health[role]
}

// Probe returns the probe history for role.
func (m *Monitor) Probe(role replica.Role) ProbeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.probes[role]
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() Snapshot {
	probes := make(map[replica.Role]ProbeInfo, len(m.probes))
	for role, info := range m.probes {
		probes[role] = info
	}
	return Snapshot{
		Primary:       m.health[replica.Primary],
		Secondary:     m.health[replica.Secondary],
		PrimaryLoad:   m.primaryLoad,
		SecondaryLoad: m.secondaryLoad,
		LastCheck:     m.lastCheck,
		Probes:        probes,
	}
}

// ResetLoad zeroes the load split.
func (m *Monitor) ResetLoad() {
	m.mu.Lock()
	m.primaryLoad = 0
	m.secondaryLoad = 0
	m.mu.Unlock()
	m.metrics.SetLoadSplit(0, 0)
}

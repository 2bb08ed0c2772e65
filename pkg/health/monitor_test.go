package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/metrics"
	"github.com/dd0wney/dualdb/pkg/replica"
	"github.com/dd0wney/dualdb/pkg/replica/replicatest"
)

func newPools() (*replicatest.MemPool, *replicatest.MemPool) {
	return replicatest.New(replica.Primary), replicatest.New(replica.Secondary)
}

func TestMonitorStartsOnline(t *testing.T) {
	p, s := newPools()
	m := NewMonitor(p, s)

	assert.True(t, m.IsOnline(replica.Primary))
	assert.True(t, m.IsOnline(replica.Secondary))

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.PrimaryLoad)
	assert.Equal(t, 0, snap.SecondaryLoad)
	assert.True(t, snap.LastCheck.IsZero())
}

func TestProbeAllSuccess(t *testing.T) {
	p, s := newPools()
	p.SetStats(replica.Stats{TotalConns: 3})
	s.SetStats(replica.Stats{TotalConns: 1})

	m := NewMonitor(p, s)
	snap := m.ProbeAll(context.Background())

	assert.True(t, snap.Primary.Online)
	assert.Equal(t, int32(3), snap.Primary.Connections)
	assert.GreaterOrEqual(t, snap.Primary.ResponseTime, int64(0))
	assert.True(t, snap.Secondary.Online)
	assert.Equal(t, int32(1), snap.Secondary.Connections)

	assert.Equal(t, 75, snap.PrimaryLoad)
	assert.Equal(t, 25, snap.SecondaryLoad)
	assert.False(t, snap.LastCheck.IsZero())

	// Each pool received exactly one liveness query.
	require.Len(t, p.Calls(), 1)
	assert.Equal(t, "SELECT 1", p.Calls()[0].SQL)
	require.Len(t, s.Calls(), 1)
}

func TestProbeFailureWritesSentinel(t *testing.T) {
	p, s := newPools()
	s.SetStats(replica.Stats{TotalConns: 9})

	m := NewMonitor(p, s)
	m.ProbeAll(context.Background())
	require.Equal(t, int32(9), m.Health(replica.Secondary).Connections)

	s.SetFailing(errors.New("connection refused"))
	snap := m.ProbeAll(context.Background())

	assert.Equal(t, ReplicaHealth{Online: false, ResponseTime: -1, Connections: 0}, snap.Secondary)
	assert.Equal(t, Offline(), m.Health(replica.Secondary))
	assert.False(t, m.IsOnline(replica.Secondary))
	assert.True(t, m.IsOnline(replica.Primary))

	info := m.Probe(replica.Secondary)
	assert.Equal(t, 1, info.ConsecutiveFailures)
	assert.Contains(t, info.LastError, "connection refused")
	assert.Contains(t, info.LastError, ErrReplicaUnreachable.Error())
	assert.False(t, info.LastFailure.IsZero())
}

func TestSentinelSerialization(t *testing.T) {
	data, err := json.Marshal(Offline())
	require.NoError(t, err)
	assert.JSONEq(t, `{"online":false,"responseTime":-1,"connections":0}`, string(data))
}

func TestConsecutiveFailuresResetOnRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewZapLogger(&buf, logging.DebugLevel)

	p, s := newPools()
	m := NewMonitor(p, s, WithLogger(logger))

	s.SetFailing(errors.New("timeout"))
	m.ProbeAll(context.Background())
	m.ProbeAll(context.Background())
	assert.Equal(t, 2, m.Probe(replica.Secondary).ConsecutiveFailures)

	s.SetFailing(nil)
	m.ProbeAll(context.Background())
	info := m.Probe(replica.Secondary)
	assert.Equal(t, 0, info.ConsecutiveFailures)
	assert.Empty(t, info.LastError)
	assert.True(t, m.IsOnline(replica.Secondary))

	out := buf.String()
	assert.Contains(t, out, "[LOAD BALANCER] secondary database offline")
	assert.Contains(t, out, "[LOAD BALANCER] secondary database back online")
}

func TestLoadSplitKeptWhenNoConnections(t *testing.T) {
	p, s := newPools()
	p.SetStats(replica.Stats{TotalConns: 1})
	s.SetStats(replica.Stats{TotalConns: 2})

	m := NewMonitor(p, s)
	m.ProbeAll(context.Background())
	require.Equal(t, 33, m.Snapshot().PrimaryLoad)
	require.Equal(t, 67, m.Snapshot().SecondaryLoad)

	p.SetStats(replica.Stats{})
	s.SetStats(replica.Stats{})
	snap := m.ProbeAll(context.Background())

	assert.Equal(t, 33, snap.PrimaryLoad)
	assert.Equal(t, 67, snap.SecondaryLoad)
}

func TestLoadSplitBothOffline(t *testing.T) {
	p, s := newPools()
	p.SetFailing(errors.New("down"))
	s.SetFailing(errors.New("down"))

	m := NewMonitor(p, s)
	snap := m.ProbeAll(context.Background())

	assert.Equal(t, Offline(), snap.Primary)
	assert.Equal(t, Offline(), snap.Secondary)
	assert.Equal(t, 0, snap.PrimaryLoad+snap.SecondaryLoad)
}

func TestProbeTimeout(t *testing.T) {
	p, s := newPools()
	s.SetDelay(time.Second)

	m := NewMonitor(p, s, WithProbeTimeout(20*time.Millisecond))

	start := time.Now()
	snap := m.ProbeAll(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, Offline(), snap.Secondary)
	assert.True(t, snap.Primary.Online)
	assert.True(t, strings.Contains(m.Probe(replica.Secondary).LastError, context.DeadlineExceeded.Error()))
}

func TestResetLoad(t *testing.T) {
	p, s := newPools()
	m := NewMonitor(p, s)
	m.ProbeAll(context.Background())
	require.Equal(t, 50, m.Snapshot().PrimaryLoad)

	m.ResetLoad()
	assert.Equal(t, 0, m.Snapshot().PrimaryLoad)
	assert.Equal(t, 0, m.Snapshot().SecondaryLoad)
}

func TestMonitorPublishesMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	p, s := newPools()
	s.SetFailing(errors.New("down"))

	m := NewMonitor(p, s, WithMetrics(reg))
	m.ProbeAll(context.Background())

	families, err := reg.GetPrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() != "dualdb_replica_online" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetValue() == "secondary" {
					found = true
					assert.Equal(t, float64(0), metric.GetGauge().GetValue())
				}
			}
		}
	}
	assert.True(t, found, "secondary online gauge not exported")
}

func TestReplicaCheck(t *testing.T) {
	p, s := newPools()
	m := NewMonitor(p, s)

	tests := []struct {
		name           string
		failPrimary    bool
		failSecondary  bool
		role           replica.Role
		expectedStatus Status
	}{
		{"primary online", false, false, replica.Primary, StatusHealthy},
		{"primary offline", true, false, replica.Primary, StatusUnhealthy},
		{"secondary offline", false, true, replica.Secondary, StatusDegraded},
		{"secondary online", false, false, replica.Secondary, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.SetFailing(nil)
			s.SetFailing(nil)
			if tt.failPrimary {
				p.SetFailing(errors.New("down"))
			}
			if tt.failSecondary {
				s.SetFailing(errors.New("down"))
			}
			m.ProbeAll(context.Background())

			check := ReplicaCheck(m, tt.role)()
			assert.Equal(t, tt.expectedStatus, check.Status)
			assert.Equal(t, string(tt.role), check.Name)
			assert.Contains(t, check.Details, "responseTime")
		})
	}
}

func TestHealthCheckerWithMonitor(t *testing.T) {
	p, s := newPools()
	m := NewMonitor(p, s)

	hc := NewHealthChecker("dualdb")
	hc.RegisterCheck("primary", ReplicaCheck(m, replica.Primary))
	hc.RegisterCheck("secondary", ReplicaCheck(m, replica.Secondary))

	s.SetFailing(errors.New("down"))
	m.ProbeAll(context.Background())
	assert.Equal(t, StatusDegraded, hc.Check().Status)

	p.SetFailing(errors.New("down"))
	m.ProbeAll(context.Background())
	assert.Equal(t, StatusUnhealthy, hc.Check().Status)
}

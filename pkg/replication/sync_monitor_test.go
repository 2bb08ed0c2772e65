package replication

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/replica/replicatest"
)

func newMonitor(p, s *replicatest.MemPool, tables []string, opts ...Option) *SyncMonitor {
	return NewSyncMonitor(NewVerifier(p, s, opts...), NewRepairer(p, s, opts...), tables, opts...)
}

func TestSyncCycleRepairsDivergentTables(t *testing.T) {
	p, s := newPair()
	p.Seed("users", seedRows(3, "u")...)
	s.Seed("users", seedRows(3, "u")...)
	p.Seed("orders", seedRows(4, "o")...)
	s.Seed("orders", seedRows(2, "o")...)

	m := newMonitor(p, s, []string{"users", "orders"})
	report := m.RunCycle(context.Background())

	_, err := uuid.Parse(report.ID)
	require.NoError(t, err)
	require.Len(t, report.Tables, 2)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	users, orders := report.Tables[0], report.Tables[1]
	assert.True(t, users.Status.Synchronized)
	assert.False(t, users.RepairAttempted)

	assert.False(t, orders.Status.Synchronized)
	assert.True(t, orders.RepairAttempted)
	assert.Equal(t, 4, orders.Repaired)
	assert.True(t, orders.Resolved())

	assert.Equal(t, []string{"orders"}, report.Divergent())
	assert.Empty(t, report.Unresolved())
	assert.Empty(t, report.Errored())
	assert.Equal(t, p.Rows("orders"), s.Rows("orders"))
}

func TestSyncCycleSkipsTablesThatCannotBeCompared(t *testing.T) {
	p, s := newPair()
	p.Seed("good", seedRows(2, "g")...)
	s.Seed("good", seedRows(1, "g")...)
	p.Seed("bad", seedRows(2, "b")...)

	s.SetFailOn(func(sql string, _ []any) error {
		if strings.Contains(sql, `"bad"`) {
			return errors.New("relation \"bad\" does not exist")
		}
		return nil
	})

	m := newMonitor(p, s, []string{"bad", "good"})
	report := m.RunCycle(context.Background())

	require.Len(t, report.Tables, 2)
	bad, good := report.Tables[0], report.Tables[1]

	assert.NotEmpty(t, bad.Status.Error)
	assert.False(t, bad.RepairAttempted, "errored tables are never repaired")
	assert.Equal(t, 1, bad.ConsecutiveErrors)
	assert.False(t, bad.Alert)

	assert.True(t, good.RepairAttempted)
	assert.True(t, good.Resolved())

	assert.Equal(t, []string{"bad"}, report.Errored())
	assert.Equal(t, []string{"good"}, report.Divergent())
}

func TestSyncCycleAlertsAboveThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewZapLogger(&buf, logging.InfoLevel)

	p, s := newPair()
	p.Seed("small", seedRows(3, "a")...)
	s.Seed("small", seedRows(1, "a")...)
	p.Seed("large", seedRows(10, "b")...)

	m := newMonitor(p, s, []string{"small", "large"}, WithLogger(logger), WithAlertThreshold(5))
	report := m.RunCycle(context.Background())

	assert.False(t, report.Tables[0].Alert)
	assert.True(t, report.Tables[1].Alert)

	out := buf.String()
	assert.Contains(t, out, "--- SYNCHRONIZATION CHECK ---")
	assert.Contains(t, out, "INCONSISTENCY DETECTED in small, initiating auto-repair...")
	assert.Contains(t, out, "INCONSISTENCY DETECTED in large, initiating auto-repair...")
	assert.Contains(t, out, "[ALERT] large out of sync by 10 rows")
	assert.NotContains(t, out, "[ALERT] small")
}

func TestSyncCycleAlertsOnRepeatedErrors(t *testing.T) {
	p, s := newPair()
	p.Seed("t", seedRows(1, "r")...)
	s.SetFailing(errors.New("connection refused"))

	m := newMonitor(p, s, []string{"t"})
	ctx := context.Background()

	for i := 1; i < consecutiveErrorAlert; i++ {
		r := m.RunCycle(ctx)
		assert.Equal(t, i, r.Tables[0].ConsecutiveErrors)
		assert.False(t, r.Tables[0].Alert)
	}

	r := m.RunCycle(ctx)
	assert.Equal(t, consecutiveErrorAlert, r.Tables[0].ConsecutiveErrors)
	assert.True(t, r.Tables[0].Alert)

	// A clean comparison resets the streak.
	s.SetFailing(nil)
	s.Seed("t", seedRows(1, "r")...)
	r = m.RunCycle(ctx)
	assert.Zero(t, r.Tables[0].ConsecutiveErrors)
	assert.True(t, r.Tables[0].Status.Synchronized)
}

func TestSyncCycleRecordsPartialRepair(t *testing.T) {
	p, s := newPair()
	p.Seed("t", seedRows(3, "r")...)
	s.SetFailOn(func(sql string, args []any) error {
		if strings.HasPrefix(sql, "INSERT") && len(args) > 0 && args[0] == int64(3) {
			return errors.New("check constraint violated")
		}
		return nil
	})

	report := newMonitor(p, s, []string{"t"}).RunCycle(context.Background())
	tr := report.Tables[0]

	assert.True(t, tr.RepairAttempted)
	assert.Equal(t, 2, tr.Repaired)
	assert.Contains(t, tr.RepairError, "check constraint violated")
	assert.False(t, tr.Resolved())
	assert.Equal(t, []string{"t"}, report.Unresolved())
}

func TestSyncCycleStopsOnCancel(t *testing.T) {
	p, s := newPair()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := newMonitor(p, s, []string{"a", "b"}).RunCycle(ctx)
	assert.Empty(t, report.Tables)
	assert.Equal(t, 0, p.QueryCount())
}

func TestLastReport(t *testing.T) {
	p, s := newPair()
	m := newMonitor(p, s, []string{"t"})

	_, ok := m.LastReport()
	assert.False(t, ok)

	first := m.RunCycle(context.Background())
	last, ok := m.LastReport()
	require.True(t, ok)
	assert.Equal(t, first.ID, last.ID)

	second := m.RunCycle(context.Background())
	last, _ = m.LastReport()
	assert.Equal(t, second.ID, last.ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTablesReturnsCopy(t *testing.T) {
	p, s := newPair()
	tables := []string{"a", "b"}
	m := newMonitor(p, s, tables)

	tables[0] = "mutated"
	got := m.Tables()
	assert.Equal(t, []string{"a", "b"}, got)

	got[1] = "mutated"
	assert.Equal(t, []string{"a", "b"}, m.Tables())
}

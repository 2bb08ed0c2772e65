package cluster

import (
	"context"
	"time"

	"github.com/dd0wney/dualdb/pkg/balancer"
	"github.com/dd0wney/dualdb/pkg/health"
	"github.com/dd0wney/dualdb/pkg/replica"
	"github.com/dd0wney/dualdb/pkg/replication"
	"github.com/dd0wney/dualdb/pkg/sqlbuild"
)

// DatabaseHealth is the latest probe result for both replicas.
type DatabaseHealth struct {
	Primary   health.ReplicaHealth `json:"primary"`
	Secondary health.ReplicaHealth `json:"secondary"`
	LastCheck time.Time            `json:"lastCheck"`
}

// Snapshot is the load balancer's observable state. Router counters are
// flattened into the top level.
type Snapshot struct {
	balancer.Stats
	DatabaseHealth DatabaseHealth `json:"databaseHealth"`
	PrimaryLoad    int            `json:"primaryLoad"`
	SecondaryLoad  int            `json:"secondaryLoad"`
	Uptime         float64        `json:"uptime"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ExecuteQuery routes sql to a replica and runs it.
func (c *Cluster) ExecuteQuery(ctx context.Context, sql string, args ...any) (*replica.Result, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	return c.router.ExecuteQuery(ctx, sql, args...)
}

// DualInsert inserts values into table on both replicas and returns the
// primary's result.
func (c *Cluster) DualInsert(ctx context.Context, table string, values sqlbuild.Values) (*replica.Result, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	return c.writer.Insert(ctx, table, values)
}

// DualUpdate updates the rows of table matching where on both replicas.
// where is a trusted fragment numbered from $1 against whereArgs.
func (c *Cluster) DualUpdate(ctx context.Context, table string, values sqlbuild.Values, where string, whereArgs ...any) (*replica.Result, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	return c.writer.Update(ctx, table, values, sqlbuild.Where(where, whereArgs...))
}

// DualDelete deletes the rows of table matching where on both replicas.
func (c *Cluster) DualDelete(ctx context.Context, table string, where string, whereArgs ...any) (*replica.Result, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	return c.writer.Delete(ctx, table, sqlbuild.Where(where, whereArgs...))
}

// VerifySynchronization compares table across the replicas.
func (c *Cluster) VerifySynchronization(ctx context.Context, table string, opts ...replication.VerifyOption) (replication.SyncStatus, error) {
	if c.Closed() {
		return replication.SyncStatus{Table: table, CheckedAt: c.now(), Error: ErrClosed.Error()}, ErrClosed
	}
	return c.verifier.VerifySynchronization(ctx, table, opts...)
}

// AutoRepairInconsistencies rebuilds table on the secondary from the primary.
func (c *Cluster) AutoRepairInconsistencies(ctx context.Context, table string) (int, error) {
	if c.Closed() {
		return 0, ErrClosed
	}
	return c.repairer.AutoRepairInconsistencies(ctx, table)
}

// GetLoadBalancerStats returns the router counters together with the latest
// replica health.
func (c *Cluster) GetLoadBalancerStats() Snapshot {
	h := c.monitor.Snapshot()
	now := c.now()
	return Snapshot{
		Stats: c.router.Stats(),
		DatabaseHealth: DatabaseHealth{
			Primary:   h.Primary,
			Secondary: h.Secondary,
			LastCheck: h.LastCheck,
		},
		PrimaryLoad:   h.PrimaryLoad,
		SecondaryLoad: h.SecondaryLoad,
		Uptime:        now.Sub(c.startedAt).Seconds(),
		Timestamp:     now,
	}
}

// ResetStats zeroes the router counters and the load split. Replica health
// is left as last probed.
func (c *Cluster) ResetStats() {
	c.router.Reset()
	c.monitor.ResetLoad()
}

// ProbeReplicas runs one health probe of both replicas.
func (c *Cluster) ProbeReplicas(ctx context.Context) health.Snapshot {
	snap := c.monitor.ProbeAll(ctx)
	c.metrics.UpdateSystemMetrics()
	return snap
}

// RunSyncCycle runs one consistency check over every monitored table.
func (c *Cluster) RunSyncCycle(ctx context.Context) replication.Report {
	return c.syncMon.RunCycle(ctx)
}

// LastSyncReport returns the most recent consistency cycle's report.
func (c *Cluster) LastSyncReport() (replication.Report, bool) {
	return c.syncMon.LastReport()
}

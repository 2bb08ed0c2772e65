// Package cluster assembles the primary and secondary replicas, the query
// router, the dual writer and both background monitors into one owned
// object with an explicit lifecycle: New at startup, Shutdown at exit.
package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dd0wney/dualdb/pkg/balancer"
	"github.com/dd0wney/dualdb/pkg/config"
	"github.com/dd0wney/dualdb/pkg/health"
	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/metrics"
	"github.com/dd0wney/dualdb/pkg/replica"
	"github.com/dd0wney/dualdb/pkg/replication"
)

// Cluster is the replication and load-balancing layer for one primary and
// one secondary database.
type Cluster struct {
	cfg       config.Config
	logger    logging.Logger
	metrics   *metrics.Registry
	startedAt time.Time
	now       func() time.Time

	primary   replica.Pool
	secondary replica.Pool

	monitor  *health.Monitor
	router   *balancer.Router
	writer   *replication.DualWriter
	verifier *replication.Verifier
	repairer *replication.Repairer
	syncMon  *replication.SyncMonitor
	checker  *health.HealthChecker

	// jobs is the parent of every scheduled run; Shutdown cancels it.
	jobs     context.Context
	stopJobs context.CancelFunc

	mu          sync.Mutex
	scheduler   *cron.Cron
	healthEntry cron.EntryID
	syncEntry   cron.EntryID
	closed      bool
}

// Option configures a Cluster.
type Option func(*options)

type options struct {
	logger  logging.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

// WithLogger sets the logger shared by every component.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics publishes every component's metrics to r.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) { o.metrics = r }
}

// WithClock overrides time.Now for uptime and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger: logging.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New opens both replica pools and builds the cluster.
//
// The primary must answer a ping. A secondary that cannot be reached is
// opened anyway. The first health probe marks it offline; until it recovers
// reads go to the primary and its missed writes are left for auto-repair.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	cleanup := newResourceCleanup(o.logger)
	defer cleanup.Cleanup()

	primary, err := replica.Open(ctx, replica.Primary, cfg.Primary, o.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrimaryUnavailable, err)
	}
	cleanup.Add(primary, "primary pool")

	var secondary replica.Pool
	if s, err := replica.Open(ctx, replica.Secondary, cfg.Secondary, o.logger); err == nil {
		secondary = s
	} else {
		o.logger.Warn("[LOAD BALANCER] secondary database unreachable at startup, reads served by primary",
			logging.Error(err))
		lazy, err := replica.OpenUnverified(ctx, replica.Secondary, cfg.Secondary)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSecondaryUnavailable, err)
		}
		secondary = lazy
	}
	cleanup.Add(secondary, "secondary pool")

	c := NewWithPools(primary, secondary, cfg, opts...)
	cleanup.Clear()
	return c, nil
}

// NewWithPools builds a cluster over pools the caller has already opened.
// The cluster takes ownership and closes them on Shutdown.
func NewWithPools(primary, secondary replica.Pool, cfg config.Config, opts ...Option) *Cluster {
	o := applyOptions(opts)
	logger := o.logger

	monitor := health.NewMonitor(primary, secondary,
		health.WithProbeTimeout(cfg.Health.ProbeTimeout),
		health.WithLogger(logger),
		health.WithMetrics(o.metrics))

	router := balancer.NewRouter(primary, secondary, monitor,
		balancer.WithClassifier(balancer.NewClassifier(cfg.Router.CriticalTables)),
		balancer.WithHistorySize(cfg.Router.HistorySize),
		balancer.WithLogger(logger),
		balancer.WithMetrics(o.metrics))

	replOpts := []replication.Option{
		replication.WithLogger(logger),
		replication.WithMetrics(o.metrics),
		replication.WithAlertThreshold(cfg.Sync.AlertThreshold),
		replication.WithDefaultContentCheck(cfg.Sync.VerifyContent, cfg.Sync.SampleLimit),
	}
	verifier := replication.NewVerifier(primary, secondary, replOpts...)
	repairer := replication.NewRepairer(primary, secondary, replOpts...)

	jobs, cancel := context.WithCancel(context.Background())
	cronLog := cronLogger{logger: logger.With(logging.Component("scheduler"))}

	c := &Cluster{
		cfg:       cfg,
		logger:    logger,
		metrics:   o.metrics,
		startedAt: o.now(),
		now:       o.now,
		primary:   primary,
		secondary: secondary,
		monitor:   monitor,
		router:    router,
		writer:    replication.NewDualWriter(primary, secondary, replOpts...),
		verifier:  verifier,
		repairer:  repairer,
		syncMon:   replication.NewSyncMonitor(verifier, repairer, cfg.Sync.Tables, replOpts...),
		jobs:      jobs,
		stopJobs:  cancel,
		scheduler: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
	c.checker = c.newHealthChecker()
	return c
}

func (c *Cluster) newHealthChecker() *health.HealthChecker {
	hc := health.NewHealthChecker("dualdb")

	primary := health.ReplicaCheck(c.monitor, replica.Primary)
	secondary := health.ReplicaCheck(c.monitor, replica.Secondary)
	syncState := health.SyncCheck(c.syncState)

	hc.RegisterCheck("primary", primary)
	hc.RegisterCheck("secondary", secondary)
	hc.RegisterCheck("sync", syncState)

	// Writes need the primary; the secondary is optional for serving.
	hc.RegisterReadinessCheck("primary", primary)

	hc.RegisterLivenessCheck("process", func() health.Check {
		return health.SimpleCheck("process")
	})
	return hc
}

func (c *Cluster) syncState() health.SyncState {
	report, ok := c.syncMon.LastReport()
	if !ok {
		return health.SyncState{}
	}
	return health.SyncState{
		Ran:        true,
		FinishedAt: report.FinishedAt,
		Divergent:  report.Unresolved(),
		Errored:    report.Errored(),
	}
}

// Health returns the checker backing the health endpoints.
func (c *Cluster) Health() *health.HealthChecker { return c.checker }

// Config returns the configuration the cluster was built with.
func (c *Cluster) Config() config.Config { return c.cfg }

// SyncTables returns the tables checked by the consistency monitor.
func (c *Cluster) SyncTables() []string { return c.syncMon.Tables() }

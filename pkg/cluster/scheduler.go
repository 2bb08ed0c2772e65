package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dd0wney/dualdb/pkg/logging"
)

// StartHealthMonitoring probes both replicas once and then on every health
// interval. Calling it again while monitoring is running does nothing.
func (c *Cluster) StartHealthMonitoring() error {
	interval := c.cfg.Health.Interval
	if interval < time.Second {
		return fmt.Errorf("%w: health interval %s", ErrInvalidInterval, interval)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.healthEntry != 0 {
		c.mu.Unlock()
		return nil
	}
	id, err := c.scheduler.AddFunc(every(interval), func() {
		c.ProbeReplicas(c.jobs)
	})
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to schedule health monitoring: %w", err)
	}
	c.healthEntry = id
	c.scheduler.Start()
	c.mu.Unlock()

	c.logger.Info("[LOAD BALANCER] health monitoring started", logging.Duration("interval", interval))
	c.ProbeReplicas(c.jobs)
	return nil
}

// StartSyncMonitor runs a consistency cycle every interval. A zero interval
// uses the configured one. Calling it again replaces the previous schedule.
func (c *Cluster) StartSyncMonitor(interval time.Duration) error {
	if interval == 0 {
		interval = c.cfg.Sync.Interval
	}
	if interval < time.Second {
		return fmt.Errorf("%w: sync interval %s", ErrInvalidInterval, interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	id, err := c.scheduler.AddFunc(every(interval), func() {
		c.syncMon.RunCycle(c.jobs)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync monitor: %w", err)
	}
	if c.syncEntry != 0 {
		c.scheduler.Remove(c.syncEntry)
	}
	c.syncEntry = id
	c.scheduler.Start()

	c.logger.Info("[LOAD BALANCER] sync monitor started",
		logging.Duration("interval", interval),
		logging.Int("tables", len(c.syncMon.Tables())))
	return nil
}

// Shutdown stops both monitors, waits for any run in progress and closes
// the replica pools. If ctx expires first the pools are closed anyway and
// ctx's error is returned. Shutdown is idempotent.
func (c *Cluster) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.healthEntry, c.syncEntry = 0, 0
	c.mu.Unlock()

	c.logger.Info("[LOAD BALANCER] shutting down")
	c.stopJobs()

	var err error
	select {
	case <-c.scheduler.Stop().Done():
	case <-ctx.Done():
		err = ctx.Err()
		c.logger.Warn("[LOAD BALANCER] scheduled jobs still running at shutdown", logging.Error(err))
	}

	pools := newResourceCleanup(c.logger)
	pools.Add(c.primary, "primary pool")
	pools.Add(c.secondary, "secondary pool")
	pools.Cleanup()

	c.logger.Info("[LOAD BALANCER] database pools closed")
	return err
}

// Closed reports whether Shutdown has been called.
func (c *Cluster) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// cronLogger routes scheduler logs through logging.Logger. Routine scheduler
// chatter is logged at debug level.
type cronLogger struct {
	logger logging.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(kvFields(keysAndValues), logging.Error(err))...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logging.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}

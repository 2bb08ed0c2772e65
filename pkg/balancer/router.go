package balancer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/metrics"
	"github.com/dd0wney/dualdb/pkg/replica"
)

// ErrFailoverExhausted is returned when a read failed on the secondary and
// the retry on the primary failed too.
var ErrFailoverExhausted = errors.New("failover exhausted")

// HealthSource reports the last known liveness of a replica.
type HealthSource interface {
	IsOnline(role replica.Role) bool
}

type alwaysOnline struct{}

func (alwaysOnline) IsOnline(replica.Role) bool { return true }

// Router sends each statement to one replica and keeps query statistics.
// Routers share nothing, so independent instances can run side by side.
type Router struct {
	primary    replica.Pool
	secondary  replica.Pool
	health     HealthSource
	classifier *Classifier
	logger     logging.Logger
	metrics    *metrics.Registry
	now        func() time.Time

	mu    sync.Mutex
	stats counters
}

// Option configures a Router.
type Option func(*Router)

// WithClassifier replaces the default classifier.
func WithClassifier(c *Classifier) Option {
	return func(r *Router) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithHistorySize sets the response-time history capacity.
func WithHistorySize(n int) Option {
	return func(r *Router) { r.stats.history = newHistory(n) }
}

// WithLogger sets the router's logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics publishes routing metrics to m.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Router) { r.metrics = m }
}

// NewRouter creates a router over the two pools. A nil health source treats
// both replicas as online.
func NewRouter(primary, secondary replica.Pool, health HealthSource, opts ...Option) *Router {
	if health == nil {
		health = alwaysOnline{}
	}
	r := &Router{
		primary:    primary,
		secondary:  secondary,
		health:     health,
		classifier: DefaultClassifier(),
		logger:     logging.NewNopLogger(),
		now:        time.Now,
		stats:      counters{history: newHistory(DefaultHistorySize)},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logging.Component("balancer"))
	return r
}

// Route picks the pool for sql without executing it.
func (r *Router) Route(sql string) (replica.Pool, Kind) {
	kind := r.classifier.Classify(sql)
	if kind == KindRead && r.health.IsOnline(replica.Secondary) {
		return r.secondary, kind
	}
	return r.primary, kind
}

// Classifier returns the router's classifier.
func (r *Router) Classifier() *Classifier { return r.classifier }

// ExecuteQuery runs sql on the pool chosen by Route. A read that fails on the
// secondary is retried once on the primary unless ctx is already done; any
// other failure is returned as is.
func (r *Router) ExecuteQuery(ctx context.Context, sql string, args ...any) (*replica.Result, error) {
	start := r.now()

	r.mu.Lock()
	r.stats.total++
	r.mu.Unlock()

	target, kind := r.Route(sql)
	role := target.Role()

	res, err := target.Query(ctx, sql, args...)
	elapsed := r.now().Sub(start)
	if err == nil {
		r.recordSuccess(role, kind, elapsed, false)
		r.logger.Debug(fmt.Sprintf("[LOAD BALANCER] query executed on %s: %dms", role, elapsed.Milliseconds()),
			logging.Replica(string(role)),
			logging.String("kind", string(kind)),
			logging.Latency(elapsed))
		return res, nil
	}

	if role != replica.Secondary {
		r.recordFailure(role, kind, elapsed, false, err)
		r.logger.Error("[LOAD BALANCER] query failed on primary",
			logging.String("kind", string(kind)),
			logging.Error(err))
		return nil, err
	}

	// The caller gave up; the secondary is not at fault.
	if ctx.Err() != nil {
		r.recordFailure(role, kind, elapsed, false, err)
		return nil, err
	}

	r.logger.Warn("[LOAD BALANCER] automatic failover: secondary -> primary", logging.Error(err))
	r.metrics.RecordRouterQuery(string(role), string(kind), "error", elapsed)
	r.markFailover()

	res, primaryErr := r.primary.Query(ctx, sql, args...)
	elapsed = r.now().Sub(start)
	if primaryErr != nil {
		r.recordFailure(replica.Primary, kind, elapsed, true, primaryErr)
		r.logger.Error("[LOAD BALANCER] failover failed",
			logging.String("secondary_error", err.Error()),
			logging.Error(primaryErr))
		return nil, fmt.Errorf("%w: secondary: %w; primary: %w", ErrFailoverExhausted, err, primaryErr)
	}

	r.recordSuccess(replica.Primary, kind, elapsed, true)
	return res, nil
}

func (r *Router) recordSuccess(role replica.Role, kind Kind, elapsed time.Duration, failover bool) {
	r.mu.Lock()
	if kind == KindRead {
		r.stats.reads++
	} else {
		r.stats.writes++
	}
	r.stats.record(HistoryEntry{
		Timestamp:    r.now(),
		ResponseTime: elapsed.Milliseconds(),
		Pool:         role,
		Success:      true,
		Failover:     failover,
	})
	r.mu.Unlock()

	r.metrics.RecordRouterQuery(string(role), string(kind), "success", elapsed)
}

func (r *Router) recordFailure(role replica.Role, kind Kind, elapsed time.Duration, failover bool, err error) {
	r.mu.Lock()
	r.stats.record(HistoryEntry{
		Timestamp:    r.now(),
		ResponseTime: elapsed.Milliseconds(),
		Pool:         role,
		Success:      false,
		Failover:     failover,
		Error:        err.Error(),
	})
	r.mu.Unlock()

	r.metrics.RecordRouterQuery(string(role), string(kind), "error", elapsed)
}

func (r *Router) markFailover() {
	r.mu.Lock()
	r.stats.failovers++
	r.stats.lastFailover = r.now()
	r.mu.Unlock()

	r.metrics.RecordFailover()
}

// Stats returns a snapshot of the counters and history.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats.snapshot()
}

// Reset zeroes every counter and clears the history.
func (r *Router) Reset() {
	r.mu.Lock()
	r.stats.reset()
	r.mu.Unlock()
	r.logger.Info("[LOAD BALANCER] statistics reset")
}

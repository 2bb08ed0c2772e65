package replication

import (
	"time"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/metrics"
)

type settings struct {
	logger           logging.Logger
	metrics          *metrics.Registry
	secondaryTimeout time.Duration
	repairTimeout    time.Duration
	alertThreshold   int64
	contentCheck     bool
	sampleLimit      int
	now              func() time.Time
}

// Option configures the writers, verifiers and monitors of this package.
// Options that do not apply to a type are ignored by it.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics publishes replication metrics to r.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *settings) { s.metrics = r }
}

// WithSecondaryTimeout bounds the secondary half of a dual write. The
// secondary write ignores caller cancellation, so this is its only limit.
func WithSecondaryTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.secondaryTimeout = d
		}
	}
}

// WithRepairTimeout bounds the wipe and reload of a repair. Once the
// secondary has been cleared the reload ignores caller cancellation, so this
// is its only limit.
func WithRepairTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.repairTimeout = d
		}
	}
}

// WithAlertThreshold sets the row difference above which the sync monitor
// raises an alert.
func WithAlertThreshold(n int64) Option {
	return func(s *settings) { s.alertThreshold = n }
}

// WithDefaultContentCheck makes every verification compare checksums unless
// the call overrides it. limit > 0 restricts the checksum to the first limit
// rows by id.
func WithDefaultContentCheck(enabled bool, limit int) Option {
	return func(s *settings) {
		s.contentCheck = enabled
		s.sampleLimit = limit
	}
}

func newSettings(component string, opts []Option) settings {
	s := settings{
		logger:           logging.NewNopLogger(),
		secondaryTimeout: 30 * time.Second,
		repairTimeout:    10 * time.Minute,
		alertThreshold:   5,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = s.logger.With(logging.Component(component))
	return s
}

// Package api serves the admin HTTP interface: health probes, load balancer
// stats, consistency checks and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/dualdb/pkg/api/middleware"
	"github.com/dd0wney/dualdb/pkg/auth"
	"github.com/dd0wney/dualdb/pkg/cluster"
	"github.com/dd0wney/dualdb/pkg/config"
	"github.com/dd0wney/dualdb/pkg/health"
	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/metrics"
	"github.com/dd0wney/dualdb/pkg/replication"
)

// Backend is the subset of *cluster.Cluster the server exposes.
type Backend interface {
	Health() *health.HealthChecker
	GetLoadBalancerStats() cluster.Snapshot
	ResetStats()
	SyncTables() []string
	LastSyncReport() (replication.Report, bool)
	RunSyncCycle(ctx context.Context) replication.Report
	VerifySynchronization(ctx context.Context, table string, opts ...replication.VerifyOption) (replication.SyncStatus, error)
	AutoRepairInconsistencies(ctx context.Context, table string) (int, error)
}

// Server represents the admin HTTP API server
type Server struct {
	backend    Backend
	metrics    *metrics.Registry
	logger     logging.Logger
	jwtManager *auth.JWTManager
	router     *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics exposes r on /metrics and records HTTP metrics into it.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Server) { s.metrics = r }
}

// NewServer creates the API server. Admin routes are only reachable when
// cfg.AdminJWTSecret is set.
func NewServer(backend Backend, cfg config.APIConfig, opts ...Option) (*Server, error) {
	s := &Server{
		backend: backend,
		logger:  logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("api"))

	if cfg.AdminJWTSecret != "" {
		m, err := auth.NewJWTManager(cfg.AdminJWTSecret, auth.DefaultTokenDuration)
		if err != nil {
			return nil, fmt.Errorf("admin token manager: %w", err)
		}
		s.jwtManager = m
	} else {
		s.logger.Warn("admin JWT secret not set, admin endpoints are disabled")
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	checker := s.backend.Health()
	r.HandleFunc("/health", checker.HTTPHandler()).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", checker.ReadinessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/health/live", checker.LivenessHandler()).Methods(http.MethodGet)

	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/stats/reset", s.requireAdmin(s.handleResetStats)).Methods(http.MethodPost)

	r.HandleFunc("/sync", s.handleLastSync).Methods(http.MethodGet)
	r.HandleFunc("/sync", s.requireAdmin(s.handleRunSync)).Methods(http.MethodPost)
	r.HandleFunc("/sync/{table}", s.handleVerifyTable).Methods(http.MethodGet)
	r.HandleFunc("/sync/{table}/repair", s.requireAdmin(s.handleRepairTable)).Methods(http.MethodPost)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{
			ErrorLog: promErrorLogger{s.logger},
		})).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respondError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Outermost first
	r.Use(
		middleware.PanicRecovery(s.logger),
		middleware.RequestID(),
		middleware.Logging(s.logger, middleware.GetRequestID),
	)
	if s.metrics != nil {
		r.Use(middleware.Metrics(s.metrics))
	}
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// promErrorLogger adapts the logger to promhttp's Println interface.
type promErrorLogger struct {
	logger logging.Logger
}

func (l promErrorLogger) Println(v ...any) {
	l.logger.Error("metrics handler error", logging.String("detail", fmt.Sprint(v...)))
}

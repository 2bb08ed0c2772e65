// Package server runs the admin HTTP listener with signal-driven graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/dualdb/pkg/logging"
)

// DefaultShutdownTimeout bounds draining connections and running hooks.
const DefaultShutdownTimeout = 30 * time.Second

// ConfigReloadFunc is a function that reloads configuration
type ConfigReloadFunc func() error

// ShutdownHook runs after the listener has drained. Hooks run in reverse
// registration order and share the shutdown deadline.
type ShutdownHook func(ctx context.Context) error

// GracefulServer wraps an HTTP server with graceful shutdown capabilities
type GracefulServer struct {
	server          *http.Server
	logger          logging.Logger
	shutdownTimeout time.Duration

	shutdownCh   chan struct{}
	doneCh       chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	hooksMu sync.Mutex
	hooks   []ShutdownHook

	configReloadFn ConfigReloadFunc
	configMu       sync.RWMutex
}

// NewGracefulServer creates a new graceful HTTP server
func NewGracefulServer(addr string, handler http.Handler, logger logging.Logger) *GracefulServer {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &GracefulServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger:          logger.With(logging.Component("http")),
		shutdownTimeout: DefaultShutdownTimeout,
		shutdownCh:      make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// SetShutdownTimeout changes the timeout used for signal-triggered shutdown.
func (gs *GracefulServer) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		gs.shutdownTimeout = d
	}
}

// OnShutdown registers hook to run during shutdown.
func (gs *GracefulServer) OnShutdown(hook ShutdownHook) {
	gs.hooksMu.Lock()
	defer gs.hooksMu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// Start listens on the configured address and serves until shutdown.
func (gs *GracefulServer) Start() error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return err
	}
	return gs.Serve(ln)
}

// Serve handles signals and serves on ln. It returns once a shutdown has
// completed, with the shutdown's error, or immediately if serving fails.
func (gs *GracefulServer) Serve(ln net.Listener) error {
	go gs.handleSignals()

	gs.logger.Info("starting HTTP server", logging.String("addr", ln.Addr().String()))
	if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-gs.doneCh
	return gs.shutdownErr
}

// Shutdown initiates a graceful shutdown
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)
		defer close(gs.doneCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Info("initiating graceful shutdown", logging.Duration("timeout", timeout))

		var errs []error
		if err := gs.server.Shutdown(ctx); err != nil {
			gs.logger.Error("error during HTTP shutdown", logging.Error(err))
			errs = append(errs, err)
		}

		gs.hooksMu.Lock()
		hooks := append([]ShutdownHook(nil), gs.hooks...)
		gs.hooksMu.Unlock()
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](ctx); err != nil {
				gs.logger.Error("shutdown hook failed", logging.Error(err))
				errs = append(errs, err)
			}
		}

		gs.shutdownErr = errors.Join(errs...)
		if gs.shutdownErr == nil {
			gs.logger.Info("server shutdown complete")
		}
	})
	<-gs.doneCh
	return gs.shutdownErr
}

// handleSignals listens for OS signals until shutdown starts
func (gs *GracefulServer) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // Termination signal (systemd, docker, k8s)
		syscall.SIGHUP,  // Reload configuration
	)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-gs.shutdownCh:
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				gs.logger.Info("received signal, starting graceful shutdown", logging.String("signal", sig.String()))
				go func() { _ = gs.Shutdown(gs.shutdownTimeout) }()
				return

			case syscall.SIGHUP:
				gs.logger.Info("received SIGHUP, reloading configuration")
				_ = gs.ReloadConfig()
			}
		}
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that closes when shutdown is initiated
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}

// SetConfigReloadFunc sets the function to call when configuration reload is triggered
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.configMu.Lock()
	defer gs.configMu.Unlock()
	gs.configReloadFn = fn
}

// ReloadConfig triggers a configuration reload
func (gs *GracefulServer) ReloadConfig() error {
	gs.configMu.RLock()
	reloadFn := gs.configReloadFn
	gs.configMu.RUnlock()

	if reloadFn == nil {
		gs.logger.Info("configuration reload requested, but no reload function configured")
		return nil
	}

	if err := reloadFn(); err != nil {
		gs.logger.Error("configuration reload failed", logging.Error(err))
		return err
	}

	gs.logger.Info("configuration reload complete")
	return nil
}

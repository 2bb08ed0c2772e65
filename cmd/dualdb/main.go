// Command dualdb runs the dual-database load balancer: health and sync
// monitors plus the admin HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dd0wney/dualdb/pkg/api"
	"github.com/dd0wney/dualdb/pkg/cluster"
	"github.com/dd0wney/dualdb/pkg/config"
	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/metrics"
	"github.com/dd0wney/dualdb/pkg/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("DUALDB_CONFIG"), "Path to YAML config file")
	startTimeout := flag.Duration("start-timeout", 30*time.Second, "Time allowed to reach the primary at startup")
	shutdownTimeout := flag.Duration("shutdown-timeout", server.DefaultShutdownTimeout, "Graceful shutdown timeout")
	flag.Parse()

	if err := run(*configPath, *startTimeout, *shutdownTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "dualdb: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, startTimeout, shutdownTimeout time.Duration) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewZapLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	defer func() { _ = logger.Sync() }()
	logging.SetDefaultLogger(logger)

	logger.Info("[LOAD BALANCER] starting",
		logging.String("primary", cfg.Primary.Redacted()),
		logging.String("secondary", cfg.Secondary.Redacted()),
		logging.String("listen_addr", cfg.API.ListenAddr))

	registry := metrics.DefaultRegistry()

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	c, err := cluster.New(ctx, *cfg, cluster.WithLogger(logger), cluster.WithMetrics(registry))
	cancel()
	if err != nil {
		return err
	}

	if err := c.StartHealthMonitoring(); err != nil {
		_ = c.Shutdown(context.Background())
		return err
	}
	if err := c.StartSyncMonitor(cfg.Sync.Interval); err != nil {
		_ = c.Shutdown(context.Background())
		return err
	}

	apiServer, err := api.NewServer(c, cfg.API, api.WithLogger(logger), api.WithMetrics(registry))
	if err != nil {
		_ = c.Shutdown(context.Background())
		return err
	}

	gs := server.NewGracefulServer(cfg.API.ListenAddr, apiServer.Handler(), logger)
	gs.SetShutdownTimeout(shutdownTimeout)
	gs.OnShutdown(c.Shutdown)
	gs.SetConfigReloadFunc(func() error {
		reloaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		logger.SetLevel(logging.ParseLevel(reloaded.LogLevel))
		logger.Info("log level reloaded", logging.String("level", logger.GetLevel().String()))
		return nil
	})

	if err := gs.Start(); err != nil {
		_ = c.Shutdown(context.Background())
		return err
	}
	return nil
}

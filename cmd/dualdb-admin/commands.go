package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dd0wney/dualdb/pkg/auth"
	"github.com/dd0wney/dualdb/pkg/cluster"
	"github.com/dd0wney/dualdb/pkg/config"
	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/replication"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// connect loads the configuration and opens both replicas. Logs go to
// stderr so stdout stays machine readable.
func connect(ctx context.Context, configPath string) (*cluster.Cluster, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.NewZapLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	return cluster.New(ctx, *cfg, cluster.WithLogger(logger))
}

func closeCluster(c *cluster.Cluster) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = c.Shutdown(ctx)
}

func runVerify(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("DUALDB_CONFIG"), "Path to YAML config file")
	content := fs.Bool("content", false, "Also compare row checksums")
	limit := fs.Int("limit", 0, "Checksum only the first N rows by id (implies -content)")
	timeout := fs.Duration("timeout", time.Minute, "Overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var opts []replication.VerifyOption
	if *content {
		opts = append(opts, replication.WithContentCheck())
	}
	if *limit > 0 {
		opts = append(opts, replication.WithSampleLimit(*limit))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := connect(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeCluster(c)

	tables := fs.Args()
	if len(tables) == 0 {
		tables = c.SyncTables()
	}

	var statuses []replication.SyncStatus
	var errs []error
	outOfSync := false
	for _, table := range tables {
		status, err := c.VerifySynchronization(ctx, table, opts...)
		if err != nil {
			errs = append(errs, err)
		} else if !status.Synchronized {
			outOfSync = true
		}
		statuses = append(statuses, status)
	}

	if err := printJSON(out, statuses); err != nil {
		return err
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if outOfSync {
		return errOutOfSync
	}
	return nil
}

func runRepair(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("repair", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("DUALDB_CONFIG"), "Path to YAML config file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: dualdb-admin repair [options] <table>")
	}
	table := fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := connect(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeCluster(c)

	repaired, repairErr := c.AutoRepairInconsistencies(ctx, table)
	result := struct {
		Table    string `json:"table"`
		Repaired int    `json:"repaired"`
		Error    string `json:"error,omitempty"`
	}{Table: table, Repaired: repaired}
	if repairErr != nil {
		result.Error = repairErr.Error()
	}

	if err := printJSON(out, result); err != nil {
		return err
	}
	return repairErr
}

func runStats(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("DUALDB_CONFIG"), "Path to YAML config file")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := connect(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeCluster(c)

	c.ProbeReplicas(ctx)
	return printJSON(out, c.GetLoadBalancerStats())
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("DUALDB_ADMIN_JWT_SECRET"), "Signing secret (at least 32 characters)")
	subject := fs.String("subject", "admin", "Token subject")
	role := fs.String("role", auth.RoleAdmin, "Token role (admin or viewer)")
	ttl := fs.Duration("ttl", auth.DefaultTokenDuration, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("no signing secret: set DUALDB_ADMIN_JWT_SECRET or pass -secret")
	}

	m, err := auth.NewJWTManager(*secret, *ttl)
	if err != nil {
		return err
	}
	token, err := m.GenerateToken(*subject, *role)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

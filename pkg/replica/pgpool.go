package replica

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/dualdb/pkg/config"
	"github.com/dd0wney/dualdb/pkg/logging"
)

// PGPool is a Pool backed by pgxpool.
type PGPool struct {
	role Role
	pool *pgxpool.Pool
}

var _ Pool = (*PGPool)(nil)

// Open creates the pool for one replica and verifies it answers a ping.
// The ping is retried with exponential backoff for up to four connect
// timeouts before giving up.
func Open(ctx context.Context, role Role, cfg config.DatabaseConfig, logger logging.Logger) (*PGPool, error) {
	p, err := OpenUnverified(ctx, role, cfg)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 4 * cfg.ConnectTimeout

	attempt := 0
	ping := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		err := p.pool.Ping(pingCtx)
		if err != nil {
			logger.Warn("database ping failed",
				logging.Replica(string(role)),
				logging.Int("attempt", attempt),
				logging.Error(err))
		}
		return err
	}

	if err := backoff.Retry(ping, backoff.WithContext(bo, ctx)); err != nil {
		p.Close()
		return nil, fmt.Errorf("%s database unreachable: %w", role, err)
	}

	logger.Info("database pool ready",
		logging.Replica(string(role)),
		logging.String("target", cfg.Redacted()),
		logging.Int("max_conns", int(cfg.MaxConns)))

	return p, nil
}

// OpenUnverified creates the pool without contacting the database.
// Connections are established on first use.
func OpenUnverified(ctx context.Context, role Role, cfg config.DatabaseConfig) (*PGPool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s database URL: %w", role, err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.IdleTimeout > 0 {
		poolCfg.MaxConnIdleTime = cfg.IdleTimeout
	}
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	if cfg.InsecureTLS {
		poolCfg.ConnConfig.TLSConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // managed providers present self-signed chains
			ServerName:         poolCfg.ConnConfig.Host,
		}
		poolCfg.ConnConfig.Fallbacks = nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s connection pool: %w", role, err)
	}
	return &PGPool{role: role, pool: pool}, nil
}

// Role returns which replica this pool serves.
func (p *PGPool) Role() Role { return p.role }

// Query runs sql and collects every row into maps keyed by column name.
func (p *PGPool) Query(ctx context.Context, sql string, args ...any) (*Result, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	tag := rows.CommandTag()
	result := &Result{
		Rows:         make([]Row, len(maps)),
		RowsAffected: tag.RowsAffected(),
		Command:      tag.String(),
	}
	for i, m := range maps {
		result.Rows[i] = Row(m)
	}
	return result, nil
}

// Ping checks database connectivity
func (p *PGPool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Stat reports the pool's current connection counts.
func (p *PGPool) Stat() Stats {
	s := p.pool.Stat()
	return Stats{
		TotalConns:    s.TotalConns(),
		IdleConns:     s.IdleConns(),
		AcquiredConns: s.AcquiredConns(),
		MaxConns:      s.MaxConns(),
	}
}

// Close closes the database connection pool
func (p *PGPool) Close() {
	p.pool.Close()
}

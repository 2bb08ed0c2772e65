// Package replica wraps one connection pool per database replica.
package replica

import (
	"context"
)

// Role identifies a replica in the primary/secondary topology.
type Role string

const (
	Primary   Role = "primary"
	Secondary Role = "secondary"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Result is a fully read query result.
type Result struct {
	Rows         []Row
	RowsAffected int64
	Command      string
}

// First returns the first row, or nil when the result is empty.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Querier runs a statement and reads its whole result.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (*Result, error)
}

// Stats is a point-in-time view of a pool's connections.
type Stats struct {
	TotalConns    int32
	IdleConns     int32
	AcquiredConns int32
	MaxConns      int32
}

// Pool is a replica's connection pool.
type Pool interface {
	Querier
	Role() Role
	Ping(ctx context.Context) error
	Stat() Stats
	Close()
}

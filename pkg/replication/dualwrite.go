package replication

import (
	"context"
	"fmt"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/replica"
	"github.com/dd0wney/dualdb/pkg/sqlbuild"
)

// Operation is the kind of a dual write.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Event is one write attempt on one replica. Events are emitted to the log
// with a stable message format that external monitors scrape.
type Event struct {
	Operation Operation
	Table     string
	Replica   replica.Role
	Success   bool
	Err       error
}

// Message renders "REPLICATION <OP> <TABLE> - SUCCESS|FAILED[ - <error>]".
func (e Event) Message() string {
	if e.Success {
		return fmt.Sprintf("REPLICATION %s %s - SUCCESS", e.Operation, e.Table)
	}
	if e.Err != nil {
		return fmt.Sprintf("REPLICATION %s %s - FAILED - %s", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("REPLICATION %s %s - FAILED", e.Operation, e.Table)
}

// DualWriter applies each write to the primary and then the secondary.
//
// The primary is authoritative: if it fails the secondary is never called
// and the error is returned. A secondary failure is logged and left for the
// consistency monitor to repair.
type DualWriter struct {
	primary   replica.Querier
	secondary replica.Querier
	settings
}

// NewDualWriter creates a writer over the two replicas.
func NewDualWriter(primary, secondary replica.Querier, opts ...Option) *DualWriter {
	return &DualWriter{
		primary:   primary,
		secondary: secondary,
		settings:  newSettings("replication", opts),
	}
}

// Insert writes values into table on both replicas and returns the primary's
// RETURNING rows.
func (w *DualWriter) Insert(ctx context.Context, table string, values sqlbuild.Values) (*replica.Result, error) {
	ident, err := sqlbuild.Table(table)
	if err != nil {
		return nil, err
	}
	stmt, err := sqlbuild.Insert(ident, values)
	if err != nil {
		return nil, err
	}
	return w.write(ctx, OpInsert, table, stmt)
}

// Update sets values on the rows of table matching where.
func (w *DualWriter) Update(ctx context.Context, table string, values sqlbuild.Values, where sqlbuild.Predicate) (*replica.Result, error) {
	ident, err := sqlbuild.Table(table)
	if err != nil {
		return nil, err
	}
	stmt, err := sqlbuild.Update(ident, values, where)
	if err != nil {
		return nil, err
	}
	return w.write(ctx, OpUpdate, table, stmt)
}

// Delete removes the rows of table matching where.
func (w *DualWriter) Delete(ctx context.Context, table string, where sqlbuild.Predicate) (*replica.Result, error) {
	ident, err := sqlbuild.Table(table)
	if err != nil {
		return nil, err
	}
	stmt, err := sqlbuild.Delete(ident, where)
	if err != nil {
		return nil, err
	}
	return w.write(ctx, OpDelete, table, stmt)
}

func (w *DualWriter) write(ctx context.Context, op Operation, table string, stmt sqlbuild.Statement) (*replica.Result, error) {
	res, err := w.primary.Query(ctx, stmt.SQL, stmt.Args...)
	w.emit(Event{Operation: op, Table: table, Replica: replica.Primary, Success: err == nil, Err: err})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrPrimaryWriteFailed, op, table, err)
	}

	// Once the primary has committed the secondary is always attempted.
	secCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.secondaryTimeout)
	defer cancel()

	_, err = w.secondary.Query(secCtx, stmt.SQL, stmt.Args...)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSecondaryWriteFailed, err)
	}
	w.emit(Event{Operation: op, Table: table, Replica: replica.Secondary, Success: err == nil, Err: err})

	return res, nil
}

func (w *DualWriter) emit(e Event) {
	fields := []logging.Field{
		logging.Operation(string(e.Operation)),
		logging.Table(e.Table),
		logging.Replica(string(e.Replica)),
		logging.Bool("success", e.Success),
	}
	if e.Success {
		w.logger.Info(e.Message(), fields...)
	} else {
		w.logger.Warn(e.Message(), append(fields, logging.Error(e.Err))...)
	}
	w.metrics.RecordReplicationWrite(string(e.Operation), string(e.Replica), e.Success)
}

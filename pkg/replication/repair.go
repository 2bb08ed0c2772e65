package replication

import (
	"context"
	"fmt"

	"github.com/dd0wney/dualdb/pkg/logging"
	"github.com/dd0wney/dualdb/pkg/replica"
	"github.com/dd0wney/dualdb/pkg/sqlbuild"
)

// Repairer rebuilds a table on the secondary from the primary.
type Repairer struct {
	primary   replica.Querier
	secondary replica.Querier
	settings
}

// NewRepairer creates a repairer over the two replicas.
func NewRepairer(primary, secondary replica.Querier, opts ...Option) *Repairer {
	return &Repairer{
		primary:   primary,
		secondary: secondary,
		settings:  newSettings("repair", opts),
	}
}

// AutoRepairInconsistencies replaces every row of table on the secondary with
// the primary's rows, read in id order. It returns the number of rows copied.
//
// Rows that fail to insert are skipped; the copy continues and the returned
// error wraps ErrRepairPartialFailure. If the primary cannot be read or the
// secondary cannot be cleared nothing is copied and the error wraps
// ErrRepairFailed.
//
// The wipe and reload are not atomic: readers of the secondary may briefly
// see a partial table. A caller that cancels before the wipe leaves the
// secondary untouched; once the wipe has started the reload runs to the end
// under the repair timeout. If that timeout expires mid-reload the copy
// stops and the error wraps ErrRepairFailed.
func (r *Repairer) AutoRepairInconsistencies(ctx context.Context, table string) (int, error) {
	ident, err := sqlbuild.Table(table)
	if err != nil {
		return 0, err
	}

	r.logger.Info(fmt.Sprintf("auto-repairing inconsistencies in %s", table), logging.Table(table))
	timer := logging.StartTimer(r.logger, "auto-repair", logging.Table(table))

	sel := sqlbuild.SelectOrdered(ident)
	source, err := r.primary.Query(ctx, sel.SQL, sel.Args...)
	if err != nil {
		return r.abort(table, timer, fmt.Errorf("read primary: %w", err))
	}
	if len(source.Rows) > 0 {
		if _, ok := source.Rows[0]["id"]; !ok {
			return r.abort(table, timer, ErrMissingIDColumn)
		}
	}

	if err := ctx.Err(); err != nil {
		return r.abort(table, timer, err)
	}

	// Past this point the secondary is rewritten in full or the run fails.
	reloadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.repairTimeout)
	defer cancel()

	wipe := sqlbuild.DeleteAll(ident)
	if _, err := r.secondary.Query(reloadCtx, wipe.SQL, wipe.Args...); err != nil {
		return r.abort(table, timer, fmt.Errorf("clear secondary: %w", err))
	}

	repaired := 0
	var failed int
	var firstErr error
	for _, row := range source.Rows {
		if err := reloadCtx.Err(); err != nil {
			return r.abort(table, timer, fmt.Errorf("reload secondary after %d of %d rows: %w",
				repaired, len(source.Rows), err))
		}
		stmt, err := sqlbuild.InsertRow(ident, sqlbuild.Values(row))
		if err == nil {
			_, err = r.secondary.Query(reloadCtx, stmt.SQL, stmt.Args...)
		}
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			r.logger.Debug("repair row skipped",
				logging.Table(table),
				logging.Any("id", row["id"]),
				logging.Error(err))
			continue
		}
		repaired++
	}

	r.logger.Info(fmt.Sprintf("auto-repair completed for %s: %d records synchronized", table, repaired),
		logging.Table(table),
		logging.Count(repaired),
		logging.Int("failed", failed))

	if failed > 0 {
		err := fmt.Errorf("%w: %s: %d of %d rows not copied: %w",
			ErrRepairPartialFailure, table, failed, len(source.Rows), firstErr)
		timer.EndError(err)
		r.metrics.RecordRepair(table, "partial", repaired)
		return repaired, err
	}

	timer.End()
	r.metrics.RecordRepair(table, "success", repaired)
	return repaired, nil
}

func (r *Repairer) abort(table string, timer *logging.TimedOperation, cause error) (int, error) {
	err := fmt.Errorf("%w: %s: %w", ErrRepairFailed, table, cause)
	timer.EndError(err)
	r.logger.Error(fmt.Sprintf("auto-repair failed for %s", table),
		logging.Table(table),
		logging.Error(cause))
	r.metrics.RecordRepair(table, "failed", 0)
	return 0, err
}

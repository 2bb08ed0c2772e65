package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/dualdb/pkg/logging"
)

// consecutiveErrorAlert is the number of cycles a table may fail to be
// compared before an alert is raised.
const consecutiveErrorAlert = 3

// TableReport is the outcome of one table in a sync cycle.
type TableReport struct {
	Status            SyncStatus `json:"status"`
	RepairAttempted   bool       `json:"repairAttempted"`
	Repaired          int        `json:"repaired"`
	RepairError       string     `json:"repairError,omitempty"`
	Alert             bool       `json:"alert"`
	ConsecutiveErrors int        `json:"consecutiveErrors,omitempty"`
}

// Resolved reports whether the table ends the cycle believed synchronized.
func (t TableReport) Resolved() bool {
	if t.Status.Error != "" {
		return false
	}
	if t.Status.Synchronized {
		return true
	}
	return t.RepairAttempted && t.RepairError == ""
}

// Report is the outcome of one sync cycle.
type Report struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Tables     []TableReport `json:"tables"`
}

// Divergent returns the tables found out of sync.
func (r Report) Divergent() []string {
	var out []string
	for _, t := range r.Tables {
		if t.Status.Error == "" && !t.Status.Synchronized {
			out = append(out, t.Status.Table)
		}
	}
	return out
}

// Unresolved returns divergent tables whose repair did not fully succeed.
func (r Report) Unresolved() []string {
	var out []string
	for _, t := range r.Tables {
		if t.Status.Error == "" && !t.Resolved() {
			out = append(out, t.Status.Table)
		}
	}
	return out
}

// Errored returns the tables that could not be compared.
func (r Report) Errored() []string {
	var out []string
	for _, t := range r.Tables {
		if t.Status.Error != "" {
			out = append(out, t.Status.Table)
		}
	}
	return out
}

// SyncMonitor checks a fixed list of tables and repairs divergent ones.
type SyncMonitor struct {
	verifier *Verifier
	repairer *Repairer
	tables   []string
	settings

	// cycle serializes RunCycle
	cycle sync.Mutex

	mu                sync.RWMutex
	last              *Report
	consecutiveErrors map[string]int
}

// NewSyncMonitor creates a monitor over tables.
func NewSyncMonitor(verifier *Verifier, repairer *Repairer, tables []string, opts ...Option) *SyncMonitor {
	return &SyncMonitor{
		verifier:          verifier,
		repairer:          repairer,
		tables:            append([]string(nil), tables...),
		settings:          newSettings("sync", opts),
		consecutiveErrors: make(map[string]int),
	}
}

// Tables returns the monitored tables.
func (m *SyncMonitor) Tables() []string {
	return append([]string(nil), m.tables...)
}

// RunCycle verifies each table in order and repairs any that diverged,
// before moving on to the next table. A table whose comparison errored is
// never repaired. Overlapping calls run one after the other.
func (m *SyncMonitor) RunCycle(ctx context.Context) Report {
	m.cycle.Lock()
	defer m.cycle.Unlock()

	report := Report{
		ID:        uuid.NewString(),
		StartedAt: m.now(),
		Tables:    make([]TableReport, 0, len(m.tables)),
	}
	logger := m.logger.With(logging.String("cycle_id", report.ID))
	logger.Info("--- SYNCHRONIZATION CHECK ---", logging.Int("tables", len(m.tables)))

	for _, table := range m.tables {
		if ctx.Err() != nil {
			logger.Warn("synchronization check cancelled", logging.Error(ctx.Err()))
			break
		}
		report.Tables = append(report.Tables, m.checkTable(ctx, logger, table))
	}

	report.FinishedAt = m.now()
	logger.Info("--- SYNCHRONIZATION CHECK COMPLETE ---",
		logging.Int("divergent", len(report.Divergent())),
		logging.Int("errored", len(report.Errored())),
		logging.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	m.metrics.RecordSyncCycle(report.FinishedAt)

	m.mu.Lock()
	m.last = &report
	m.mu.Unlock()

	return report
}

func (m *SyncMonitor) checkTable(ctx context.Context, logger logging.Logger, table string) TableReport {
	status, err := m.verifier.VerifySynchronization(ctx, table)
	tr := TableReport{Status: status}

	m.mu.Lock()
	if err != nil {
		m.consecutiveErrors[table]++
	} else {
		m.consecutiveErrors[table] = 0
	}
	tr.ConsecutiveErrors = m.consecutiveErrors[table]
	m.mu.Unlock()

	if err != nil {
		if tr.ConsecutiveErrors >= consecutiveErrorAlert {
			tr.Alert = true
			logger.Error(fmt.Sprintf("[ALERT] %s could not be compared for %d consecutive cycles", table, tr.ConsecutiveErrors),
				logging.Table(table),
				logging.Error(err))
		}
		return tr
	}

	if status.Synchronized {
		return tr
	}

	if abs(status.Difference) > m.alertThreshold {
		tr.Alert = true
		logger.Error(fmt.Sprintf("[ALERT] %s out of sync by %d rows", table, abs(status.Difference)),
			logging.Table(table),
			logging.Int64("primary_count", status.PrimaryCount),
			logging.Int64("secondary_count", status.SecondaryCount),
			logging.Int64("threshold", m.alertThreshold))
	}

	logger.Warn(fmt.Sprintf("INCONSISTENCY DETECTED in %s, initiating auto-repair...", table),
		logging.Table(table),
		logging.Int64("difference", status.Difference),
		logging.Bool("content_checked", status.ContentChecked))

	tr.RepairAttempted = true
	repaired, err := m.repairer.AutoRepairInconsistencies(ctx, table)
	tr.Repaired = repaired
	if err != nil {
		tr.RepairError = err.Error()
		if !errors.Is(err, ErrRepairPartialFailure) {
			tr.Repaired = 0
		}
	}
	return tr
}

// LastReport returns the most recent cycle's report.
func (m *SyncMonitor) LastReport() (Report, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Report{}, false
	}
	return *m.last, true
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

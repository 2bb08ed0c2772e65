package health

import (
	"fmt"
	"sort"
	"time"

	"github.com/dd0wney/dualdb/pkg/replica"
)

// SimpleCheck creates a simple health check that always returns healthy
func SimpleCheck(name string) Check {
	return Check{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now(),
	}
}

// ReplicaCheck reports the monitor's last view of role. An offline primary
// is unhealthy; an offline secondary only degrades the service because reads
// fall back to the primary.
func ReplicaCheck(m *Monitor, role replica.Role) CheckFunc {
	return func() Check {
		h := m.Health(role)
		info := m.Probe(role)

		check := Check{
			Name: string(role),
			Details: map[string]any{
				"online":               h.Online,
				"responseTime":         h.ResponseTime,
				"connections":          h.Connections,
				"consecutive_failures": info.ConsecutiveFailures,
			},
			LastChecked: info.LastProbe,
		}

		switch {
		case h.Online:
			check.Status = StatusHealthy
			check.Message = "Connected"
		case role == replica.Primary:
			check.Status = StatusUnhealthy
			check.Message = "Primary database unreachable"
		default:
			check.Status = StatusDegraded
			check.Message = "Secondary database unreachable, reads served by primary"
		}
		if info.LastError != "" {
			check.Details["last_error"] = info.LastError
		}

		return check
	}
}

// SyncState is what SyncCheck needs from the last consistency cycle.
type SyncState struct {
	Ran        bool
	FinishedAt time.Time
	Divergent  []string
	Errored    []string
}

// SyncCheck degrades the service while the last consistency cycle found
// divergent tables or could not compare some of them.
func SyncCheck(state func() SyncState) CheckFunc {
	return func() Check {
		s := state()
		check := Check{
			Name:    "sync",
			Status:  StatusHealthy,
			Details: make(map[string]any),
		}

		if !s.Ran {
			check.Message = "No consistency check has run yet"
			return check
		}
		check.LastChecked = s.FinishedAt

		divergent := append([]string(nil), s.Divergent...)
		sort.Strings(divergent)
		check.Details["divergent_tables"] = divergent
		check.Details["errored_tables"] = s.Errored

		switch {
		case len(divergent) > 0:
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("%d table(s) out of sync", len(divergent))
		case len(s.Errored) > 0:
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("%d table(s) could not be compared", len(s.Errored))
		default:
			check.Message = "Replicas synchronized"
		}
		return check
	}
}

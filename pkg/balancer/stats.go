package balancer

import (
	"time"

	"github.com/dd0wney/dualdb/pkg/replica"
)

// DefaultHistorySize is the number of response-time samples kept.
const DefaultHistorySize = 100

// HistoryEntry records one query attempt.
type HistoryEntry struct {
	Timestamp    time.Time    `json:"timestamp"`
	ResponseTime int64        `json:"responseTime"`
	Pool         replica.Role `json:"pool"`
	Success      bool         `json:"success"`
	Failover     bool         `json:"failover,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Stats is a snapshot of the router's counters.
type Stats struct {
	ReadOperations      int64          `json:"readOperations"`
	WriteOperations     int64          `json:"writeOperations"`
	FailoverCount       int64          `json:"failoverCount"`
	LastFailover        *time.Time     `json:"lastFailover,omitempty"`
	TotalRequests       int64          `json:"totalRequests"`
	AvgResponseTime     float64        `json:"avgResponseTime"`
	ResponseTimeHistory []HistoryEntry `json:"responseTimeHistory"`
}

// history is a fixed-capacity ring of entries with a running sum of
// response times.
type history struct {
	buf   []HistoryEntry
	start int
	n     int
	sum   int64
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &history{buf: make([]HistoryEntry, capacity)}
}

func (h *history) push(e HistoryEntry) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = e
		h.n++
	} else {
		h.sum -= h.buf[h.start].ResponseTime
		h.buf[h.start] = e
		h.start = (h.start + 1) % len(h.buf)
	}
	h.sum += e.ResponseTime
}

func (h *history) mean() float64 {
	if h.n == 0 {
		return 0
	}
	return float64(h.sum) / float64(h.n)
}

// entries returns the samples oldest first.
func (h *history) entries() []HistoryEntry {
	out := make([]HistoryEntry, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *history) reset() {
	clear(h.buf)
	h.start, h.n, h.sum = 0, 0, 0
}

// counters is the mutable state behind Stats.
type counters struct {
	reads        int64
	writes       int64
	failovers    int64
	lastFailover time.Time
	total        int64
	avg          float64
	history      *history
}

func (c *counters) record(e HistoryEntry) {
	c.history.push(e)
	c.avg = c.history.mean()
}

func (c *counters) snapshot() Stats {
	s := Stats{
		ReadOperations:      c.reads,
		WriteOperations:     c.writes,
		FailoverCount:       c.failovers,
		TotalRequests:       c.total,
		AvgResponseTime:     c.avg,
		ResponseTimeHistory: c.history.entries(),
	}
	if !c.lastFailover.IsZero() {
		t := c.lastFailover
		s.LastFailover = &t
	}
	return s
}

func (c *counters) reset() {
	c.reads, c.writes, c.failovers, c.total, c.avg = 0, 0, 0, 0, 0
	c.lastFailover = time.Time{}
	c.history.reset()
}

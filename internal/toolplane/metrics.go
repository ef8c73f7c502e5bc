package toolplane

import (
	"math"
	"sort"
	"sync"
	"time"
)

// ExecutionRecord is one completed tool attempt, kept for the rolling
// window used by both the metrics collector and the doom-loop / recovery
// history lookups.
type ExecutionRecord struct {
	Tool       string
	Args       string // canonical JSON, used by the doom-loop guard
	Success    bool
	DurationMs int64
	Error      string
	At         time.Time
}

// Aggregate summarizes the records for one tool within the rolling window.
type Aggregate struct {
	Total            int
	Success          int
	Failure          int
	SuccessRate      float64
	MinMs            int64
	MaxMs            int64
	AvgMs            float64
	P50Ms            int64
	P95Ms            int64
	P99Ms            int64
	RecentFailures60 int
	LastCalledAt     time.Time
}

// MetricsCollector keeps a rolling per-tool window of execution records,
// bounded by both age and count, and computes percentile aggregates on
// demand.
type MetricsCollector struct {
	mu         sync.Mutex
	window     time.Duration
	maxRecords int
	records    map[string][]ExecutionRecord
	now        func() time.Time
}

// NewMetricsCollector creates a collector with the given window (default 1h)
// and per-tool record cap (default 1000).
func NewMetricsCollector(window time.Duration, maxRecords int) *MetricsCollector {
	if window <= 0 {
		window = time.Hour
	}
	if maxRecords <= 0 {
		maxRecords = 1000
	}
	return &MetricsCollector{
		window:     window,
		maxRecords: maxRecords,
		records:    make(map[string][]ExecutionRecord),
		now:        time.Now,
	}
}

// Record appends an execution outcome and evicts entries that fall outside
// the window or exceed the per-tool cap. args is the canonical-JSON
// arguments for the attempt, used by the doom-loop guard.
func (m *MetricsCollector) Record(tool, args string, success bool, durationMs int64, errMsg string) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec := ExecutionRecord{Tool: tool, Args: args, Success: success, DurationMs: durationMs, Error: errMsg, At: now}
	recs := append(m.records[tool], rec)
	recs = evict(recs, now, m.window, m.maxRecords)
	m.records[tool] = recs
}

func evict(recs []ExecutionRecord, now time.Time, window time.Duration, maxRecords int) []ExecutionRecord {
	cutoff := now.Add(-window)
	i := 0
	for i < len(recs) && recs[i].At.Before(cutoff) {
		i++
	}
	recs = recs[i:]
	if len(recs) > maxRecords {
		recs = recs[len(recs)-maxRecords:]
	}
	return recs
}

// History returns a copy of the current in-window records for a tool, most
// recent last, for the recovery policy's circuit-breaking and doom-loop
// guard to inspect.
func (m *MetricsCollector) History(tool string) []ExecutionRecord {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := evict(m.records[tool], now, m.window, m.maxRecords)
	m.records[tool] = recs

	out := make([]ExecutionRecord, len(recs))
	copy(out, recs)
	return out
}

// Snapshot computes the aggregate for a tool over its current window.
func (m *MetricsCollector) Snapshot(tool string) Aggregate {
	recs := m.History(tool)
	if len(recs) == 0 {
		return Aggregate{}
	}

	now := m.now()
	agg := Aggregate{Total: len(recs)}
	durations := make([]int64, 0, len(recs))

	var sum int64
	for _, r := range recs {
		if r.Success {
			agg.Success++
		} else {
			agg.Failure++
			if now.Sub(r.At) <= 60*time.Second {
				agg.RecentFailures60++
			}
		}
		durations = append(durations, r.DurationMs)
		sum += r.DurationMs
		if r.At.After(agg.LastCalledAt) {
			agg.LastCalledAt = r.At
		}
	}

	agg.SuccessRate = float64(agg.Success) / float64(agg.Total)
	agg.AvgMs = float64(sum) / float64(agg.Total)

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	agg.MinMs = durations[0]
	agg.MaxMs = durations[len(durations)-1]
	agg.P50Ms = percentile(durations, 50)
	agg.P95Ms = percentile(durations, 95)
	agg.P99Ms = percentile(durations, 99)

	return agg
}

// percentile implements sorted[ceil(p/100 * n) - 1] on an already-sorted slice.
func percentile(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Tools returns the names of every tool with records in the window.
func (m *MetricsCollector) Tools() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

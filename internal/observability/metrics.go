package observability

import "sync"

// Metrics provides basic in-memory counters for pipeline activity.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

// Counter names recorded by the pipeline.
const (
	MetricPagesFetched    = "pages_fetched"
	MetricPagesFailed     = "pages_failed"
	MetricTicketsFetched  = "tickets_fetched"
	MetricTicketsDeduped  = "tickets_deduped"
	MetricRunsStarted     = "runs_started"
	MetricRunsSucceeded   = "runs_succeeded"
	MetricRunsFailed      = "runs_failed"
	MetricPhasesSucceeded = "phases_succeeded"
	MetricPhasesFailed    = "phases_failed"
	MetricPhasesSkipped   = "phases_skipped"
	MetricCacheHits       = "cache_hits"
	MetricCacheMisses     = "cache_misses"
)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[string]int64)}
}

// Inc increments a named counter.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// Add increments a named counter by delta.
func (m *Metrics) Add(name string, delta int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += delta
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

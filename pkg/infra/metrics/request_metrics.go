// Package metrics counts engine API calls for diagnostics.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// RequestMetrics tracks engine call counts, latency and failures by error
// kind. The totals are lock-free; the per-kind map is guarded by mu.
type RequestMetrics struct {
	totalRequests  atomic.Int64
	totalErrors    atomic.Int64
	totalLatencyMs atomic.Int64

	mu     sync.Mutex
	byKind map[string]int64
}

func NewRequestMetrics() *RequestMetrics {
	return &RequestMetrics{byKind: make(map[string]int64)}
}

// Record records a finished call. An empty kind means success.
func (m *RequestMetrics) Record(latency time.Duration, kind string) {
	m.totalRequests.Add(1)
	m.totalLatencyMs.Add(latency.Milliseconds())
	if kind == "" {
		return
	}
	m.totalErrors.Add(1)
	m.mu.Lock()
	m.byKind[kind]++
	m.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the counters.
func (m *RequestMetrics) Snapshot() RequestSnapshot {
	total := m.totalRequests.Load()
	errs := m.totalErrors.Load()
	latencyMs := m.totalLatencyMs.Load()

	snap := RequestSnapshot{
		TotalRequests: total,
		TotalErrors:   errs,
		ErrorsByKind:  make(map[string]int64),
	}
	if total > 0 {
		snap.AvgLatencyMs = float64(latencyMs) / float64(total)
		snap.ErrorRate = float64(errs) / float64(total)
	}

	m.mu.Lock()
	for k, v := range m.byKind {
		snap.ErrorsByKind[k] = v
	}
	m.mu.Unlock()
	return snap
}

type RequestSnapshot struct {
	TotalRequests int64
	TotalErrors   int64
	AvgLatencyMs  float64
	ErrorRate     float64
	ErrorsByKind  map[string]int64
}

// Kinds lists the error kinds seen, sorted.
func (s RequestSnapshot) Kinds() []string {
	kinds := make([]string, 0, len(s.ErrorsByKind))
	for k := range s.ErrorsByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

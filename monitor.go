package raffle

import (
	"sync"
	"sync/atomic"
	"time"
)

// AllocationMetrics is a point-in-time copy of the allocation counters
type AllocationMetrics struct {
	Materializations int64 `json:"materializations"` // Category materialization passes
	Assignments      int64 `json:"assignments"`      // Ticket numbers handed out
	ShortfallUnits   int64 `json:"shortfall_units"`  // Units dropped because the pool ran out
	TruncatedPasses  int64 `json:"truncated_passes"` // Passes with a non-zero shortfall
	Releases         int64 `json:"releases"`         // Ticket numbers returned to the pool
	Rebalances       int64 `json:"rebalances"`       // Rebalances that changed quantities
	IgnoredEdits     int64 `json:"ignored_edits"`    // Edits rejected by the fail-silent policy
	Notifications    int64 `json:"notifications"`    // Published change notifications
	TotalTime        int64 `json:"total_time"`       // Materialization time (ns)
	AverageTime      int64 `json:"average_time"`     // Average materialization time (ns)
	StartTime        int64 `json:"start_time"`       // Unix nanos of the last reset
	LastUpdateTime   int64 `json:"last_update_time"` // Unix nanos of the last update
}

// TruncationRate returns the share of passes that were truncated, as a percentage
func (m *AllocationMetrics) TruncationRate() float64 {
	if m.Materializations == 0 {
		return 0.0
	}
	return float64(m.TruncatedPasses) / float64(m.Materializations) * 100.0
}

// AllocationMonitor collects allocation counters. A nil monitor records nothing.
type AllocationMonitor struct {
	materializations atomic.Int64
	assignments      atomic.Int64
	shortfallUnits   atomic.Int64
	truncatedPasses  atomic.Int64
	releases         atomic.Int64
	rebalances       atomic.Int64
	ignoredEdits     atomic.Int64
	notifications    atomic.Int64
	totalTime        atomic.Int64
	startTime        atomic.Int64
	lastUpdateTime   atomic.Int64

	mu      sync.RWMutex
	enabled bool
}

// NewAllocationMonitor creates an enabled monitor
func NewAllocationMonitor() *AllocationMonitor {
	m := &AllocationMonitor{enabled: true}
	m.Reset()
	return m
}

// Enable turns recording on
func (m *AllocationMonitor) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = true
}

// Disable turns recording off
func (m *AllocationMonitor) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
}

// IsEnabled reports whether the monitor records
func (m *AllocationMonitor) IsEnabled() bool {
	if m == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.enabled
}

// RecordMaterialization records one category materialization pass
func (m *AllocationMonitor) RecordMaterialization(generated, shortfall int, duration time.Duration) {
	if !m.IsEnabled() {
		return
	}

	m.materializations.Add(1)
	m.assignments.Add(int64(generated))
	if shortfall > 0 {
		m.shortfallUnits.Add(int64(shortfall))
		m.truncatedPasses.Add(1)
	}
	m.totalTime.Add(int64(duration))
	m.touch()
}

// RecordRelease records numbers returned to the pool
func (m *AllocationMonitor) RecordRelease(count int) {
	if !m.IsEnabled() {
		return
	}

	m.releases.Add(int64(count))
	m.touch()
}

// RecordRebalance records a rebalance that changed quantities
func (m *AllocationMonitor) RecordRebalance() {
	if !m.IsEnabled() {
		return
	}

	m.rebalances.Add(1)
	m.touch()
}

// RecordIgnoredEdit records an edit dropped by input validation
func (m *AllocationMonitor) RecordIgnoredEdit() {
	if !m.IsEnabled() {
		return
	}

	m.ignoredEdits.Add(1)
	m.touch()
}

// RecordNotification records a published change notification
func (m *AllocationMonitor) RecordNotification() {
	if !m.IsEnabled() {
		return
	}

	m.notifications.Add(1)
	m.touch()
}

func (m *AllocationMonitor) touch() {
	m.lastUpdateTime.Store(time.Now().UnixNano())
}

// GetMetrics returns a copy of the counters
func (m *AllocationMonitor) GetMetrics() AllocationMetrics {
	if m == nil {
		return AllocationMetrics{}
	}

	metrics := AllocationMetrics{
		Materializations: m.materializations.Load(),
		Assignments:      m.assignments.Load(),
		ShortfallUnits:   m.shortfallUnits.Load(),
		TruncatedPasses:  m.truncatedPasses.Load(),
		Releases:         m.releases.Load(),
		Rebalances:       m.rebalances.Load(),
		IgnoredEdits:     m.ignoredEdits.Load(),
		Notifications:    m.notifications.Load(),
		TotalTime:        m.totalTime.Load(),
		StartTime:        m.startTime.Load(),
		LastUpdateTime:   m.lastUpdateTime.Load(),
	}
	if metrics.Materializations > 0 {
		metrics.AverageTime = metrics.TotalTime / metrics.Materializations
	}
	return metrics
}

// Reset zeroes every counter
func (m *AllocationMonitor) Reset() {
	m.materializations.Store(0)
	m.assignments.Store(0)
	m.shortfallUnits.Store(0)
	m.truncatedPasses.Store(0)
	m.releases.Store(0)
	m.rebalances.Store(0)
	m.ignoredEdits.Store(0)
	m.notifications.Store(0)
	m.totalTime.Store(0)

	now := time.Now().UnixNano()
	m.startTime.Store(now)
	m.lastUpdateTime.Store(now)
}

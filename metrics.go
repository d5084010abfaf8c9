package raffle

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports an AllocationMonitor, and optionally the snapshot
// breaker, as Prometheus metrics. Values are read on every scrape.
type MetricsCollector struct {
	monitor *AllocationMonitor
	breaker *BreakerSnapshotStore

	materializations *prometheus.Desc
	assignments      *prometheus.Desc
	shortfallUnits   *prometheus.Desc
	truncatedPasses  *prometheus.Desc
	releases         *prometheus.Desc
	rebalances       *prometheus.Desc
	ignoredEdits     *prometheus.Desc
	notifications    *prometheus.Desc
	materializeTime  *prometheus.Desc
	breakerState     *prometheus.Desc
	breakerFailures  *prometheus.Desc
}

// NewMetricsCollector creates a collector for monitor. breaker may be nil.
func NewMetricsCollector(namespace string, monitor *AllocationMonitor, breaker *BreakerSnapshotStore) *MetricsCollector {
	if namespace == "" {
		namespace = "raffle"
	}

	desc := func(subsystem, name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil)
	}

	return &MetricsCollector{
		monitor: monitor,
		breaker: breaker,

		materializations: desc("allocation", "materializations_total", "Category materialization passes"),
		assignments:      desc("allocation", "assignments_total", "Ticket numbers handed out"),
		shortfallUnits:   desc("allocation", "shortfall_units_total", "Reward units dropped because the ticket pool ran out"),
		truncatedPasses:  desc("allocation", "truncated_passes_total", "Materialization passes with a non-zero shortfall"),
		releases:         desc("allocation", "releases_total", "Ticket numbers returned to the pool"),
		rebalances:       desc("allocation", "rebalances_total", "Pool-size changes that scaled category quantities"),
		ignoredEdits:     desc("engine", "ignored_edits_total", "Edits dropped by input validation"),
		notifications:    desc("engine", "notifications_total", "Published change notifications"),
		materializeTime:  desc("allocation", "materialize_seconds_total", "Time spent materializing categories"),
		breakerState:     desc("snapshot", "circuit_breaker_state", "Snapshot circuit breaker state (0=closed, 1=half-open, 2=open, -1=disabled)"),
		breakerFailures:  desc("snapshot", "circuit_breaker_failures", "Snapshot circuit breaker failures in the current interval"),
	}
}

// Describe implements prometheus.Collector
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.materializations
	ch <- c.assignments
	ch <- c.shortfallUnits
	ch <- c.truncatedPasses
	ch <- c.releases
	ch <- c.rebalances
	ch <- c.ignoredEdits
	ch <- c.notifications
	ch <- c.materializeTime
	if c.breaker != nil {
		ch <- c.breakerState
		ch <- c.breakerFailures
	}
}

// Collect implements prometheus.Collector
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.monitor.GetMetrics()

	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.materializations, m.Materializations)
	counter(c.assignments, m.Assignments)
	counter(c.shortfallUnits, m.ShortfallUnits)
	counter(c.truncatedPasses, m.TruncatedPasses)
	counter(c.releases, m.Releases)
	counter(c.rebalances, m.Rebalances)
	counter(c.ignoredEdits, m.IgnoredEdits)
	counter(c.notifications, m.Notifications)
	ch <- prometheus.MustNewConstMetric(c.materializeTime, prometheus.CounterValue, float64(m.TotalTime)/1e9)

	if c.breaker != nil {
		ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, stateToNumeric(c.breaker.State()))
		ch <- prometheus.MustNewConstMetric(c.breakerFailures, prometheus.GaugeValue, float64(c.breaker.Counts().TotalFailures))
	}
}

// Register adds the collector to reg, or to a fresh registry when reg is nil
func (c *MetricsCollector) Register(reg *prometheus.Registry) (*prometheus.Registry, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return reg, nil
}

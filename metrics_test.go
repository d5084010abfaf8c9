package raffle

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		m := mf.GetMetric()[0]
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			return m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestMetricsCollector(t *testing.T) {
	e := newTestEngine(t, 10)
	activate(e, CategoryTier1, 4, 1)
	activate(e, CategoryTier2, 6, 1)
	e.SetQuantity("tier9", 3)
	e.SetPoolSize(8)

	collector := NewMetricsCollector("", e.Monitor(), nil)
	reg, err := collector.Register(nil)
	require.NoError(t, err)

	m := e.Monitor().GetMetrics()
	assert.Equal(t, float64(m.Assignments), gatheredValue(t, reg, "raffle_allocation_assignments_total"))
	assert.Equal(t, float64(m.Materializations), gatheredValue(t, reg, "raffle_allocation_materializations_total"))
	assert.Equal(t, 1.0, gatheredValue(t, reg, "raffle_allocation_rebalances_total"))
	assert.Equal(t, 1.0, gatheredValue(t, reg, "raffle_engine_ignored_edits_total"))
	assert.Equal(t, float64(m.Notifications), gatheredValue(t, reg, "raffle_engine_notifications_total"))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		assert.NotContains(t, mf.GetName(), "circuit_breaker")
	}

	_, err = collector.Register(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestMetricsCollector_Breaker(t *testing.T) {
	saver := newMemorySaver()
	breaker := NewBreakerSnapshotStore(saver, testBreakerConfig(), nil)

	collector := NewMetricsCollector("draft", NewAllocationMonitor(), breaker)
	reg, err := collector.Register(prometheus.NewRegistry())
	require.NoError(t, err)

	assert.Equal(t, 0.0, gatheredValue(t, reg, "draft_snapshot_circuit_breaker_state"))

	saver.setErr(errors.New("down"))
	_ = breaker.Save(context.Background(), testSnapshot())
	assert.Equal(t, 1.0, gatheredValue(t, reg, "draft_snapshot_circuit_breaker_failures"))

	_ = breaker.Save(context.Background(), testSnapshot())
	assert.Equal(t, 2.0, gatheredValue(t, reg, "draft_snapshot_circuit_breaker_state"))
}

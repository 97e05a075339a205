package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ReadingOutcome("applied")
	m.ReadingOutcome(SkipManualMode)
	m.ReadingOutcome(SkipManualMode)
	m.CommandApplied()
	m.BroadcastResult(BroadcastDelivered)
	m.BroadcastResult(BroadcastDropped)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SensorReadings.WithLabelValues("applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SensorReadings.WithLabelValues(SkipManualMode)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperatorCommands))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues(BroadcastDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues(BroadcastDropped)))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReadingOutcome("applied")
		m.CommandApplied()
		m.BroadcastResult(BroadcastDelivered)
	})
}

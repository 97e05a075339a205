// Package metrics exposes prometheus instrumentation for the sync service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Skip reasons recorded on the sensor readings counter.
const (
	SkipNoSettings = "no_crop_settings"
	SkipManualMode = "manual_mode"
	SkipUnchanged  = "unchanged"
)

// Broadcast outcomes.
const (
	BroadcastDelivered = "delivered"
	BroadcastDropped   = "dropped"
)

// Metrics collects counters for the pump synchronization paths.
type Metrics struct {
	SensorReadings   *prometheus.CounterVec
	OperatorCommands prometheus.Counter
	Broadcasts       *prometheus.CounterVec
}

// New constructs the metric set and registers it on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SensorReadings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrisync",
			Name:      "sensor_readings_total",
			Help:      "Sensor readings processed, by outcome.",
		}, []string{"outcome"}),
		OperatorCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrisync",
			Name:      "operator_commands_total",
			Help:      "Operator pump commands applied.",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrisync",
			Name:      "broadcasts_total",
			Help:      "Status broadcasts attempted, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.SensorReadings, m.OperatorCommands, m.Broadcasts)
	return m
}

// ReadingOutcome increments the sensor readings counter for an outcome
// label ("applied" or one of the Skip* reasons). Nil-safe so the service
// can run without instrumentation in tests.
func (m *Metrics) ReadingOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SensorReadings.WithLabelValues(outcome).Inc()
}

// CommandApplied increments the operator command counter.
func (m *Metrics) CommandApplied() {
	if m == nil {
		return
	}
	m.OperatorCommands.Inc()
}

// BroadcastResult increments the broadcast counter for a result label.
func (m *Metrics) BroadcastResult(result string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(result).Inc()
}

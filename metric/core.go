package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric the bridge exports.
const Namespace = "ammbridge"

// Metrics holds process-level metrics that are not owned by a single
// component.
type Metrics struct {
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
	SimulationState    *prometheus.GaugeVec
}

// NewMetrics creates the core metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),
		NATSCircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "circuit_breaker",
			Help:      "Circuit breaker state (0=closed, 1=open)",
		}),
		SimulationState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "simulation",
			Name:      "state",
			Help:      "Current simulation run state, 1 for the active state",
		}, []string{"state"}),
	}
}

func (m *Metrics) mustRegister(r *prometheus.Registry) {
	r.MustRegister(
		m.NATSConnected,
		m.NATSReconnects,
		m.NATSCircuitBreaker,
		m.SimulationState,
	)
}

// RecordNATSStatus records the NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	if connected {
		m.NATSConnected.Set(1)
		return
	}
	m.NATSConnected.Set(0)
}

// RecordNATSReconnect counts one reconnection
func (m *Metrics) RecordNATSReconnect() {
	m.NATSReconnects.Inc()
}

// RecordCircuitBreaker records whether the circuit breaker is open
func (m *Metrics) RecordCircuitBreaker(open bool) {
	if open {
		m.NATSCircuitBreaker.Set(1)
		return
	}
	m.NATSCircuitBreaker.Set(0)
}

// RecordSimulationState marks state as the active run state.
func (m *Metrics) RecordSimulationState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SimulationState.WithLabelValues(s).Set(v)
	}
}

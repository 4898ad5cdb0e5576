package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rainerleuschke/tcp-bridge/metric"
)

type serverMetrics struct {
	clientsConnected *prometheus.GaugeVec
	connections      *prometheus.CounterVec
	linesReceived    prometheus.Counter
	linesTooLong     prometheus.Counter
}

// newMetrics returns nil when registry is nil.
func newMetrics(registry *metric.MetricsRegistry) (*serverMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &serverMetrics{
		clientsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "server",
			Name:      "clients_connected",
			Help:      "Connected clients by transport",
		}, []string{"transport"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Accepted connections by transport",
		}, []string{"transport"}),
		linesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "server",
			Name:      "lines_received_total",
			Help:      "Lines read from clients",
		}),
		linesTooLong: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "server",
			Name:      "lines_too_long_total",
			Help:      "Connections closed for exceeding the line limit",
		}),
	}

	if err := registry.RegisterGaugeVec("server", "clients_connected", m.clientsConnected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("server", "connections_total", m.connections); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("server", "lines_received_total", m.linesReceived); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("server", "lines_too_long_total", m.linesTooLong); err != nil {
		return nil, err
	}
	return m, nil
}

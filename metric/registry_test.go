package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainerleuschke/tcp-bridge/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())

	registry.CoreMetrics().RecordNATSStatus(true)
	names := gatheredNames(t, registry)
	assert.True(t, names["ammbridge_nats_connected"])
	assert.True(t, names["go_goroutines"])
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})
	require.NoError(t, registry.RegisterCounter("router", "test_counter", counter))
	counter.Inc()

	assert.True(t, gatheredNames(t, registry)["test_counter"])
	assert.Equal(t, 1.0, testutil.ToFloat64(counter))
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dup_total", Help: "dup"}, []string{"kind"})
	require.NoError(t, registry.RegisterCounterVec("router", "dup_total", vec))

	err := registry.RegisterCounterVec("router", "dup_total", vec)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	other := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "dup_total", Help: "dup"}, []string{"kind"})
	err = registry.RegisterCounterVec("server", "dup_total", other)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "g"})
	require.NoError(t, registry.RegisterGauge("server", "test_gauge", gauge))

	assert.True(t, registry.Unregister("server", "test_gauge"))
	assert.False(t, registry.Unregister("server", "test_gauge"))

	require.NoError(t, registry.RegisterGauge("server", "test_gauge", gauge))
}

func TestMetrics_RecordSimulationState(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	all := []string{"NOT RUNNING", "RUNNING", "PAUSED"}
	m.RecordSimulationState("RUNNING", all)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SimulationState.WithLabelValues("RUNNING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SimulationState.WithLabelValues("PAUSED")))

	m.RecordCircuitBreaker(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSCircuitBreaker))
	m.RecordNATSReconnect()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSReconnects))
}

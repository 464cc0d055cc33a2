package metric

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telebridge/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry)
	require.NotNil(t, registry.CoreMetrics())
	require.NotNil(t, registry.PrometheusRegistry())
}

func TestRegisterCollector(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test",
	})
	require.NoError(t, registry.RegisterCollector("gateway", "requests", counter))

	// Same key again is invalid
	err := registry.RegisterCollector("gateway", "requests", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegisterCollectorPrometheusConflict(t *testing.T) {
	registry := NewMetricsRegistry()

	a := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "test"})
	b := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "test"})

	require.NoError(t, registry.RegisterCollector("svc", "a", a))
	err := registry.RegisterCollector("svc", "b", b)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gone_total", Help: "test"})
	require.NoError(t, registry.RegisterCollector("svc", "gone", counter))

	assert.True(t, registry.Unregister("svc", "gone"))
	assert.False(t, registry.Unregister("svc", "gone"))

	// Key is free again after unregistration
	require.NoError(t, registry.RegisterCollector("svc", "gone", counter))
}

func TestHandlerServesCoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordReconnect()
	registry.CoreMetrics().RecordSample("raw")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	registry.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "telebridge_mqtt_reconnects_total 1"))
	assert.True(t, strings.Contains(body, `telebridge_ingest_samples_total{class="raw"} 1`))
}

func TestRecordHelpers(t *testing.T) {
	m := NewMetrics()

	// Exercise every helper; values are checked via testutil-free reads
	m.RecordBrokerStatus(true)
	m.RecordConnectionState(2)
	m.RecordReconnect()
	m.RecordPublishFailure()
	m.RecordSample("filtered")
	m.RecordMalformed()
	m.RecordUnhandled()
	m.RecordSeriesCount(3)
	m.RecordEvent("new_sample")
	m.RecordListenerPanic()
	m.RecordCommand("create_variable")

	assert.Equal(t, 1.0, testGaugeValue(t, m.BrokerConnected))
	assert.Equal(t, 2.0, testGaugeValue(t, m.ConnectionState))
	assert.Equal(t, 3.0, testGaugeValue(t, m.SeriesCount))
}

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

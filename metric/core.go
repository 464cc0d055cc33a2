// Package metric provides the Prometheus metrics registry and core bridge
// metrics shared by all Telebridge components.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all bridge-level metrics (not component-specific)
type Metrics struct {
	// Broker session metrics
	BrokerConnected  prometheus.Gauge
	ConnectionState  prometheus.Gauge
	Reconnects       prometheus.Counter
	PublishFailures  prometheus.Counter

	// Ingestion metrics
	SamplesIngested   *prometheus.CounterVec
	MalformedPayloads prometheus.Counter
	UnhandledTopics   prometheus.Counter
	SeriesCount       prometheus.Gauge

	// Event fan-out metrics
	EventsEmitted  *prometheus.CounterVec
	ListenerPanics prometheus.Counter

	// Outbound command metrics
	CommandsPublished *prometheus.CounterVec

	// Processing latency
	ProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all bridge metrics
func NewMetrics() *Metrics {
	return &Metrics{
		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "telebridge",
				Subsystem: "mqtt",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),

		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "telebridge",
				Subsystem: "mqtt",
				Name:      "connection_state",
				Help:      "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
			},
		),

		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "telebridge",
				Subsystem: "mqtt",
				Name:      "reconnects_total",
				Help:      "Total number of broker reconnections",
			},
		),

		PublishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "telebridge",
				Subsystem: "mqtt",
				Name:      "publish_failures_total",
				Help:      "Publishes that failed or timed out",
			},
		),

		SamplesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "telebridge",
				Subsystem: "ingest",
				Name:      "samples_total",
				Help:      "Samples appended to series windows",
			},
			[]string{"class"},
		),

		MalformedPayloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "telebridge",
				Subsystem: "ingest",
				Name:      "malformed_payloads_total",
				Help:      "Inbound payloads discarded as malformed",
			},
		),

		UnhandledTopics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "telebridge",
				Subsystem: "ingest",
				Name:      "unhandled_topics_total",
				Help:      "Inbound messages on topics outside the grammar",
			},
		),

		SeriesCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "telebridge",
				Subsystem: "store",
				Name:      "series",
				Help:      "Number of live series in the store",
			},
		),

		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "telebridge",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Events delivered to listeners",
			},
			[]string{"kind"},
		),

		ListenerPanics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "telebridge",
				Subsystem: "events",
				Name:      "listener_panics_total",
				Help:      "Listener callbacks that panicked during delivery",
			},
		),

		CommandsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "telebridge",
				Subsystem: "commands",
				Name:      "published_total",
				Help:      "Control commands published to the broker",
			},
			[]string{"command"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "telebridge",
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Inbound message processing duration in seconds",
				Buckets:   []float64{.000005, .00001, .00005, .0001, .0005, .001, .005, .01},
			},
			[]string{"class"},
		),
	}
}

// RecordBrokerStatus updates the broker connection gauge
func (m *Metrics) RecordBrokerStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.BrokerConnected.Set(value)
}

// RecordConnectionState updates the connection state gauge
func (m *Metrics) RecordConnectionState(state int) {
	m.ConnectionState.Set(float64(state))
}

// RecordReconnect increments the reconnection counter
func (m *Metrics) RecordReconnect() {
	m.Reconnects.Inc()
}

// RecordPublishFailure increments the publish failure counter
func (m *Metrics) RecordPublishFailure() {
	m.PublishFailures.Inc()
}

// RecordSample increments the ingested sample counter for a message class
func (m *Metrics) RecordSample(class string) {
	m.SamplesIngested.WithLabelValues(class).Inc()
}

// RecordMalformed increments the malformed payload counter
func (m *Metrics) RecordMalformed() {
	m.MalformedPayloads.Inc()
}

// RecordUnhandled increments the unhandled topic counter
func (m *Metrics) RecordUnhandled() {
	m.UnhandledTopics.Inc()
}

// RecordSeriesCount updates the live series gauge
func (m *Metrics) RecordSeriesCount(n int) {
	m.SeriesCount.Set(float64(n))
}

// RecordEvent increments the emitted event counter for a kind
func (m *Metrics) RecordEvent(kind string) {
	m.EventsEmitted.WithLabelValues(kind).Inc()
}

// RecordListenerPanic increments the listener panic counter
func (m *Metrics) RecordListenerPanic() {
	m.ListenerPanics.Inc()
}

// RecordCommand increments the published command counter
func (m *Metrics) RecordCommand(command string) {
	m.CommandsPublished.WithLabelValues(command).Inc()
}

// RecordProcessingDuration records inbound processing time for a message class
func (m *Metrics) RecordProcessingDuration(class string, duration time.Duration) {
	m.ProcessingDuration.WithLabelValues(class).Observe(duration.Seconds())
}

// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsDispatched tracks reducer events applied, by event kind.
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_dispatched_total",
			Help: "Total chat response events applied by the reducer",
		},
		[]string{"kind"},
	)

	// ProtocolAnomalies tracks non-fatal protocol anomalies, by kind.
	ProtocolAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_protocol_anomalies_total",
			Help: "Non-fatal protocol anomalies observed while applying events",
		},
		[]string{"kind"},
	)

	// IntegrityViolations tracks fatal contract violations during dispatch.
	IntegrityViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_integrity_violations_total",
			Help: "Contract violations that aborted an in-flight stream",
		},
	)

	// StreamsActive tracks the number of conversations currently streaming.
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_streams_active",
			Help: "Number of conversations with an in-flight response stream",
		},
	)

	// StreamDuration tracks time from send to stream close.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_stream_duration_seconds",
			Help:    "Duration of response streams from send to close",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"status"},
	)

	// SendsTotal tracks user message sends.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sends_total",
			Help: "Total user message sends",
		},
		[]string{"status"},
	)

	// ConversationsActive tracks conversations held by the entity store.
	ConversationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_conversations_active",
			Help: "Number of conversations in the entity store",
		},
	)

	// PersistWrites tracks snapshot writes that reached the adapter.
	PersistWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_persist_writes_total",
			Help: "Snapshot writes performed by the persistence writer",
		},
		[]string{"status"},
	)

	// PersistCoalesced tracks snapshot notifications absorbed by debouncing.
	PersistCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_persist_coalesced_total",
			Help: "Snapshot notifications coalesced into a pending write",
		},
	)
)

// RecordEvent records a dispatched event.
func RecordEvent(kind string) {
	EventsDispatched.WithLabelValues(kind).Inc()
}

// RecordAnomaly records a non-fatal protocol anomaly.
func RecordAnomaly(kind string) {
	ProtocolAnomalies.WithLabelValues(kind).Inc()
}

// RecordStream records a completed stream.
func RecordStream(status string, seconds float64) {
	StreamDuration.WithLabelValues(status).Observe(seconds)
}

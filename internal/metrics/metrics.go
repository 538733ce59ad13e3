// Package metrics provides Prometheus metrics for GeoWatch. It tracks event
// throughput, alert generation and notification delivery to help identify
// pipeline bottlenecks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "geowatch"
)

// Event metrics track the ingestion and processing pipeline.
var (
	// EventsReceivedTotal counts events accepted into the queue.
	EventsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of events accepted into the monitor queue",
		},
	)

	// EventsProcessedTotal counts events handled by the consumer loop.
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of events processed by the consumer loop",
		},
		[]string{"result"}, // result: ok, error
	)

	// EventProcessingLatency measures time to process a single event.
	EventProcessingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_latency_seconds",
			Help:      "Time to score, evaluate and dispatch a single event in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// QueueDepth tracks the current number of buffered events.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of events buffered in the monitor queue",
		},
	)
)

// Scoring and alert metrics.
var (
	// ThreatScores observes the distribution of computed threat scores.
	ThreatScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "threat_score",
			Help:      "Distribution of computed total threat scores",
			Buckets:   []float64{5, 10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 95, 100},
		},
	)

	// AlertsGeneratedTotal counts alerts produced, by type and severity.
	AlertsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_generated_total",
			Help:      "Total number of alerts generated",
		},
		[]string{"type", "severity"},
	)

	// AlertsSuppressedTotal counts alerts whose dispatch was suppressed by
	// the deduplication window.
	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Total number of alert dispatches suppressed by deduplication",
		},
		[]string{"type"},
	)
)

// Notification metrics track delivery per channel.
var (
	// NotificationsSentTotal counts channel delivery attempts by outcome.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of notification channel deliveries",
		},
		[]string{"channel", "status"}, // status: success, failure
	)

	// DispatchLatency measures time to dispatch one alert across all of
	// its channels.
	DispatchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Time to dispatch an alert across all requested channels in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsink_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportsink_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Ingestion metrics
	IngestAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportsink_ingest_accepted_total",
			Help: "Total number of envelopes accepted into the queue",
		},
	)

	IngestRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsink_ingest_rejected_total",
			Help: "Total number of rejected submissions",
		},
		[]string{"reason"}, // reason: unauthorized, validation, overload, canceled, shutdown
	)

	IngestItemsPerEnvelope = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reportsink_ingest_items_per_envelope",
			Help:    "Number of items carried by accepted envelopes",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportsink_queue_depth",
			Help: "Current number of envelopes buffered in the ingestion queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportsink_queue_capacity",
			Help: "Capacity of the ingestion queue",
		},
	)

	// Persistence metrics
	PersistedEnvelopesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportsink_persisted_envelopes_total",
			Help: "Total number of envelopes persisted by the worker",
		},
	)

	PersistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportsink_persist_failures_total",
			Help: "Total number of failed persist attempts",
		},
	)

	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reportsink_persist_duration_seconds",
			Help:    "Time taken to persist one envelope with its items",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Export metrics
	ExportBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsink_export_bytes_total",
			Help: "Total bytes rendered by the export formatter",
		},
		[]string{"format"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsink_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

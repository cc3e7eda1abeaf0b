package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used with MessagesDropped.
const (
	ReasonEmpty        = "empty"
	ReasonInvalidJSON  = "invalid_json"
	ReasonUnrecognized = "unrecognized"
	ReasonNormalize    = "normalize"
)

// Record labels used with the store metrics.
const (
	RecordCommon       = "common"
	RecordTypeSpecific = "type_specific"
)

var (
	// Ingestion
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertstream_messages_received_total",
			Help: "Total number of messages received from sources",
		},
		[]string{"source"},
	)

	MessagesClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertstream_messages_classified_total",
			Help: "Total number of messages classified, by data type",
		},
		[]string{"data_type"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertstream_messages_dropped_total",
			Help: "Total number of messages dropped before storage",
		},
		[]string{"reason"},
	)

	ReceiveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertstream_receive_errors_total",
			Help: "Total number of source receive errors",
		},
		[]string{"source"},
	)

	// Storage
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertstream_store_errors_total",
			Help: "Total number of failed record writes",
		},
		[]string{"record"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertstream_store_duration_seconds",
			Help:    "Duration of record writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"record"},
	)

	DedupSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertstream_dedup_skipped_total",
			Help: "Total number of record writes skipped as duplicates",
		},
	)

	// Workers
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertstream_active_workers",
			Help: "Number of running source workers",
		},
	)

	LiveFeedDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertstream_livefeed_dropped_total",
			Help: "Total number of live feed envelopes dropped for slow observers",
		},
	)
)

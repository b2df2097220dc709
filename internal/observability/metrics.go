package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "videos_processed_total",
		Help:      "Total number of videos run through the pipeline",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recall",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"stage"})

	IdentifyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "identify_total",
		Help:      "Face identification results by outcome",
	}, []string{"outcome"})

	RendezvousOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "rendezvous_total",
		Help:      "Face task waits on the transcript signal by outcome",
	}, []string{"outcome"})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "enrollments_total",
		Help:      "Face enrollments by kind",
	}, []string{"kind"})

	HighlightsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "highlights_stored_total",
		Help:      "Highlights written by detection",
	}, []string{"action"})

	HighlightsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "highlights_expired_total",
		Help:      "Highlights removed by stale cleanup",
	})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recall",
		Name:      "search_duration_seconds",
		Help:      "Duration of memory search queries",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recall",
		Name:      "queue_depth",
		Help:      "Number of pending video jobs in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recall",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	ExternalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "external_calls_total",
		Help:      "Calls to model APIs by operation and outcome",
	}, []string{"op", "outcome"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "recall",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

// Package metrics defines the Prometheus metrics exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediavault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Search metrics
var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_searches_total",
			Help: "Total number of catalog searches",
		},
		[]string{"mode", "status"}, // mode: "paged", "unbounded"
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediavault_search_duration_seconds",
			Help:    "Catalog search duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"mode"},
	)

	MediaDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_media_deleted_total",
			Help: "Total number of catalog entries deleted by operators",
		},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_indexer_runs_total",
			Help: "Total number of index runs by final status",
		},
		[]string{"status"},
	)

	IndexerRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediavault_indexer_rejected_total",
			Help: "Index runs rejected because another run was active",
		},
	)

	IndexerItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_indexer_items_total",
			Help: "Messages processed by the indexer by outcome",
		},
		[]string{"outcome"}, // saved, duplicate, deleted, non_media, unsupported, error
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediavault_indexer_last_run_duration_seconds",
			Help: "Duration of the last index run in seconds",
		},
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediavault_indexer_last_run_timestamp",
			Help: "Unix timestamp of the last completed index run",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediavault_indexer_running",
			Help: "Whether an index run is in progress (1) or not (0)",
		},
	)

	IndexerRateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediavault_indexer_rate_limit_waits_total",
			Help: "Rate-limit responses seen by the indexer",
		},
		[]string{"call"}, // "source", "progress"
	)
)

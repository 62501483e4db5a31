// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestDocumentsTotal       *prometheus.CounterVec
	ingestRunsTotal            *prometheus.CounterVec
	ingestRunDurationSeconds   prometheus.Histogram
	summaryGroupsTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_documents_total",
				Help: "Total number of documents processed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Total number of finished ingestion runs, labeled by final status.",
			},
			[]string{"status"},
		)

		ingestRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_run_duration_seconds",
				Help:    "Histogram of end-to-end ingestion run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		summaryGroupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summary_groups_total",
				Help: "Total summary groups touched by rebuilds, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Document outcomes reported by the ingest runner.
const (
	OutcomeStored    = "stored"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// ObserveDocument increments the per-document counter.
func ObserveDocument(source, outcome string) {
	ingestDocumentsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRun records a finished run and its duration.
func ObserveRun(status string, duration time.Duration) {
	ingestRunsTotal.WithLabelValues(status).Inc()
	ingestRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveSummaryGroups adds to the rebuild group counters.
func ObserveSummaryGroups(upserted, skipped int) {
	if upserted > 0 {
		summaryGroupsTotal.WithLabelValues("upserted").Add(float64(upserted))
	}
	if skipped > 0 {
		summaryGroupsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	RecordsIngestedTotal *prometheus.CounterVec
	RecordsDroppedTotal  *prometheus.CounterVec
	EventsMergedTotal    *prometheus.CounterVec
	MergeConflictsTotal  prometheus.Counter
	QualityFlagsTotal    *prometheus.CounterVec
	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
	WatermarkAge         prometheus.Gauge
	AnomaliesFlagged     prometheus.Gauge
	TrendingTopics       *prometheus.GaugeVec
	EventsPruned         prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RecordsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_ingested_total",
				Help: "Raw records accepted from each source topic.",
			},
			[]string{"source"},
		),
		RecordsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_dropped_total",
				Help: "Raw records dropped before normalization, by reason.",
			},
			[]string{"source", "reason"},
		),
		EventsMergedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_merged_total",
				Help: "Events handled by the merge engine, by outcome (inserted, replaced, duplicate).",
			},
			[]string{"outcome"},
		),
		MergeConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merge_conflicts_total",
				Help: "Candidates excluded due to identity conflicts.",
			},
		),
		QualityFlagsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quality_flags_total",
				Help: "Quality gate outcomes by flag.",
			},
			[]string{"flag"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Pipeline runs by final status (success, failed, skipped).",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "Wall-clock duration of a full pipeline run.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		WatermarkAge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "merge_watermark_age_seconds",
				Help: "Age of the merge high watermark at the start of the last run.",
			},
		),
		AnomaliesFlagged: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "daily_aggregates_anomalous",
				Help: "Daily aggregate rows currently flagged as anomalous.",
			},
		),
		TrendingTopics: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trending_topics",
				Help: "Trend topic rows by status after the last recompute.",
			},
			[]string{"status"},
		),
		EventsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "events_pruned_total",
				Help: "Events removed by retention pruning.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of API cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of API cache misses.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RecordsIngestedTotal,
		m.RecordsDroppedTotal,
		m.EventsMergedTotal,
		m.MergeConflictsTotal,
		m.QualityFlagsTotal,
		m.RunsTotal,
		m.RunDuration,
		m.WatermarkAge,
		m.AnomaliesFlagged,
		m.TrendingTopics,
		m.EventsPruned,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

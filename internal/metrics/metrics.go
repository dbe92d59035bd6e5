// Package metrics exposes Prometheus collectors for the deadline pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineFetchesTotal       *prometheus.CounterVec
	pipelineCandidatesTotal    *prometheus.CounterVec
	pipelineReconcileTotal     *prometheus.CounterVec
	pipelineRunsTotal          *prometheus.CounterVec
	pipelineRunDurationSeconds *prometheus.HistogramVec
	pipelineRunActive          prometheus.Gauge
	pipelineUnmatchedNames     prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deadline_fetches_total",
				Help: "Total page/document fetches, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		pipelineCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deadline_candidates_total",
				Help: "Total deadline candidates produced, labeled by extractor.",
			},
			[]string{"extractor"},
		)

		pipelineReconcileTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deadline_reconcile_total",
				Help: "Total reconciliation decisions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deadline_runs_total",
				Help: "Total ingestion runs, labeled by kind and final status.",
			},
			[]string{"kind", "status"},
		)

		pipelineRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deadline_run_duration_seconds",
				Help:    "Histogram of run durations, labeled by kind.",
				Buckets: []float64{1, 5, 15, 60, 120, 300, 600, 900},
			},
			[]string{"kind"},
		)

		pipelineRunActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "deadline_run_active",
				Help: "1 while an ingestion run is in progress.",
			},
		)

		pipelineUnmatchedNames = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "deadline_unmatched_names_total",
				Help: "Total raw college names with no reference match.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(source, outcome string) {
	pipelineFetchesTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveCandidates counts candidates produced by an extractor.
func ObserveCandidates(extractor string, n int) {
	if n > 0 {
		pipelineCandidatesTotal.WithLabelValues(extractor).Add(float64(n))
	}
}

// ObserveReconcile records one reconciliation decision.
func ObserveReconcile(outcome string) {
	pipelineReconcileTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records the final status and duration of a run.
func ObserveRun(kind, status string, duration time.Duration) {
	pipelineRunsTotal.WithLabelValues(kind, status).Inc()
	pipelineRunDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetRunActive flips the active-run gauge.
func SetRunActive(active bool) {
	if active {
		pipelineRunActive.Set(1)
		return
	}
	pipelineRunActive.Set(0)
}

// ObserveUnmatchedName counts a name the matcher could not place.
func ObserveUnmatchedName() {
	pipelineUnmatchedNames.Inc()
}

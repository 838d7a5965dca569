// Package metrics exposes prometheus collectors for the attempt lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttemptsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Attempts started",
		},
	)

	AttemptsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_submitted_total",
			Help: "Attempts submitted, by trigger (manual or timer)",
		},
		[]string{"trigger"},
	)

	SubmitRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_submit_retries_total",
			Help: "Failed submissions that were scheduled for retry, by trigger",
		},
		[]string{"trigger"},
	)

	ManualGrades = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_manual_grades_total",
			Help: "Manual grades applied to essay and code answers",
		},
	)

	GradingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiz_grading_duration_seconds",
			Help:    "Time to grade and persist a submission",
			Buckets: prometheus.DefBuckets,
		},
	)

	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiz_live_sessions",
			Help: "Attempts currently held in memory",
		},
	)

	Results = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_results_total",
			Help: "Final results, by medal",
		},
		[]string{"medal"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	postsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_posts_created_total",
		Help: "Scheduled posts created, by generation mode.",
	}, []string{"mode"})

	postsReplayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_posts_replayed_total",
		Help: "Generation requests that hit an existing idempotency key.",
	}, []string{"mode"})

	conflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_conflicts_detected_total",
		Help: "Conflicts found by a detection pass.",
	}, []string{"type", "severity"})

	conflictsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_conflicts_recorded_total",
		Help: "Conflicts persisted after fingerprint dedupe.",
	}, []string{"type"})

	analyzerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_analyzer_runs_total",
		Help: "Optimal-time analyzer runs, by platform.",
	}, []string{"platform"})

	analyzerBuckets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_analyzer_buckets_scored_total",
		Help: "Day/hour buckets that met the sample floor and were scored.",
	}, []string{"platform"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_generation_duration_seconds",
		Help:    "Wall time of a schedule generation request.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
)

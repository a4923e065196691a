package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsStarted tracks jobs claimed by workers per job type
	JobsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_started_total",
			Help: "Total number of jobs started",
		},
		[]string{"type"},
	)

	// JobsCompleted tracks jobs that reached a terminal state
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"type", "status"},
	)

	// StageFailures tracks stage failures per stage and category
	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_failures_total",
			Help: "Total number of stage failures",
		},
		[]string{"stage", "category"},
	)

	// RetriesScheduled tracks retries scheduled per category
	RetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_retries_scheduled_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"category"},
	)

	// DeadLettersTotal tracks dead letter entries created per reason
	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dead_letters_total",
			Help: "Total number of dead letter entries created",
		},
		[]string{"reason"},
	)

	// StageDuration tracks wall time spent in each stage
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Stage processing duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"},
	)

	// ModelDowngrades tracks transcription model downgrades
	ModelDowngrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_model_downgrades_total",
			Help: "Total number of transcription model downgrades",
		},
		[]string{"from", "to"},
	)

	// SegmentsWritten tracks transcript segments persisted
	SegmentsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_segments_written_total",
			Help: "Total number of transcript segments persisted",
		},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)

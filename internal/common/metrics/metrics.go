package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	FlowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transform_flows_total",
			Help: "Transformation flows by final status and error code",
		},
		[]string{"status", "error_code"},
	)

	FlowStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transform_flow_stage_duration_seconds",
			Help:    "Duration of each orchestration stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limit decisions by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)

	AvatarResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatar_resolutions_total",
			Help: "Avatar resolutions by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Requests to the transformation provider by operation and status code",
		},
		[]string{"operation", "status"},
	)

	PollAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poll_attempts",
			Help:    "Status queries needed before a job reached a terminal state",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 30},
		},
		[]string{"outcome"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstream_jobs_started_total",
			Help: "Total number of background jobs started",
		},
		[]string{"kind"},
	)
	jobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstream_jobs_completed_total",
			Help: "Total number of jobs that completed successfully",
		},
		[]string{"kind"},
	)
	jobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstream_jobs_failed_total",
			Help: "Total number of jobs that failed or were cancelled",
		},
		[]string{"kind"},
	)
	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskstream_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"kind", "status"},
	)
	streamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskstream_stream_clients",
			Help: "Current number of connected task stream subscribers",
		},
	)
)

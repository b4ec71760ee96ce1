package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uiextract_jobs_processed_total",
		Help: "Total number of jobs processed, by status",
	}, []string{"status"})

	JobStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uiextract_job_stage_duration_seconds",
		Help:    "Duration of keyframe extraction pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesScannedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uiextract_frames_scanned_total",
		Help: "Total number of video frames scanned by the sampler",
	})

	KeyframesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uiextract_keyframes_saved_total",
		Help: "Total number of keyframes saved across all jobs",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "uiextract_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uiextract_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)

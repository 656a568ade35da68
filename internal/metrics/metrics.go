package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stride_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Job metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_jobs_total",
			Help: "Total number of batch jobs by final status",
		},
		[]string{"status"}, // status: completed, failed, rejected
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stride_job_duration_seconds",
			Help:    "Time taken to process one batch job",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	JobQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stride_job_queue_size",
			Help: "Current number of queued jobs",
		},
	)

	JobQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stride_job_queue_capacity",
			Help: "Capacity of the job queue",
		},
	)

	// Classification metrics
	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_files_total",
			Help: "Total number of event-log files classified",
		},
		[]string{"status"}, // status: processed, failed
	)

	RowsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stride_rows_dropped_total",
			Help: "Total number of rows dropped during cleaning",
		},
	)

	IntervalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stride_intervals_total",
			Help: "Total number of behaviour intervals produced",
		},
	)

	// Summary export metrics
	SummaryPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_summary_publish_total",
			Help: "Total number of file summaries published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	SummaryPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stride_summary_publish_duration_seconds",
			Help:    "Time taken to publish summaries to Kafka",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	SummaryPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stride_summary_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stride_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

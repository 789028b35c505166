package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConsumerJobsProcessed counts jobs handled successfully.
	ConsumerJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_job_consumer_processed_total",
			Help: "Total number of successfully processed index jobs",
		},
		[]string{"topic", "consumer_group"},
	)

	// ConsumerJobsFailed counts jobs that exhausted retries.
	ConsumerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_job_consumer_failed_total",
			Help: "Total number of index jobs that failed all retries (sent to DLQ or dropped)",
		},
		[]string{"topic", "consumer_group"},
	)

	// ConsumerJobsDuplicate counts jobs skipped by the idempotency guard.
	ConsumerJobsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_job_consumer_duplicate_total",
			Help: "Total number of duplicate index jobs skipped",
		},
		[]string{"consumer_group"},
	)

	// ConsumerProcessingDuration observes handler execution time.
	ConsumerProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchsync_job_consumer_duration_seconds",
			Help:    "Duration of index job processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic", "consumer_group"},
	)

	// ConsumerDLQPublished counts jobs sent to the dead-letter topic.
	ConsumerDLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_job_consumer_dlq_total",
			Help: "Total number of index jobs published to the dead-letter topic",
		},
		[]string{"topic", "consumer_group"},
	)

	// ProducerJobsPublished counts published jobs.
	ProducerJobsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_job_producer_published_total",
			Help: "Total number of index jobs published",
		},
		[]string{"topic"},
	)

	// ProducerPublishErrors counts publish failures.
	ProducerPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_job_producer_errors_total",
			Help: "Total number of index job publish errors",
		},
		[]string{"topic"},
	)
)

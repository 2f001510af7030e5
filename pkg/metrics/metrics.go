// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestionRecordsTotal tracks ingested source records by outcome
	IngestionRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "ingestion",
			Name:      "records_total",
			Help:      "Total number of ingested source records by outcome",
		},
		[]string{"source_system", "outcome"},
	)

	// IngestionBatchDuration tracks batch ingestion duration in seconds
	IngestionBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "ingestion",
			Name:      "batch_duration_seconds",
			Help:      "Duration of ingestion batches in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"source_system"},
	)

	// ResolverConflictsTotal tracks resolver conflicts by resolution
	ResolverConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "conflicts_total",
			Help:      "Total number of field conflicts by resolution",
		},
		[]string{"source_system", "resolution"},
	)

	// MergeExecutionsTotal tracks merge executions by status
	MergeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "executions_total",
			Help:      "Total number of merge executions by status",
		},
		[]string{"status"},
	)

	// MergeExecutionDuration tracks merge execution duration in seconds
	MergeExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "execution_duration_seconds",
			Help:      "Duration of merge executions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// MergeSessionsTotal tracks merge session transitions
	MergeSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "session_transitions_total",
			Help:      "Total number of merge session transitions by target state",
		},
		[]string{"state"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of Kafka messages published",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesConsumed tracks Kafka messages consumed
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of Kafka messages consumed",
		},
		[]string{"topic", "status"},
	)
)

// RecordIngestion records one ingested record and its conflicts
func RecordIngestion(sourceSystem, outcome string, resolutions []string) {
	IngestionRecordsTotal.WithLabelValues(sourceSystem, outcome).Inc()
	for _, resolution := range resolutions {
		ResolverConflictsTotal.WithLabelValues(sourceSystem, resolution).Inc()
	}
}

// RecordIngestionBatch records the duration of a batch
func RecordIngestionBatch(sourceSystem string, durationSeconds float64) {
	IngestionBatchDuration.WithLabelValues(sourceSystem).Observe(durationSeconds)
}

// RecordMergeExecution records a finished merge execution
func RecordMergeExecution(status string, durationSeconds float64) {
	MergeExecutionsTotal.WithLabelValues(status).Inc()
	MergeExecutionDuration.Observe(durationSeconds)
}

// RecordSessionTransition records a merge session entering a state
func RecordSessionTransition(state string) {
	MergeSessionsTotal.WithLabelValues(state).Inc()
}

// RecordKafkaPublish records a Kafka publish
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordKafkaConsume records a consumed Kafka message
func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}

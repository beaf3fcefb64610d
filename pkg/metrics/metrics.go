package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed tracks the total throughput of the relay
	// Labels allow filtering by status (sent/error) and job kind
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_processed_total",
		Help: "Total number of sync jobs processed by the relay service",
	}, []string{"status", "kind"})

	// BatchDuration measures how long it takes to process an entire batch
	// Use this to identify performance degradation in Postgres or RabbitMQ
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_batch_duration_seconds",
		Help:    "Duration of batch processing in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BatchSize tracks the number of jobs actually captured in each batch
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_batch_size",
		Help:    "Number of jobs processed per batch",
		Buckets: []float64{1, 10, 50, 100, 500, 1000},
	})

	// RabbitMQReconnections counts how many times the service had to restore the link
	RabbitMQReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_rabbitmq_reconnections_total",
		Help: "Total number of RabbitMQ reconnection attempts",
	})

	// HealthStatus provides a binary 0/1 signal for the service's health
	// 1 = Healthy, 0 = Unhealthy (Connection to RabbitMQ is down)
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_healthy",
		Help: "Current health status of the relay (1 for healthy, 0 for unhealthy)",
	})

	// OutboxBacklog tracks the number of sync jobs not yet handed to the broker
	// This is the primary indicator of analytical lag
	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_outbox_backlog",
		Help: "Current number of pending/processing jobs in the sync_jobb table",
	})

	// StaleClaimsReset counts jobs the janitor handed back after a relay died mid-batch
	StaleClaimsReset = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_stale_claims_reset_total",
		Help: "Total number of jobs reset from processing to pending by the janitor",
	})
)

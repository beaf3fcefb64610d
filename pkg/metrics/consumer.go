package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConsumerDuration tracks the end-to-end latency of one sync job inside the worker
	// We use larger buckets because Firebird 2.5 on HDDs can be slow
	ConsumerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "consumer_processing_duration_seconds",
		Help:    "Time taken to run a sync job from reception to Postgres commit",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status", "kind"}) // status: success, skipped, error, fatal

	// ConsumerMessages tracks the throughput and result of message consumption per shard
	ConsumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_messages_total",
		Help: "Total number of messages processed by the consumer",
	}, []string{"status", "shard"}) // status: success, fatal, transient

	// SyncSkipped counts jobs whose snapshot already had a receipt
	SyncSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saksstatistikk_sync_skipped_total",
		Help: "Sync jobs that found an existing receipt and wrote nothing",
	}, []string{"kind"})

	// SinkRows counts rows appended to the analytical sink
	SinkRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saksstatistikk_sink_rows_total",
		Help: "Rows written to the analytical sink",
	}, []string{"table"})
)

package jobs

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusError      Status = "error"
)

// RevertStrategy decides whether reverting a claimed job back to pending counts as an attempt
type RevertStrategy int

const (
	// StrategyInfraFailure reverts without charging an attempt (broker offline, shutdown)
	StrategyInfraFailure RevertStrategy = iota
	// StrategyBusinessFailure charges an attempt
	StrategyBusinessFailure
)

// Entry is a row of the sync_jobb outbox and the message body carried over the broker
type Entry struct {
	ID             int64     `db:"id" json:"id"`
	CorrelationID  string    `db:"correlation_id" json:"correlation_id"`
	Kind           Kind      `db:"kind" json:"kind"`
	Payload        int64     `db:"payload" json:"payload"`
	ConcurrencyKey int64     `db:"concurrency_key" json:"concurrency_key"`
	Status         Status    `db:"status" json:"-"`
	Attempts       int       `db:"attempts" json:"attempts"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Shard maps the concurrency key onto one of n broker queues. Jobs sharing a key always land on
// the same shard
func (e Entry) Shard(n int) int {
	if n <= 1 {
		return 0
	}
	s := e.ConcurrencyKey % int64(n)
	if s < 0 {
		s = -s
	}
	return int(s)
}

// RoutingKey is the topic routing key for the entry's shard
func (e Entry) RoutingKey(shards int) string {
	return ShardRoutingKey(e.Shard(shards))
}

func ShardRoutingKey(shard int) string {
	return fmt.Sprintf("saksstatistikk.sync.shard.%d", shard)
}

func ShardQueue(shard int) string {
	return fmt.Sprintf("saksstatistikk.sync.q.%d", shard)
}

// EstimateBytes approximates the serialized size of the entry
func (e Entry) EstimateBytes() int {
	return 96 + len(e.CorrelationID) + len(e.Kind)
}

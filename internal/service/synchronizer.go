package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/pkg/metrics"
)

const MaxBatchMemoryThresholdMB = 20

// Repository defines the contract for outbox data persistence
type Repository interface {
	FetchAndClaim(ctx context.Context, batchSize int) ([]jobs.Entry, error)
	MarkAsSent(ctx context.Context, id int64) error
	MarkAsError(ctx context.Context, id int64, errLog string) error
	MarkManyAsPending(ctx context.Context, ids []int64, note string, strategy jobs.RevertStrategy) error
}

// BrokerClient defines the contract for message publishing
type BrokerClient interface {
	Publish(ctx context.Context, routingKey string, entry jobs.Entry) error
}

// SyncService moves sync jobs from the outbox to the broker. Jobs land on the shard of their
// concurrency key so that one consumer sees every job of a case in enqueue order
type SyncService struct {
	repo   Repository
	broker BrokerClient
	shards int
	logger *slog.Logger
}

func NewSyncService(r Repository, b BrokerClient, shards int, l *slog.Logger) *SyncService {
	if shards < 1 {
		shards = 1
	}
	return &SyncService{
		repo:   r,
		broker: b,
		shards: shards,
		logger: l,
	}
}

// ProcessNextBatch captures and sends a batch of jobs to the broker
// It features instant responsiveness to shutdown signals and atomic batch recovery
func (s *SyncService) ProcessNextBatch(ctx context.Context, batchSize int) error {
	start := time.Now()

	entries, err := s.repo.FetchAndClaim(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("fetch failure: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	metrics.BatchSize.Observe(float64(len(entries)))

	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
		s.logger.Info("Batch cycle telemetry",
			"count", len(entries),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	var batchBytes int
	for _, e := range entries {
		batchBytes += e.EstimateBytes()
	}
	if batchMB := batchBytes / (1024 * 1024); batchMB > MaxBatchMemoryThresholdMB {
		s.logger.Warn("Heavy batch detected: memory pressure risk",
			"size_mb", batchMB,
			"threshold_mb", MaxBatchMemoryThresholdMB,
			"count", len(entries),
		)
	}

	for i, e := range entries {
		select {
		case <-ctx.Done():
			s.logger.Warn("Shutdown signal received. Reverting remaining jobs.")
			s.revert(entries, i, "graceful_shutdown", jobs.StrategyInfraFailure)
			return ctx.Err()
		default:
		}

		l := s.logger.With("correlation_id", e.CorrelationID, "kind", e.Kind)
		kind := string(e.Kind)

		// A kind this build cannot decode would poison every consumer
		if _, err := jobs.Decode(e); err != nil {
			l.Error("Refusing to publish undecodable job", "error", err)
			_ = s.repo.MarkAsError(ctx, e.ID, err.Error())
			metrics.MessagesProcessed.WithLabelValues("error", kind).Inc()
			continue
		}

		if err := s.broker.Publish(ctx, e.RoutingKey(s.shards), e); err != nil {
			l.Error("Broker publish failed, aborting batch", "error", err)
			s.revert(entries, i, "broker_offline", jobs.StrategyInfraFailure)
			metrics.MessagesProcessed.WithLabelValues("error", kind).Inc()
			return fmt.Errorf("broker failure: %w", err)
		}

		// Final DB Checkpoint
		if err := s.repo.MarkAsSent(ctx, e.ID); err != nil {
			l.Error("Job published but failed to update status in DB", "error", err)
			if i+1 < len(entries) {
				s.revert(entries, i+1, "db_checkpoint_failure", jobs.StrategyBusinessFailure)
			}
			metrics.MessagesProcessed.WithLabelValues("error", kind).Inc()
			return fmt.Errorf("db checkpoint failure: %w", err)
		}

		metrics.MessagesProcessed.WithLabelValues("sent", kind).Inc()
	}

	return nil
}

func (s *SyncService) revert(entries []jobs.Entry, from int, note string, strategy jobs.RevertStrategy) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ids := make([]int64, 0, len(entries)-from)
	for i := from; i < len(entries); i++ {
		ids = append(ids, entries[i].ID)
	}
	if err := s.repo.MarkManyAsPending(cleanupCtx, ids, note, strategy); err != nil {
		s.logger.Error("CRITICAL: Failed to revert jobs", "error", err, "count", len(ids), "reason", note)
	}
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/broker"
	"github.com/Guizzs26/go-saksstatistikk/internal/config"
	"github.com/Guizzs26/go-saksstatistikk/internal/db"
	"github.com/Guizzs26/go-saksstatistikk/internal/service"
	"github.com/Guizzs26/go-saksstatistikk/pkg/infra"
	"github.com/Guizzs26/go-saksstatistikk/pkg/metrics"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		slog.Error("Fatal error connecting to Postgres", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	janitorDone := make(chan struct{})
	go runMaintenance(ctx, postgres, cfg, janitorDone)
	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, "RELAY", logger)

	slog.Info("🚀 Sync Relay Service started", "pid", os.Getpid(), "shards", cfg.SyncShards)

	runMainLoop(ctx, postgres, cfg, janitorDone)
}

func runMainLoop(ctx context.Context, repo *db.PostgresRepository, cfg *config.Config, janitorDone chan struct{}) {
	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	var rabbitmq *broker.RabbitMQClient
	var syncService *service.SyncService

	for {
		select {
		case <-ctx.Done():
			slog.Info("👋 Shutting down main loop...")
			if rabbitmq != nil {
				rabbitmq.Close()
			}
			<-janitorDone
			slog.Info("✅ Shutdown complete")
			return
		default:
			// Make sure the broker link is alive, including the first connection at boot
			if rabbitmq == nil || !rabbitmq.IsHealthy() {
				if rabbitmq != nil {
					rabbitmq.Close()
					metrics.RabbitMQReconnections.Inc()
				}

				newRabbit, err := broker.NewRabbitMQClient(cfg.RabbitMQURL, cfg.SyncShards, slog.Default())
				if err != nil {
					wait := backoff.Next()
					slog.Error("RabbitMQ link failure, retrying", "wait", wait, "error", err)

					select {
					case <-time.After(wait):
						continue
					case <-ctx.Done():
						continue
					}
				}

				slog.Info("RabbitMQ link established 🚀")
				rabbitmq = newRabbit
				backoff.Reset()
				// Rebuild the service around the fresh client
				syncService = service.NewSyncService(repo, rabbitmq, cfg.SyncShards, slog.Default())
			}

			if err := syncService.ProcessNextBatch(ctx, cfg.BatchSize); err != nil {
				wait := backoff.Next()
				slog.Error("Batch processing error", "retry_in", wait, "error", err)

				select {
				case <-time.After(wait):
					continue // Keep backing off while it fails
				case <-ctx.Done():
					continue
				}
			}

			backoff.Reset()

			select {
			case <-time.After(cfg.PollInterval):
			case <-ctx.Done():
			}
		}
	}
}

func runMaintenance(ctx context.Context, repo *db.PostgresRepository, cfg *config.Config, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info("🧹 Janitor: Starting structural health checks")

			affected, err := repo.ResetStaleMessages(ctx, cfg.StaleProcessingMin)
			if err != nil {
				slog.Error("Janitor: Failed to reset stale jobs", "error", err)
			} else if affected > 0 {
				metrics.StaleClaimsReset.Add(float64(affected))
				slog.Warn("Janitor: Rescued stuck jobs", "count", affected)
			}

			backlog, err := repo.CountBacklog(ctx)
			if err != nil {
				slog.Error("Janitor: Failed to count backlog", "error", err)
			} else {
				metrics.OutboxBacklog.Set(float64(backlog))
			}

		case <-ctx.Done():
			slog.Info("🛑 Janitor: Stopping maintenance goroutine")
			return
		}
	}
}

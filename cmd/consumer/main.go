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
	"github.com/Guizzs26/go-saksstatistikk/internal/processor"
	"github.com/Guizzs26/go-saksstatistikk/internal/service"
	"github.com/Guizzs26/go-saksstatistikk/pkg/infra"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🔥 Sync consumer initializing...", "shards", cfg.SyncShards)

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("CRITICAL: Postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	firebird, err := db.NewFirebirdSink(cfg.FirebirdURL, logger)
	if err != nil {
		logger.Error("CRITICAL: Firebird connection failed", "error", err)
		os.Exit(1)
	}
	defer firebird.Close()

	handler := processor.NewSyncHandler(postgres, firebird, logger)
	feedback := service.NewFeedbackService(postgres, logger)

	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, "CONSUMER", logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Shutdown signal received")
			return
		default:
			consumer, err := broker.NewRabbitMQConsumer(cfg.RabbitMQURL, cfg.SyncShards, handler, feedback, logger)
			if err != nil {
				logger.Error("RabbitMQ connection failed, retrying...", "attempt", connBackoff.Attempts()+1, "error", err)
				connBackoff.Sleep(ctx)
				continue
			}

			connBackoff.Reset()
			logger.Info("✅ Connected to Broker. Listening for jobs...")

			if err := consumer.Listen(ctx); err != nil {
				logger.Error("⚠️ Consumer connection lost", "error", err)
			}

			consumer.Close()
		}
	}
}

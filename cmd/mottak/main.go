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
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/service"
	"github.com/Guizzs26/go-saksstatistikk/internal/skjerming"
	"github.com/Guizzs26/go-saksstatistikk/pkg/infra"
)

func main() {
	// Configuration & Logger Initialization
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	logger.Info("🔧 Initializing event intake...", "workers", cfg.MottakWorkers)

	// This context will be canceled when SIGINT (Ctrl+C) or SIGTERM (Docker stop) is received
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("FATAL: Failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	defer postgres.Close()

	if err := postgres.RunMigrations(ctx); err != nil {
		logger.Error("FATAL: Failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// No screening lookup service is wired in this deployment; the cache still bounds it
	checker := skjerming.NewCached(skjerming.Disabled{}, cfg.SkjermingTTL, cfg.SkjermingMaxEntries, logger)
	dispatcher := service.NewDispatcher(postgres, checker, logger)

	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, "MOTTAK", logger)

	handle := func(ctx context.Context, h models.Hendelse) error {
		_, err := dispatcher.Handle(ctx, h)
		return err
	}

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	for {
		consumer, err := broker.NewHendelseConsumer(cfg.RabbitMQURL, cfg.MottakWorkers, handle, logger)
		if err != nil {
			logger.Error("RabbitMQ connection failed, retrying...", "attempt", connBackoff.Attempts()+1, "error", err)
			if !connBackoff.Sleep(ctx) {
				break
			}
			continue
		}

		connBackoff.Reset()
		logger.Info("🚀 Event intake is running")

		if err := consumer.Listen(ctx); err != nil {
			logger.Error("⚠️ Consumer connection lost", "error", err)
		}
		consumer.Close()

		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("✅ Event intake shut down successfully.")
}

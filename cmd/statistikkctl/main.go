package main

import (
	"log/slog"
	"os"

	"github.com/Guizzs26/go-saksstatistikk/internal/config"
	"github.com/Guizzs26/go-saksstatistikk/pkg/infra"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	a := &app{cfg: cfg, logger: logger}
	defer a.close()

	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

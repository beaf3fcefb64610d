package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/config"
	"github.com/Guizzs26/go-saksstatistikk/internal/db"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/service"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
	"github.com/spf13/cobra"
)

type migrator interface {
	RunMigrations(ctx context.Context) error
}

// app holds what the commands share. store is connected on first use unless already set
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	migrator migrator
	closer   func()
}

func (a *app) connect(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	pg, err := db.NewPostgresRepository(ctx, a.cfg.DatabaseURL, a.logger)
	if err != nil {
		return err
	}
	a.store, a.migrator, a.closer = pg, pg, pg.Close
	return nil
}

func (a *app) close() {
	if a.closer != nil {
		a.closer()
	}
}

func (a *app) location() *time.Location {
	if a.cfg != nil && a.cfg.StatistikkTZ != nil {
		return a.cfg.StatistikkTZ
	}
	return time.UTC
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "statistikkctl",
		Short:         "Operate the case statistics pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.connect(cmd.Context())
		},
	}

	root.AddCommand(
		newMigrateCmd(a),
		newReplayCmd(a),
		newKvitteringerCmd(a),
		newTallCmd(a),
	)
	return root
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.migrator == nil {
				return fmt.Errorf("store does not support migrations")
			}
			return a.migrator.RunMigrations(cmd.Context())
		},
	}
}

func newReplayCmd(a *app) *cobra.Command {
	var fra, til string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Delete receipts delivered between two dates and enqueue the sync jobs again",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseWindow(fra, til, a.location())
			if err != nil {
				return err
			}
			res, err := service.NewReplay(a.store, a.logger).Replay(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"kvitteringer": res.Kvitteringer,
				"jobber":       len(res.Jobber),
			})
		},
	}
	cmd.Flags().StringVar(&fra, "fra", "", "first delivery date, YYYY-MM-DD")
	cmd.Flags().StringVar(&til, "til", "", "last delivery date, YYYY-MM-DD (inclusive)")
	_ = cmd.MarkFlagRequired("fra")
	_ = cmd.MarkFlagRequired("til")
	return cmd
}

func newKvitteringerCmd(a *app) *cobra.Command {
	var fra, til string
	cmd := &cobra.Command{
		Use:   "kvitteringer",
		Short: "List receipts delivered between two dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := parseWindow(fra, til, a.location())
			if err != nil {
				return err
			}
			list, err := service.NewReplay(a.store, a.logger).Delivered(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			if list == nil {
				list = []models.Kvittering{}
			}
			return writeJSON(cmd, list)
		},
	}
	cmd.Flags().StringVar(&fra, "fra", "", "first delivery date, YYYY-MM-DD")
	cmd.Flags().StringVar(&til, "til", "", "last delivery date, YYYY-MM-DD (inclusive)")
	_ = cmd.MarkFlagRequired("fra")
	_ = cmd.MarkFlagRequired("til")
	return cmd
}

type tallRapport struct {
	Daglig    models.DailyCounts `json:"daglig"`
	PerDag    []models.DayTotal  `json:"perDag"`
	Apne      []models.AgeBucket `json:"apneAlder"`
	Avsluttet []models.AgeBucket `json:"avsluttetAlder"`
}

func newTallCmd(a *app) *cobra.Command {
	var dager int
	cmd := &cobra.Command{
		Use:   "tall",
		Short: "Print the production steering figures as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := service.NewStatistikk(a.store, models.DefaultAgeBucketPolicy(), a.location())
			ctx := cmd.Context()

			var r tallRapport
			var err error
			if r.Daglig, err = s.DailyCounts(ctx, dager); err != nil {
				return err
			}
			if r.PerDag, err = s.BehandlingerPerDag(ctx, dager); err != nil {
				return err
			}
			if r.Apne, err = s.OpenAgeBuckets(ctx); err != nil {
				return err
			}
			if r.Avsluttet, err = s.ClosedAgeBuckets(ctx); err != nil {
				return err
			}
			return writeJSON(cmd, r)
		},
	}
	cmd.Flags().IntVar(&dager, "dager", 7, "trailing window in days")
	return cmd
}

// parseWindow turns two inclusive civil dates into the half-open instant range they cover
func parseWindow(fra, til string, loc *time.Location) (time.Time, time.Time, error) {
	from, err := models.ParseDate(fra)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := models.ParseDate(til)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, models.NewValidationError("til", "%s is before %s", til, fra)
	}
	return from.Start(loc), to.AddDays(1).Start(loc), nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

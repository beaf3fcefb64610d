package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
)

// Replay rebuilds analytical rows from the authoritative store. Deleting a receipt makes the next
// sync job for its target deliver again
type Replay struct {
	store  store.Store
	queue  JobQueue
	logger *slog.Logger
}

func NewReplay(s store.Store, logger *slog.Logger) *Replay {
	return &Replay{store: s, logger: logger}
}

type ReplayResultat struct {
	Kvitteringer int
	Jobber       []jobs.Job
}

// Delivered lists the receipts delivered in [from, to)
func (r *Replay) Delivered(ctx context.Context, from, to time.Time) ([]models.Kvittering, error) {
	if !from.Before(to) {
		return nil, models.NewValidationError("til", "must be after fra")
	}
	var out []models.Kvittering
	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListKvitteringer(ctx, from, to)
		return err
	})
	return out, err
}

// Replay deletes the receipts delivered in [from, to) and enqueues one exact sync job per deleted
// receipt, all in one transaction. Each job targets the case version or unit snapshot its receipt
// named, so superseded rows are rebuilt as they were delivered and not as the current state
func (r *Replay) Replay(ctx context.Context, from, to time.Time) (ReplayResultat, error) {
	if !from.Before(to) {
		return ReplayResultat{}, models.NewValidationError("til", "must be after fra")
	}

	var res ReplayResultat
	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		res = ReplayResultat{}
		deleted, err := tx.DeleteKvitteringer(ctx, from, to)
		if err != nil {
			return err
		}
		res.Kvitteringer = len(deleted)

		for _, k := range deleted {
			var j jobs.Job
			switch {
			case k.SakID != nil && k.SakVersjon != nil:
				j, err = r.queue.EnqueueCaseVersionSync(ctx, tx, *k.SakID, *k.SakVersjon)

			case k.BehandlingHistorikkID != nil:
				snap, serr := tx.GetSnapshot(ctx, *k.BehandlingHistorikkID)
				if serr != nil {
					return fmt.Errorf("replay receipt %d: %w", k.ID, serr)
				}
				b, berr := tx.GetBehandling(ctx, snap.BehandlingID)
				if berr != nil {
					return fmt.Errorf("replay receipt %d: %w", k.ID, berr)
				}
				j, err = r.queue.EnqueueSnapshotSync(ctx, tx, snap.ID, b.SakID)

			default:
				return fmt.Errorf("replay receipt %d: %w", k.ID, models.NewValidationError("kvittering", "names no target"))
			}
			if err != nil {
				return err
			}
			res.Jobber = append(res.Jobber, j)
		}
		return nil
	})
	if err != nil {
		return ReplayResultat{}, err
	}

	r.logger.Info("Replay scheduled",
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
		"receipts", res.Kvitteringer,
		"jobs", len(res.Jobber),
	)
	return res, nil
}

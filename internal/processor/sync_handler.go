package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/sink"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
	"github.com/Guizzs26/go-saksstatistikk/pkg/metrics"
)

// errSkipped reports a job whose snapshot was already delivered. It never leaves this package
var errSkipped = errors.New("already delivered")

// SyncHandler replicates committed snapshots into the analytical sink. A receipt per snapshot
// gates every write, so running a job again after its transaction committed is a no-op.
//
// The sink row is written before the transaction that stores the receipt commits. If that commit
// fails (lost connection, crash) the row is already in the sink while the job is retried, and the
// retry writes the same snapshot a second time. Sink rows are therefore at-least-once per snapshot;
// readers dedupe on SAK_ID+SAK_VERSJON and on BEHANDLING_HISTORIKK_ID
type SyncHandler struct {
	store  store.Store
	sink   sink.Sink
	logger *slog.Logger
}

var _ jobs.Handler = (*SyncHandler)(nil)

func NewSyncHandler(s store.Store, sk sink.Sink, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		store:  s,
		sink:   sk,
		logger: logger,
	}
}

// Handle runs one job record taken from the broker. The record is deleted in the same transaction
// that stores the receipt
func (h *SyncHandler) Handle(ctx context.Context, entry jobs.Entry) (err error) {
	start := time.Now()

	defer func() {
		status := "success"
		switch {
		case errors.Is(err, errSkipped):
			status = "skipped"
			metrics.SyncSkipped.WithLabelValues(string(entry.Kind)).Inc()
			err = nil
		case err != nil && models.IsFatal(err):
			status = "fatal"
		case err != nil:
			status = "error"
		}
		metrics.ConsumerDuration.WithLabelValues(status, string(entry.Kind)).Observe(time.Since(start).Seconds())
	}()

	job, err := jobs.Decode(entry)
	if err != nil {
		return err
	}
	return jobs.Dispatch(ctx, boundHandler{h: h, jobID: entry.ID, correlationID: entry.CorrelationID}, job)
}

func (h *SyncHandler) HandleSak(ctx context.Context, j jobs.SakSync) error {
	return ignoreSkipped(h.syncSak(ctx, 0, h.logger, j))
}

func (h *SyncHandler) HandleBehandling(ctx context.Context, j jobs.BehandlingSync) error {
	return ignoreSkipped(h.syncBehandling(ctx, 0, h.logger, j))
}

func (h *SyncHandler) HandleSakVersjon(ctx context.Context, j jobs.SakVersjonSync) error {
	return ignoreSkipped(h.syncSakVersjon(ctx, 0, h.logger, j))
}

func (h *SyncHandler) HandleSnapshot(ctx context.Context, j jobs.SnapshotSync) error {
	return ignoreSkipped(h.syncSnapshot(ctx, 0, h.logger, j))
}

func ignoreSkipped(err error) error {
	if errors.Is(err, errSkipped) {
		return nil
	}
	return err
}

// boundHandler carries the job record through jobs.Dispatch
type boundHandler struct {
	h             *SyncHandler
	jobID         int64
	correlationID string
}

func (b boundHandler) logger() *slog.Logger {
	return b.h.logger.With("correlation_id", b.correlationID)
}

func (b boundHandler) HandleSak(ctx context.Context, j jobs.SakSync) error {
	return b.h.syncSak(ctx, b.jobID, b.logger(), j)
}

func (b boundHandler) HandleBehandling(ctx context.Context, j jobs.BehandlingSync) error {
	return b.h.syncBehandling(ctx, b.jobID, b.logger(), j)
}

func (b boundHandler) HandleSakVersjon(ctx context.Context, j jobs.SakVersjonSync) error {
	return b.h.syncSakVersjon(ctx, b.jobID, b.logger(), j)
}

func (b boundHandler) HandleSnapshot(ctx context.Context, j jobs.SnapshotSync) error {
	return b.h.syncSnapshot(ctx, b.jobID, b.logger(), j)
}

func (h *SyncHandler) syncSak(ctx context.Context, jobID int64, l *slog.Logger, j jobs.SakSync) error {
	return h.syncCase(ctx, jobID, l.With("job", j.String()), j.ConcurrencyKey(),
		func(ctx context.Context, tx store.Tx) (models.Sak, error) {
			return tx.GetSak(ctx, j.SakID)
		})
}

func (h *SyncHandler) syncSakVersjon(ctx context.Context, jobID int64, l *slog.Logger, j jobs.SakVersjonSync) error {
	return h.syncCase(ctx, jobID, l.With("job", j.String()), j.ConcurrencyKey(),
		func(ctx context.Context, tx store.Tx) (models.Sak, error) {
			return tx.GetSakVersjon(ctx, j.SakID, j.Versjon)
		})
}

func (h *SyncHandler) syncBehandling(ctx context.Context, jobID int64, l *slog.Logger, j jobs.BehandlingSync) error {
	return h.syncUnit(ctx, jobID, l.With("job", j.String()), j.ConcurrencyKey(),
		func(ctx context.Context, tx store.Tx) (*models.Snapshot, error) {
			b, err := tx.GetBehandling(ctx, j.BehandlingID)
			if err != nil {
				return nil, err
			}
			return tx.CurrentSnapshot(ctx, b.ID)
		})
}

func (h *SyncHandler) syncSnapshot(ctx context.Context, jobID int64, l *slog.Logger, j jobs.SnapshotSync) error {
	return h.syncUnit(ctx, jobID, l.With("job", j.String()), j.ConcurrencyKey(),
		func(ctx context.Context, tx store.Tx) (*models.Snapshot, error) {
			snap, err := tx.GetSnapshot(ctx, j.HistorikkID)
			if err != nil {
				return nil, err
			}
			return &snap, nil
		})
}

// syncCase delivers the case version load returns. The case's receipt pointer only moves when
// that version is still the current one
func (h *SyncHandler) syncCase(ctx context.Context, jobID int64, l *slog.Logger, key int64,
	load func(ctx context.Context, tx store.Tx) (models.Sak, error)) error {
	skipped := false
	err := h.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockKey(ctx, key); err != nil {
			return err
		}
		sak, err := load(ctx, tx)
		if err != nil {
			return err
		}

		k, err := tx.FindSakKvittering(ctx, sak.ID, sak.Versjon)
		if err != nil {
			return err
		}
		if k != nil {
			skipped = true
			return h.consume(ctx, tx, jobID)
		}

		if err := h.deliver(ctx, sink.SakSchema, sink.SakRad(sak)); err != nil {
			return err
		}

		sakID, versjon := sak.ID, sak.Versjon
		kid, err := tx.InsertKvittering(ctx, models.Kvittering{SakID: &sakID, SakVersjon: &versjon})
		if err != nil {
			return err
		}
		cur, err := tx.GetSak(ctx, sak.ID)
		if err != nil {
			return err
		}
		if cur.Versjon == sak.Versjon {
			if err := tx.SetSakKvittering(ctx, sak.ID, kid); err != nil {
				return err
			}
		}
		l.Info("Case version delivered", "sak_id", sak.ID, "versjon", sak.Versjon, "kvittering_id", kid)
		return h.consume(ctx, tx, jobID)
	})
	return h.logOutcome(l, skipped, err)
}

// syncUnit delivers the snapshot load returns. A nil snapshot means nothing was ever appended for
// the unit. The unit's receipt pointer only moves for the current snapshot
func (h *SyncHandler) syncUnit(ctx context.Context, jobID int64, l *slog.Logger, key int64,
	load func(ctx context.Context, tx store.Tx) (*models.Snapshot, error)) error {
	skipped := false
	err := h.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockKey(ctx, key); err != nil {
			return err
		}
		snap, err := load(ctx, tx)
		if err != nil {
			return err
		}
		if snap == nil {
			skipped = true
			return h.consume(ctx, tx, jobID)
		}

		k, err := tx.FindBehandlingKvittering(ctx, snap.ID)
		if err != nil {
			return err
		}
		if k != nil {
			skipped = true
			return h.consume(ctx, tx, jobID)
		}

		b, err := tx.GetBehandling(ctx, snap.BehandlingID)
		if err != nil {
			return err
		}
		sak, err := tx.GetSak(ctx, b.SakID)
		if err != nil {
			return err
		}
		person, err := tx.GetPerson(ctx, sak.PersonID)
		if err != nil {
			return err
		}

		if err := h.deliver(ctx, sink.BehandlingSchema, sink.BehandlingRad(b, sak, *snap, person.Ident)); err != nil {
			return err
		}

		snapID := snap.ID
		kid, err := tx.InsertKvittering(ctx, models.Kvittering{BehandlingHistorikkID: &snapID})
		if err != nil {
			return err
		}
		if snap.Gjeldende {
			if err := tx.SetBehandlingKvittering(ctx, b.ID, kid); err != nil {
				return err
			}
		}
		l.Info("Unit snapshot delivered", "behandling_id", b.ID, "snapshot_id", snap.ID, "kvittering_id", kid)
		return h.consume(ctx, tx, jobID)
	})
	return h.logOutcome(l, skipped, err)
}

// deliver writes one row to the sink. Every sink failure is a SyncDeliveryError. A row that breaks
// the table schema wraps a ValidationError, so the job is dead-lettered instead of retried
func (h *SyncHandler) deliver(ctx context.Context, schema sink.TableSchema, row sink.Row) error {
	if err := schema.Check(row); err != nil {
		return &models.SyncDeliveryError{Table: schema.Name, Err: err}
	}
	if err := h.sink.CreateTableIfAbsent(ctx, schema); err != nil {
		return &models.SyncDeliveryError{Table: schema.Name, Err: err}
	}
	if err := h.sink.InsertRow(ctx, schema.Name, row); err != nil {
		return &models.SyncDeliveryError{Table: schema.Name, Err: err}
	}
	metrics.SinkRows.WithLabelValues(schema.Name).Inc()
	return nil
}

// consume deletes the job record, skipped or delivered
func (h *SyncHandler) consume(ctx context.Context, tx store.Tx, jobID int64) error {
	if jobID == 0 {
		return nil
	}
	return tx.DeleteJob(ctx, jobID)
}

func (h *SyncHandler) logOutcome(l *slog.Logger, skipped bool, err error) error {
	switch {
	case err == nil && skipped:
		l.Info("Snapshot already delivered, skipping")
		return errSkipped
	case err == nil:
		return nil
	default:
		l.Error("Sync job failed", "error", err, "fatal", models.IsFatal(err))
		return fmt.Errorf("sync job: %w", err)
	}
}

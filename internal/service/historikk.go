package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
)

// Historikk maintains the append-only snapshot trail of each unit. Exactly one row per unit is
// current once the unit has been snapshotted at all
type Historikk struct{}

// AppendSnapshot invalidates the current row and inserts the new current row. Both writes belong
// to the caller's transaction. Repeating the current status still appends
func (Historikk) AppendSnapshot(ctx context.Context, tx store.Tx, s models.NyttSnapshot) (int64, error) {
	if _, err := tx.ClearCurrentSnapshot(ctx, s.BehandlingID); err != nil {
		return 0, fmt.Errorf("append snapshot for behandling %d: %w", s.BehandlingID, err)
	}
	id, err := tx.InsertSnapshot(ctx, s)
	if err != nil {
		return 0, fmt.Errorf("append snapshot for behandling %d: %w", s.BehandlingID, err)
	}
	return id, nil
}

// CurrentAsOf returns the current snapshot, or nil when the unit has none
func (Historikk) CurrentAsOf(ctx context.Context, tx store.Tx, behandlingID int64) (*models.Snapshot, error) {
	return tx.CurrentSnapshot(ctx, behandlingID)
}

// History returns every snapshot of the unit in append order
func (Historikk) History(ctx context.Context, tx store.Tx, behandlingID int64) ([]models.Snapshot, error) {
	return tx.ListSnapshots(ctx, behandlingID)
}

// Stale reports whether an event at t is older than the current snapshot
func Stale(current *models.Snapshot, t time.Time) bool {
	return current != nil && t.Before(current.EndretTid)
}

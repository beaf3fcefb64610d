package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"

	"github.com/jackc/pgx/v5"
)

const snapshotColumns = `id, behandling_id, status, saksbehandler, apent_sporsmal, venteaarsak, skjermet, endret_tid, gjeldende`

func scanSnapshot(row pgx.Row) (models.Snapshot, error) {
	var s models.Snapshot
	err := row.Scan(&s.ID, &s.BehandlingID, &s.Status, &s.Saksbehandler, &s.ApentSporsmal, &s.Venteaarsak, &s.Skjermet, &s.EndretTid, &s.Gjeldende)
	return s, err
}

func (t *pgTx) ClearCurrentSnapshot(ctx context.Context, behandlingID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`UPDATE behandling_historikk SET gjeldende = FALSE
		 WHERE behandling_id = $1 AND gjeldende
		 RETURNING id`,
		behandlingID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear current snapshot: %w", err)
	}
	return id, nil
}

func (t *pgTx) InsertSnapshot(ctx context.Context, s models.NyttSnapshot) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO behandling_historikk
		   (behandling_id, status, saksbehandler, apent_sporsmal, venteaarsak, skjermet, endret_tid, gjeldende)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		 RETURNING id`,
		s.BehandlingID, s.Status, s.Saksbehandler, s.ApentSporsmal, s.Venteaarsak, s.Skjermet, s.EndretTid,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w",
			mapPgError(err, "current snapshot", strconv.FormatInt(s.BehandlingID, 10)))
	}
	return id, nil
}

func (t *pgTx) CurrentSnapshot(ctx context.Context, behandlingID int64) (*models.Snapshot, error) {
	s, err := scanSnapshot(t.tx.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM behandling_historikk WHERE behandling_id = $1 AND gjeldende`,
		behandlingID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current snapshot: %w", err)
	}
	return &s, nil
}

func (t *pgTx) GetSnapshot(ctx context.Context, id int64) (models.Snapshot, error) {
	s, err := scanSnapshot(t.tx.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM behandling_historikk WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Snapshot{}, fmt.Errorf("snapshot %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to read snapshot %d: %w", id, err)
	}
	return s, nil
}

func (t *pgTx) ListSnapshots(ctx context.Context, behandlingID int64) ([]models.Snapshot, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+snapshotColumns+` FROM behandling_historikk WHERE behandling_id = $1 ORDER BY id ASC`,
		behandlingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const kvitteringColumns = `id, sak_id, sak_versjon, behandling_historikk_id, levert_tid`

func scanKvittering(row pgx.Row) (models.Kvittering, error) {
	var k models.Kvittering
	err := row.Scan(&k.ID, &k.SakID, &k.SakVersjon, &k.BehandlingHistorikkID, &k.LevertTid)
	return k, err
}

func (t *pgTx) findKvittering(ctx context.Context, where string, args ...any) (*models.Kvittering, error) {
	k, err := scanKvittering(t.tx.QueryRow(ctx, `SELECT `+kvitteringColumns+` FROM sink_kvittering WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}
	return &k, nil
}

func (t *pgTx) FindSakKvittering(ctx context.Context, sakID, versjon int64) (*models.Kvittering, error) {
	return t.findKvittering(ctx, `sak_id = $1 AND sak_versjon = $2`, sakID, versjon)
}

func (t *pgTx) FindBehandlingKvittering(ctx context.Context, historikkID int64) (*models.Kvittering, error) {
	return t.findKvittering(ctx, `behandling_historikk_id = $1`, historikkID)
}

func (t *pgTx) InsertKvittering(ctx context.Context, k models.Kvittering) (int64, error) {
	levert := k.LevertTid
	if levert.IsZero() {
		levert = time.Now().UTC()
	}
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sink_kvittering (sak_id, sak_versjon, behandling_historikk_id, levert_tid)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		k.SakID, k.SakVersjon, k.BehandlingHistorikkID, levert,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert receipt: %w", mapPgError(err, "receipt", kvitteringKey(k)))
	}
	return id, nil
}

func kvitteringKey(k models.Kvittering) string {
	if k.BehandlingHistorikkID != nil {
		return fmt.Sprintf("historikk %d", *k.BehandlingHistorikkID)
	}
	if k.SakID != nil && k.SakVersjon != nil {
		return fmt.Sprintf("sak %d@%d", *k.SakID, *k.SakVersjon)
	}
	return "unknown"
}

func (t *pgTx) collectKvitteringer(rows pgx.Rows, err error) ([]models.Kvittering, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var out []models.Kvittering
	for rows.Next() {
		k, err := scanKvittering(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (t *pgTx) ListKvitteringer(ctx context.Context, from, to time.Time) ([]models.Kvittering, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+kvitteringColumns+` FROM sink_kvittering
		 WHERE levert_tid >= $1 AND levert_tid < $2
		 ORDER BY id ASC`,
		from, to,
	)
	return t.collectKvitteringer(rows, err)
}

func (t *pgTx) DeleteKvitteringer(ctx context.Context, from, to time.Time) ([]models.Kvittering, error) {
	rows, err := t.tx.Query(ctx,
		`DELETE FROM sink_kvittering
		 WHERE levert_tid >= $1 AND levert_tid < $2
		 RETURNING `+kvitteringColumns,
		from, to,
	)
	return t.collectKvitteringer(rows, err)
}

func (t *pgTx) EnqueueJob(ctx context.Context, e jobs.Entry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sync_jobb (correlation_id, kind, payload, concurrency_key, status)
		 VALUES ($1, $2, $3, $4, 'pending')
		 RETURNING id`,
		e.CorrelationID, e.Kind, e.Payload, e.ConcurrencyKey,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue job: %w", mapPgError(err, "job", e.CorrelationID))
	}
	return id, nil
}

func (t *pgTx) DeleteJob(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM sync_jobb WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}
	return nil
}

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (t *pgTx) GetOrCreatePerson(ctx context.Context, ident string) (int64, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return 0, models.NewValidationError("ident", "is required")
	}

	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO person (ident) VALUES ($1)
		 ON CONFLICT (ident) DO NOTHING
		 RETURNING id`,
		ident,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to insert person: %w", err)
	}

	// Lost the race or the row already existed: read the authoritative one
	if err := t.tx.QueryRow(ctx, `SELECT id FROM person WHERE ident = $1`, ident).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read person: %w", err)
	}
	return id, nil
}

func (t *pgTx) GetPerson(ctx context.Context, id int64) (models.Person, error) {
	var p models.Person
	err := t.tx.QueryRow(ctx, `SELECT id, ident FROM person WHERE id = $1`, id).Scan(&p.ID, &p.Ident)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Person{}, fmt.Errorf("person %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Person{}, fmt.Errorf("failed to read person %d: %w", id, err)
	}
	return p, nil
}

const sakColumns = `id, saksnummer, person_id, status, endret_tid, versjon, sink_kvittering_id`

func scanSak(row pgx.Row) (models.Sak, error) {
	var s models.Sak
	err := row.Scan(&s.ID, &s.Saksnummer, &s.PersonID, &s.Status, &s.EndretTid, &s.Versjon, &s.SinkKvitteringID)
	return s, err
}

func (t *pgTx) GetOrCreateSak(ctx context.Context, saksnummer string, personID int64, status models.SakStatus, at time.Time) (models.Sak, bool, error) {
	saksnummer = strings.TrimSpace(saksnummer)
	if saksnummer == "" {
		return models.Sak{}, false, models.NewValidationError("saksnummer", "is required")
	}

	s, err := scanSak(t.tx.QueryRow(ctx,
		`INSERT INTO sak (saksnummer, person_id, status, endret_tid, versjon)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (saksnummer) DO NOTHING
		 RETURNING `+sakColumns,
		saksnummer, personID, status, at,
	))
	if err == nil {
		if err := t.appendSakVersjon(ctx, s); err != nil {
			return models.Sak{}, false, err
		}
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Sak{}, false, fmt.Errorf("failed to insert sak: %w", err)
	}

	// Row lock so concurrent events for the same case mutate it one at a time
	s, err = scanSak(t.tx.QueryRow(ctx,
		`SELECT `+sakColumns+` FROM sak WHERE saksnummer = $1 FOR UPDATE`,
		saksnummer,
	))
	if err != nil {
		return models.Sak{}, false, fmt.Errorf("failed to read sak: %w", err)
	}
	return s, false, nil
}

func (t *pgTx) GetSak(ctx context.Context, id int64) (models.Sak, error) {
	s, err := scanSak(t.tx.QueryRow(ctx, `SELECT `+sakColumns+` FROM sak WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Sak{}, fmt.Errorf("sak %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Sak{}, fmt.Errorf("failed to read sak %d: %w", id, err)
	}
	return s, nil
}

func (t *pgTx) UpdateSakStatus(ctx context.Context, id int64, status models.SakStatus, at time.Time) (models.Sak, error) {
	s, err := scanSak(t.tx.QueryRow(ctx,
		`UPDATE sak SET status = $2, endret_tid = $3, versjon = versjon + 1
		 WHERE id = $1
		 RETURNING `+sakColumns,
		id, status, at,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Sak{}, fmt.Errorf("sak %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Sak{}, fmt.Errorf("failed to update sak %d: %w", id, err)
	}
	if err := t.appendSakVersjon(ctx, s); err != nil {
		return models.Sak{}, err
	}
	return s, nil
}

func (t *pgTx) appendSakVersjon(ctx context.Context, s models.Sak) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO sak_historikk (sak_id, versjon, status, endret_tid) VALUES ($1, $2, $3, $4)`,
		s.ID, s.Versjon, s.Status, s.EndretTid,
	)
	if err != nil {
		return fmt.Errorf("failed to record sak version: %w",
			mapPgError(err, "sak version", s.SnapshotKey()))
	}
	return nil
}

// GetSakVersjon rebuilds the case as it was at versjon. The pointer column is the current one
func (t *pgTx) GetSakVersjon(ctx context.Context, id, versjon int64) (models.Sak, error) {
	s, err := scanSak(t.tx.QueryRow(ctx,
		`SELECT s.id, s.saksnummer, s.person_id, h.status, h.endret_tid, h.versjon, s.sink_kvittering_id
		 FROM sak_historikk h JOIN sak s ON s.id = h.sak_id
		 WHERE h.sak_id = $1 AND h.versjon = $2`,
		id, versjon,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Sak{}, fmt.Errorf("sak %d version %d: %w", id, versjon, models.ErrNotFound)
	}
	if err != nil {
		return models.Sak{}, fmt.Errorf("failed to read sak %d version %d: %w", id, versjon, err)
	}
	return s, nil
}

func (t *pgTx) SetSakKvittering(ctx context.Context, id int64, kvitteringID int64) error {
	if _, err := t.tx.Exec(ctx, `UPDATE sak SET sink_kvittering_id = $2 WHERE id = $1`, id, kvitteringID); err != nil {
		return fmt.Errorf("failed to set sak receipt: %w", err)
	}
	return nil
}

const behandlingColumns = `id, referanse, sak_id, type, opprettet_tid, mottatt_tid, soknadsformat, status,
	relatert_behandling_id, apent_sporsmal, venteaarsak, relaterte_identer, skjermet, sink_kvittering_id`

func scanBehandling(row pgx.Row) (models.Behandling, error) {
	var b models.Behandling
	err := row.Scan(
		&b.ID,
		&b.Referanse,
		&b.SakID,
		&b.Type,
		&b.OpprettetTid,
		&b.MottattTid,
		&b.Soknadsformat,
		&b.Status,
		&b.RelatertBehandlingID,
		&b.ApentSporsmal,
		&b.Venteaarsak,
		&b.RelaterteIdenter,
		&b.Skjermet,
		&b.SinkKvitteringID,
	)
	return b, err
}

func (t *pgTx) GetOrCreateBehandling(ctx context.Context, nb models.NyBehandling) (models.Behandling, bool, error) {
	if err := models.RequireSecondPrecision("mottatt_tid", nb.MottattTid); err != nil {
		return models.Behandling{}, false, err
	}
	if err := models.RequireSecondPrecision("opprettet_tid", nb.OpprettetTid); err != nil {
		return models.Behandling{}, false, err
	}
	identer := nb.RelaterteIdenter
	if identer == nil {
		identer = []string{}
	}

	b, err := scanBehandling(t.tx.QueryRow(ctx,
		`INSERT INTO behandling (
			referanse, sak_id, type, opprettet_tid, mottatt_tid, soknadsformat, status,
			relatert_behandling_id, apent_sporsmal, venteaarsak, relaterte_identer, skjermet
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			(SELECT id FROM behandling WHERE referanse = $8), $9, $10, $11, $12
		)
		ON CONFLICT (referanse) DO NOTHING
		RETURNING `+behandlingColumns,
		nb.Referanse, nb.SakID, nb.Type, nb.OpprettetTid, nb.MottattTid, nb.Soknadsformat, nb.Status,
		nb.RelatertReferanse, nb.ApentSporsmal, nb.Venteaarsak, identer, nb.Skjermet,
	))
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Behandling{}, false, fmt.Errorf("failed to insert behandling: %w", err)
	}

	b, err = scanBehandling(t.tx.QueryRow(ctx,
		`SELECT `+behandlingColumns+` FROM behandling WHERE referanse = $1 FOR UPDATE`,
		nb.Referanse,
	))
	if err != nil {
		return models.Behandling{}, false, fmt.Errorf("failed to read behandling: %w", err)
	}
	return b, false, nil
}

func (t *pgTx) GetBehandling(ctx context.Context, id int64) (models.Behandling, error) {
	b, err := scanBehandling(t.tx.QueryRow(ctx, `SELECT `+behandlingColumns+` FROM behandling WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Behandling{}, fmt.Errorf("behandling %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Behandling{}, fmt.Errorf("failed to read behandling %d: %w", id, err)
	}
	return b, nil
}

func (t *pgTx) GetBehandlingByReferanse(ctx context.Context, ref uuid.UUID) (models.Behandling, error) {
	b, err := scanBehandling(t.tx.QueryRow(ctx, `SELECT `+behandlingColumns+` FROM behandling WHERE referanse = $1`, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Behandling{}, fmt.Errorf("behandling %s: %w", ref, models.ErrNotFound)
	}
	if err != nil {
		return models.Behandling{}, fmt.Errorf("failed to read behandling %s: %w", ref, err)
	}
	return b, nil
}

func (t *pgTx) UpdateBehandling(ctx context.Context, id int64, nb models.NyBehandling) (models.Behandling, error) {
	identer := nb.RelaterteIdenter
	if identer == nil {
		identer = []string{}
	}
	b, err := scanBehandling(t.tx.QueryRow(ctx,
		`UPDATE behandling
		 SET status = $2, apent_sporsmal = $3, venteaarsak = $4, relaterte_identer = $5, skjermet = $6
		 WHERE id = $1
		 RETURNING `+behandlingColumns,
		id, nb.Status, nb.ApentSporsmal, nb.Venteaarsak, identer, nb.Skjermet,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Behandling{}, fmt.Errorf("behandling %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Behandling{}, fmt.Errorf("failed to update behandling %d: %w", id, err)
	}
	return b, nil
}

func (t *pgTx) SetBehandlingKvittering(ctx context.Context, id int64, kvitteringID int64) error {
	if _, err := t.tx.Exec(ctx, `UPDATE behandling SET sink_kvittering_id = $2 WHERE id = $1`, id, kvitteringID); err != nil {
		return fmt.Errorf("failed to set behandling receipt: %w", err)
	}
	return nil
}

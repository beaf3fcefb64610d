package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"

	"github.com/jackc/pgx/v5"
)

func zoneName(loc *time.Location) string {
	if loc == nil {
		return "UTC"
	}
	return loc.String()
}

func (r *PostgresRepository) countPerDay(ctx context.Context, query string, args ...any) ([]models.DayCount, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count per day: %w", err)
	}
	defer rows.Close()

	var out []models.DayCount
	for rows.Next() {
		var (
			dato   time.Time
			antall int
		)
		if err := rows.Scan(&dato, &antall); err != nil {
			return nil, fmt.Errorf("failed to scan day count: %w", err)
		}
		out = append(out, models.DayCount{Dato: models.DateOf(dato, time.UTC), Antall: antall})
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountOpenedPerDay(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.DayCount, error) {
	return r.countPerDay(ctx,
		`SELECT (mottatt_tid AT TIME ZONE $3)::date AS dato, count(*)
		 FROM behandling
		 WHERE mottatt_tid >= $1 AND mottatt_tid < $2
		 GROUP BY 1
		 ORDER BY 1`,
		from, to, zoneName(loc),
	)
}

func (r *PostgresRepository) CountClosedPerDay(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.DayCount, error) {
	return r.countPerDay(ctx,
		`SELECT (endret_tid AT TIME ZONE $3)::date AS dato, count(*)
		 FROM behandling_historikk
		 WHERE gjeldende AND status = $4
		   AND endret_tid >= $1 AND endret_tid < $2
		 GROUP BY 1
		 ORDER BY 1`,
		from, to, zoneName(loc), models.BehandlingAvsluttet,
	)
}

func (r *PostgresRepository) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM behandling_historikk WHERE gjeldende AND status <> $1`,
		models.BehandlingAvsluttet,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open units: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CurrentAgeBasis(ctx context.Context) ([]models.AldersGrunnlag, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT h.behandling_id, b.mottatt_tid, h.status, h.endret_tid
		 FROM behandling_historikk h
		 JOIN behandling b ON b.id = h.behandling_id
		 WHERE h.gjeldende
		 ORDER BY h.behandling_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read current snapshots: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AldersGrunnlag, error) {
		var g models.AldersGrunnlag
		err := row.Scan(&g.BehandlingID, &g.MottattTid, &g.Status, &g.EndretTid)
		return g, err
	})
}

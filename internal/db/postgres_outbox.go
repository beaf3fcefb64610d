package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
)

// FetchAndClaim marks up to batchSize pending jobs as processing and returns them in enqueue order.
// SKIP LOCKED lets several relays run side by side without handing out the same job twice
func (r *PostgresRepository) FetchAndClaim(ctx context.Context, batchSize int) ([]jobs.Entry, error) {
	query := `
		WITH claimed AS (
			SELECT id
			FROM sync_jobb
			WHERE status = 'pending'
			ORDER BY id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE sync_jobb j
		SET status = 'processing', claimed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		FROM claimed
		WHERE j.id = claimed.id
		RETURNING j.id, j.correlation_id, j.kind, j.payload, j.concurrency_key, j.attempts, j.created_at
	`

	rows, err := r.pool.Query(ctx, query, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending jobs: %w", err)
	}
	defer rows.Close()

	var entries []jobs.Entry
	for rows.Next() {
		e := jobs.Entry{Status: jobs.StatusProcessing}
		if err := rows.Scan(
			&e.ID,
			&e.CorrelationID,
			&e.Kind,
			&e.Payload,
			&e.ConcurrencyKey,
			&e.Attempts,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claimed jobs: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (r *PostgresRepository) MarkAsSent(ctx context.Context, id int64) error {
	query := `
		UPDATE sync_jobb
		SET status = 'sent', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PostgresRepository) MarkAsError(ctx context.Context, id int64, errLog string) error {
	query := `
		UPDATE sync_jobb
		SET status = 'error',
		    attempts = attempts + 1,
		    error_log = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, errLog)
	return err
}

// MarkManyAsPending hands claimed jobs back to the queue
func (r *PostgresRepository) MarkManyAsPending(ctx context.Context, ids []int64, note string, strategy jobs.RevertStrategy) error {
	if len(ids) == 0 {
		return nil
	}
	charge := 0
	if strategy == jobs.StrategyBusinessFailure {
		charge = 1
	}
	query := `
		UPDATE sync_jobb
		SET status = 'pending',
		    attempts = attempts + $3,
		    error_log = $2,
		    claimed_at = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ANY($1) AND status = 'processing'
	`
	_, err := r.pool.Exec(ctx, query, ids, note, charge)
	return err
}

// ResetStaleMessages returns jobs stuck in processing for longer than olderThanMin minutes
func (r *PostgresRepository) ResetStaleMessages(ctx context.Context, olderThanMin int) (int64, error) {
	query := `
		UPDATE sync_jobb
		SET status = 'pending', claimed_at = NULL, error_log = 'stale_claim', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'processing'
		  AND claimed_at < CURRENT_TIMESTAMP - make_interval(mins => $1)
	`
	tag, err := r.pool.Exec(ctx, query, olderThanMin)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountBacklog counts jobs not yet handed to the broker
func (r *PostgresRepository) CountBacklog(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM sync_jobb WHERE status IN ('pending', 'processing')`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count backlog: %w", err)
	}
	return n, nil
}

// MarkAsErrorByCorrelationID flags a job the consumer dead-lettered
func (r *PostgresRepository) MarkAsErrorByCorrelationID(ctx context.Context, correlationID string, errLog string) error {
	query := `
		UPDATE sync_jobb
		SET status = 'error',
		    error_log = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE correlation_id = $1
	`
	_, err := r.pool.Exec(ctx, query, correlationID, errLog)
	return err
}

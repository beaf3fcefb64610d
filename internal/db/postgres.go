package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresRepository is the authoritative transactional store
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*PostgresRepository)(nil)

func NewPostgresRepository(ctx context.Context, connString string, logger *slog.Logger) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = time.Minute

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, &models.ConnectionError{Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, &models.ConnectionError{Err: err}
	}

	logger.Info("Connected to Postgres successfully")
	return &PostgresRepository{pool: p, logger: logger}, nil
}

// WithTx runs fn inside one READ COMMITTED transaction. A rollback that itself fails is reported
// as RollbackError and logged as a fatal inconsistency
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &models.ConnectionError{Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(context.Background()); rbErr != nil {
				r.logger.Error("FATAL: rollback after panic failed", "error", rbErr)
			}
			panic(p)
		}
	}()

	if fnErr := fn(ctx, &pgTx{tx: tx}); fnErr != nil {
		if rbErr := tx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Error("FATAL: rollback failed, connection state unknown", "cause", fnErr, "error", rbErr)
			return &models.RollbackError{Cause: fnErr, Err: rbErr}
		}
		return fnErr
	}

	if err := tx.Commit(ctx); err != nil {
		if rbErr := tx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Error("FATAL: rollback after failed commit failed", "cause", err, "error", rbErr)
			return &models.RollbackError{Cause: err, Err: rbErr}
		}
		return &models.TransactionError{Err: mapPgError(err, "transaction", "commit")}
	}
	return nil
}

func (r *PostgresRepository) Close() {
	r.logger.Info("Closing Postgres connection pool")
	r.pool.Close()
}

// mapPgError turns unique violations into AlreadyExistsError and leaves anything else wrapped
func mapPgError(err error, entity, key string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &models.AlreadyExistsError{Entity: entity, Key: key}
	}
	return err
}

// pgTx binds the repositories to one open transaction
type pgTx struct {
	tx pgx.Tx
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) LockKey(ctx context.Context, key int64) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("failed to take advisory lock %d: %w", key, err)
	}
	return nil
}

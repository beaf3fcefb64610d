// Package store declares the transactional persistence contract shared by the ingestion path and
// the sync job handlers. internal/db provides the Postgres implementation and an in-memory one.
package store

import (
	"context"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/google/uuid"
)

// Store runs units of work. fn either commits as a whole or leaves nothing behind.
// Implementations never cache entity state across calls
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	StatistikkReader
}

// Tx is every repository bound to one open transaction
type Tx interface {
	PersonRepository
	SakRepository
	BehandlingRepository
	HistorikkRepository
	KvitteringRepository
	JobRepository

	// LockKey blocks until the transaction holds the exclusive lock for key. Released at commit
	LockKey(ctx context.Context, key int64) error
}

type PersonRepository interface {
	// GetOrCreatePerson is an atomic insert-if-absent on ident
	GetOrCreatePerson(ctx context.Context, ident string) (int64, error)
	GetPerson(ctx context.Context, id int64) (models.Person, error)
}

type SakRepository interface {
	// GetOrCreateSak inserts the case unless saksnummer already exists. created tells which
	GetOrCreateSak(ctx context.Context, saksnummer string, personID int64, status models.SakStatus, at time.Time) (sak models.Sak, created bool, err error)
	GetSak(ctx context.Context, id int64) (models.Sak, error)
	// GetSakVersjon returns the case as it was committed at versjon
	GetSakVersjon(ctx context.Context, id, versjon int64) (models.Sak, error)
	// UpdateSakStatus changes status and bumps the version
	UpdateSakStatus(ctx context.Context, id int64, status models.SakStatus, at time.Time) (models.Sak, error)
	SetSakKvittering(ctx context.Context, id int64, kvitteringID int64) error
}

type BehandlingRepository interface {
	// GetOrCreateBehandling inserts the unit unless referanse already exists
	GetOrCreateBehandling(ctx context.Context, b models.NyBehandling) (behandling models.Behandling, created bool, err error)
	GetBehandling(ctx context.Context, id int64) (models.Behandling, error)
	GetBehandlingByReferanse(ctx context.Context, ref uuid.UUID) (models.Behandling, error)
	// UpdateBehandling refreshes the mutable fields of an existing unit
	UpdateBehandling(ctx context.Context, id int64, b models.NyBehandling) (models.Behandling, error)
	SetBehandlingKvittering(ctx context.Context, id int64, kvitteringID int64) error
}

type HistorikkRepository interface {
	// ClearCurrentSnapshot unsets the current flag of the unit's current row, if any
	ClearCurrentSnapshot(ctx context.Context, behandlingID int64) (int64, error)
	// InsertSnapshot appends a row flagged current. A second current row for the same unit
	// fails with AlreadyExistsError
	InsertSnapshot(ctx context.Context, s models.NyttSnapshot) (int64, error)
	CurrentSnapshot(ctx context.Context, behandlingID int64) (*models.Snapshot, error)
	GetSnapshot(ctx context.Context, id int64) (models.Snapshot, error)
	ListSnapshots(ctx context.Context, behandlingID int64) ([]models.Snapshot, error)
}

type KvitteringRepository interface {
	FindSakKvittering(ctx context.Context, sakID, versjon int64) (*models.Kvittering, error)
	FindBehandlingKvittering(ctx context.Context, historikkID int64) (*models.Kvittering, error)
	// InsertKvittering fails with AlreadyExistsError when the snapshot already has a receipt
	InsertKvittering(ctx context.Context, k models.Kvittering) (int64, error)
	ListKvitteringer(ctx context.Context, from, to time.Time) ([]models.Kvittering, error)
	DeleteKvitteringer(ctx context.Context, from, to time.Time) ([]models.Kvittering, error)
}

type JobRepository interface {
	EnqueueJob(ctx context.Context, e jobs.Entry) (int64, error)
	// DeleteJob removes a consumed job record. Missing rows are not an error
	DeleteJob(ctx context.Context, id int64) error
}

// StatistikkReader serves the read-only production steering queries
type StatistikkReader interface {
	CountOpenedPerDay(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.DayCount, error)
	CountClosedPerDay(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.DayCount, error)
	CountOpen(ctx context.Context) (int, error)
	CurrentAgeBasis(ctx context.Context) ([]models.AldersGrunnlag, error)
}

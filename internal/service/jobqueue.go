package service

import (
	"context"
	"fmt"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
)

// JobQueue writes sync jobs into the outbox inside the caller's transaction, so a job exists
// exactly when the state it replicates was committed
type JobQueue struct{}

func (q JobQueue) EnqueueCaseSync(ctx context.Context, tx store.Tx, sakID int64) (jobs.Job, error) {
	j := jobs.SakSync{SakID: sakID}
	if _, err := q.Enqueue(ctx, tx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (q JobQueue) EnqueueUnitSync(ctx context.Context, tx store.Tx, behandlingID, sakID int64) (jobs.Job, error) {
	j := jobs.BehandlingSync{BehandlingID: behandlingID, SakID: sakID}
	if _, err := q.Enqueue(ctx, tx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// EnqueueCaseVersionSync schedules one exact case version, current or not
func (q JobQueue) EnqueueCaseVersionSync(ctx context.Context, tx store.Tx, sakID, versjon int64) (jobs.Job, error) {
	j := jobs.SakVersjonSync{SakID: sakID, Versjon: versjon}
	if _, err := q.Enqueue(ctx, tx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// EnqueueSnapshotSync schedules one exact unit snapshot, current or not
func (q JobQueue) EnqueueSnapshotSync(ctx context.Context, tx store.Tx, historikkID, sakID int64) (jobs.Job, error) {
	j := jobs.SnapshotSync{HistorikkID: historikkID, SakID: sakID}
	if _, err := q.Enqueue(ctx, tx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (JobQueue) Enqueue(ctx context.Context, tx store.Tx, j jobs.Job) (int64, error) {
	id, err := tx.EnqueueJob(ctx, jobs.NewEntry(j))
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", j.Kind(), err)
	}
	return id, nil
}

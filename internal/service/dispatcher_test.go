package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/db"
	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/skjerming"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func currentRows(snaps []models.Snapshot, behandlingID int64) (all, current int) {
	for _, s := range snaps {
		if s.BehandlingID != behandlingID {
			continue
		}
		all++
		if s.Gjeldende {
			current++
		}
	}
	return all, current
}

func TestDispatcher_ConcurrentEventsConverge(t *testing.T) {
	m := db.NewMemoryStore()
	d := NewDispatcher(m, nil, discard)
	ref := uuid.New()

	const workers = 16
	results := make([]Resultat, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Handle(context.Background(), hendelse("SAK-1", ref, models.BehandlingOpprettet, friday))
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].PersonID, results[i].PersonID)
		assert.Equal(t, results[0].SakID, results[i].SakID)
		assert.Equal(t, results[0].BehandlingID, results[i].BehandlingID)
	}
	assert.Equal(t, 1, m.PersonCount())
	assert.Equal(t, 1, m.SakCount())
	assert.Equal(t, 1, m.BehandlingCount())

	all, current := currentRows(m.Snapshots(), results[0].BehandlingID)
	assert.Equal(t, workers, all)
	assert.Equal(t, 1, current)
}

func TestDispatcher_AppendsKeepOneCurrentRow(t *testing.T) {
	m := db.NewMemoryStore()
	d := NewDispatcher(m, nil, discard)
	ref := uuid.New()

	statuses := []models.BehandlingStatus{
		models.BehandlingOpprettet,
		models.BehandlingUnderBehandling,
		models.BehandlingPaaVent,
		models.BehandlingUnderBehandling,
		models.BehandlingAvsluttet,
	}
	var last Resultat
	for i, s := range statuses {
		res, err := d.Handle(context.Background(), hendelse("SAK-1", ref, s, friday.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		assert.False(t, res.Stale)
		last = res
	}

	all, current := currentRows(m.Snapshots(), last.BehandlingID)
	assert.Equal(t, len(statuses), all)
	assert.Equal(t, 1, current)

	require.NoError(t, m.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		snap, err := Historikk{}.CurrentAsOf(ctx, tx, last.BehandlingID)
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, last.SnapshotID, snap.ID)
		assert.Equal(t, models.BehandlingAvsluttet, snap.Status)

		history, err := Historikk{}.History(ctx, tx, last.BehandlingID)
		require.NoError(t, err)
		require.Len(t, history, len(statuses))
		for i, s := range statuses {
			assert.Equal(t, s, history[i].Status)
		}
		return nil
	}))
}

func TestDispatcher_SubSecondTimestampWritesNothing(t *testing.T) {
	m := db.NewMemoryStore()
	d := NewDispatcher(m, nil, discard)

	h := hendelse("SAK-1", uuid.New(), models.BehandlingOpprettet, friday)
	h.MottattTid = friday.Add(500 * time.Millisecond)

	_, err := d.Handle(context.Background(), h)

	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Zero(t, m.PersonCount())
	assert.Zero(t, m.SakCount())
	assert.Empty(t, m.Snapshots())
	assert.Empty(t, m.Jobs())
}

func TestDispatcher_StaleEventIsSkipped(t *testing.T) {
	m := db.NewMemoryStore()
	d := NewDispatcher(m, nil, discard)
	ref := uuid.New()

	_, err := d.Handle(context.Background(), hendelse("SAK-1", ref, models.BehandlingUnderBehandling, friday))
	require.NoError(t, err)
	jobsBefore := len(m.Jobs())

	res, err := d.Handle(context.Background(), hendelse("SAK-1", ref, models.BehandlingOpprettet, friday.Add(-time.Hour)))
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Empty(t, res.Jobber)
	assert.Len(t, m.Snapshots(), 1)
	assert.Len(t, m.Jobs(), jobsBefore)

	// same instant is not older
	res, err = d.Handle(context.Background(), hendelse("SAK-1", ref, models.BehandlingPaaVent, friday))
	require.NoError(t, err)
	assert.False(t, res.Stale)
}

func TestDispatcher_CaseStatusAndJobs(t *testing.T) {
	m := db.NewMemoryStore()
	d := NewDispatcher(m, nil, discard)
	ref := uuid.New()
	ctx := context.Background()

	res, err := d.Handle(ctx, hendelse("SAK-1", ref, models.BehandlingOpprettet, friday))
	require.NoError(t, err)
	assert.True(t, res.SakOpprettet)
	assert.True(t, res.BehandlingOpprettet)
	assert.ElementsMatch(t, []jobs.Job{
		jobs.BehandlingSync{BehandlingID: res.BehandlingID, SakID: res.SakID},
		jobs.SakSync{SakID: res.SakID},
	}, res.Jobber)

	res, err = d.Handle(ctx, hendelse("SAK-1", ref, models.BehandlingUnderBehandling, friday.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, res.SakOpprettet)
	assert.True(t, res.SakEndret)
	assert.Len(t, res.Jobber, 2)

	res, err = d.Handle(ctx, hendelse("SAK-1", ref, models.BehandlingUnderBehandling, friday.Add(2*time.Minute)))
	require.NoError(t, err)
	assert.False(t, res.SakEndret)
	assert.Equal(t, []jobs.Job{jobs.BehandlingSync{BehandlingID: res.BehandlingID, SakID: res.SakID}}, res.Jobber)

	h := hendelse("SAK-1", ref, models.BehandlingAvsluttet, friday.Add(3*time.Minute))
	h.SakStatus = string(models.SakLopende)
	res, err = d.Handle(ctx, h)
	require.NoError(t, err)
	assert.True(t, res.SakEndret)

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sak, err := tx.GetSak(ctx, res.SakID)
		require.NoError(t, err)
		assert.Equal(t, models.SakLopende, sak.Status)
		assert.Equal(t, int64(3), sak.Versjon)
		return nil
	}))
	assert.Len(t, m.Jobs(), 7)
}

func TestDispatcher_ScreenedPersonMarksUnit(t *testing.T) {
	m := db.NewMemoryStore()
	checker := skjerming.CheckerFunc(func(ctx context.Context, ident string) (bool, error) {
		return ident == "99999999999", nil
	})
	d := NewDispatcher(m, checker, discard)

	h := hendelse("SAK-1", uuid.New(), models.BehandlingOpprettet, friday)
	h.RelaterteIdenter = []string{"99999999999"}
	res, err := d.Handle(context.Background(), h)
	require.NoError(t, err)

	require.NoError(t, m.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBehandling(ctx, res.BehandlingID)
		require.NoError(t, err)
		assert.True(t, b.Skjermet)
		assert.Equal(t, []string{"99999999999"}, b.RelaterteIdenter)
		return nil
	}))
}

func TestDispatcher_FailedCommitLeavesNothing(t *testing.T) {
	m := db.NewMemoryStore()
	d := NewDispatcher(m, nil, discard)
	m.FailNextCommit(errors.New("connection reset"))

	_, err := d.Handle(context.Background(), hendelse("SAK-1", uuid.New(), models.BehandlingOpprettet, friday))

	var te *models.TransactionError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, m.SakCount())
	assert.Empty(t, m.Jobs())
}

func TestDeriveSakStatus(t *testing.T) {
	lopende := models.SakLopende
	avsluttet := models.SakAvsluttet

	tests := []struct {
		name     string
		current  *models.SakStatus
		explicit *models.SakStatus
		unit     models.BehandlingStatus
		want     models.SakStatus
	}{
		{"explicit wins", &lopende, &avsluttet, models.BehandlingUnderBehandling, models.SakAvsluttet},
		{"unit in progress", &lopende, nil, models.BehandlingUnderBehandling, models.SakUnderBehandling},
		{"unit waiting", nil, nil, models.BehandlingPaaVent, models.SakUnderBehandling},
		{"new case", nil, nil, models.BehandlingOpprettet, models.SakOpprettet},
		{"existing case unchanged", &lopende, nil, models.BehandlingAvsluttet, models.SakLopende},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveSakStatus(tt.current, tt.explicit, tt.unit))
		})
	}
}

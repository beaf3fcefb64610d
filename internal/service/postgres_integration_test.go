package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/db"
	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/processor"
	"github.com/Guizzs26/go-saksstatistikk/internal/sink"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresRepo connects to SAKSSTATISTIKK_TEST_DATABASE_URL and applies the migrations. Every test
// uses fresh saksnummer and references, so the database may be shared between runs
func postgresRepo(t *testing.T) *db.PostgresRepository {
	t.Helper()
	url := os.Getenv("SAKSSTATISTIKK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SAKSSTATISTIKK_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := db.NewPostgresRepository(ctx, url, discard)
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.RunMigrations(ctx))
	// the scripts are idempotent
	require.NoError(t, repo.RunMigrations(ctx))
	return repo
}

func uniqueHendelse(status models.BehandlingStatus, at time.Time) (models.Hendelse, uuid.UUID) {
	ref := uuid.New()
	h := hendelse("IT-"+ref.String(), ref, status, at)
	h.PersonIdent = fmt.Sprintf("%011d", ref.ID())
	return h, ref
}

func TestPostgres_ConcurrentEventsConverge(t *testing.T) {
	repo := postgresRepo(t)
	d := NewDispatcher(repo, nil, discard)
	h, _ := uniqueHendelse(models.BehandlingOpprettet, friday)

	const workers = 16
	results := make([]Resultat, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Handle(context.Background(), h)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].PersonID, results[i].PersonID)
		assert.Equal(t, results[0].SakID, results[i].SakID)
		assert.Equal(t, results[0].BehandlingID, results[i].BehandlingID)
	}

	require.NoError(t, repo.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		all, err := tx.ListSnapshots(ctx, results[0].BehandlingID)
		require.NoError(t, err)
		assert.Len(t, all, workers)
		n, current := currentRows(all, results[0].BehandlingID)
		assert.Equal(t, workers, n)
		assert.Equal(t, 1, current)

		v1, err := tx.GetSakVersjon(ctx, results[0].SakID, 1)
		require.NoError(t, err)
		assert.Equal(t, models.SakOpprettet, v1.Status)
		return nil
	}))
}

func TestPostgres_SyncIsReceiptGatedAndExact(t *testing.T) {
	repo := postgresRepo(t)
	d := NewDispatcher(repo, nil, discard)
	out := sink.NewMemory()
	h := processor.NewSyncHandler(repo, out, discard)
	ctx := context.Background()

	first, ref := uniqueHendelse(models.BehandlingOpprettet, friday.Add(-time.Hour))
	res1, err := d.Handle(ctx, first)
	require.NoError(t, err)

	waiting := first
	waiting.Status = string(models.BehandlingPaaVent)
	waiting.Venteaarsak = ptr("Venter på dokumentasjon")
	waiting.HendelseTid = friday
	res2, err := d.Handle(ctx, waiting)
	require.NoError(t, err)
	require.Equal(t, res1.BehandlingID, res2.BehandlingID)

	unit := jobs.BehandlingSync{BehandlingID: res2.BehandlingID, SakID: res2.SakID}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.HandleBehandling(ctx, unit))
			assert.NoError(t, h.HandleSak(ctx, jobs.SakSync{SakID: res2.SakID}))
		}()
	}
	wg.Wait()

	rows, err := out.ReadAll(ctx, sink.BehandlingTable)
	require.NoError(t, err)
	require.Len(t, rows, 1, "the advisory lock and receipt admit one delivery")
	assert.Equal(t, res2.SnapshotID, rows[0]["BEHANDLING_HISTORIKK_ID"])
	assert.Equal(t, "Venter på dokumentasjon", rows[0]["VENTEAARSAK"])

	// the superseded snapshot and case version still project their own state
	require.NoError(t, h.HandleSnapshot(ctx, jobs.SnapshotSync{HistorikkID: res1.SnapshotID, SakID: res1.SakID}))
	require.NoError(t, h.HandleSakVersjon(ctx, jobs.SakVersjonSync{SakID: res1.SakID, Versjon: 1}))

	rows, err = out.ReadAll(ctx, sink.BehandlingTable)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, res1.SnapshotID, rows[1]["BEHANDLING_HISTORIKK_ID"])
	assert.Equal(t, "OPPRETTET", rows[1]["STATUS"])
	assert.Nil(t, rows[1]["VENTEAARSAK"])

	cases, err := out.ReadAll(ctx, sink.SakTable)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, int64(1), cases[1]["SAK_VERSJON"])

	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBehandlingByReferanse(ctx, ref)
		require.NoError(t, err)
		k, err := tx.FindBehandlingKvittering(ctx, res2.SnapshotID)
		require.NoError(t, err)
		require.NotNil(t, k)
		require.NotNil(t, b.SinkKvitteringID)
		assert.Equal(t, k.ID, *b.SinkKvitteringID, "the pointer stays on the current snapshot")
		return nil
	}))
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Guizzs26/go-saksstatistikk/internal/db"
	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	failAfter int
	published []string
}

func (b *fakeBroker) Publish(ctx context.Context, routingKey string, e jobs.Entry) error {
	if b.failAfter >= 0 && len(b.published) >= b.failAfter {
		return errors.New("connection closed")
	}
	b.published = append(b.published, routingKey)
	return nil
}

func enqueue(t *testing.T, m *db.MemoryStore, entries ...jobs.Entry) {
	t.Helper()
	require.NoError(t, m.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, e := range entries {
			if _, err := tx.EnqueueJob(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))
}

func statuses(m *db.MemoryStore) []jobs.Status {
	var out []jobs.Status
	for _, j := range m.Jobs() {
		out = append(out, j.Status)
	}
	return out
}

func TestSyncService_PublishesToShard(t *testing.T) {
	m := db.NewMemoryStore()
	enqueue(t, m,
		jobs.NewEntry(jobs.SakSync{SakID: 3}),
		jobs.NewEntry(jobs.BehandlingSync{BehandlingID: 10, SakID: 3}),
		jobs.NewEntry(jobs.SakSync{SakID: 4}),
	)
	b := &fakeBroker{failAfter: -1}

	require.NoError(t, NewSyncService(m, b, 4, discard).ProcessNextBatch(context.Background(), 10))

	assert.Equal(t, []string{
		"saksstatistikk.sync.shard.3",
		"saksstatistikk.sync.shard.3",
		"saksstatistikk.sync.shard.0",
	}, b.published)
	assert.Equal(t, []jobs.Status{jobs.StatusSent, jobs.StatusSent, jobs.StatusSent}, statuses(m))
}

func TestSyncService_BrokerFailureRevertsRest(t *testing.T) {
	m := db.NewMemoryStore()
	enqueue(t, m,
		jobs.NewEntry(jobs.SakSync{SakID: 1}),
		jobs.NewEntry(jobs.SakSync{SakID: 2}),
		jobs.NewEntry(jobs.SakSync{SakID: 3}),
	)
	b := &fakeBroker{failAfter: 1}

	err := NewSyncService(m, b, 8, discard).ProcessNextBatch(context.Background(), 10)
	require.Error(t, err)

	assert.Equal(t, []jobs.Status{jobs.StatusSent, jobs.StatusPending, jobs.StatusPending}, statuses(m))
	for _, j := range m.Jobs()[1:] {
		assert.Zero(t, j.Attempts, "an offline broker is not charged as an attempt")
	}
}

func TestSyncService_UndecodableJobIsParked(t *testing.T) {
	m := db.NewMemoryStore()
	enqueue(t, m,
		jobs.Entry{CorrelationID: "bogus", Kind: "REINDEX", Payload: 1, ConcurrencyKey: 1},
		jobs.NewEntry(jobs.SakSync{SakID: 1}),
	)
	b := &fakeBroker{failAfter: -1}

	require.NoError(t, NewSyncService(m, b, 8, discard).ProcessNextBatch(context.Background(), 10))

	assert.Len(t, b.published, 1)
	assert.Equal(t, []jobs.Status{jobs.StatusError, jobs.StatusSent}, statuses(m))
}

func TestSyncService_EmptyOutbox(t *testing.T) {
	b := &fakeBroker{failAfter: -1}
	require.NoError(t, NewSyncService(db.NewMemoryStore(), b, 8, discard).ProcessNextBatch(context.Background(), 10))
	assert.Empty(t, b.published)
}

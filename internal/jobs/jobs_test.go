package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	saker        []SakSync
	behandlinger []BehandlingSync
	versjoner    []SakVersjonSync
	snapshots    []SnapshotSync
}

func (r *recordingHandler) HandleSak(ctx context.Context, j SakSync) error {
	r.saker = append(r.saker, j)
	return nil
}

func (r *recordingHandler) HandleBehandling(ctx context.Context, j BehandlingSync) error {
	r.behandlinger = append(r.behandlinger, j)
	return nil
}

func (r *recordingHandler) HandleSakVersjon(ctx context.Context, j SakVersjonSync) error {
	r.versjoner = append(r.versjoner, j)
	return nil
}

func (r *recordingHandler) HandleSnapshot(ctx context.Context, j SnapshotSync) error {
	r.snapshots = append(r.snapshots, j)
	return nil
}

func TestNewEntry_DecodeRoundTrip(t *testing.T) {
	for _, j := range []Job{
		SakSync{SakID: 7},
		BehandlingSync{BehandlingID: 21, SakID: 7},
		SakVersjonSync{SakID: 7, Versjon: 3},
		SnapshotSync{HistorikkID: 40, SakID: 7},
	} {
		e := NewEntry(j)
		assert.NotEmpty(t, e.CorrelationID)
		assert.Equal(t, StatusPending, e.Status)
		assert.Equal(t, int64(7), e.ConcurrencyKey, "concurrency key is the owning case")

		decoded, err := Decode(e)
		require.NoError(t, err)
		assert.Equal(t, j, decoded)
	}
}

func TestDecode_UnknownKindIsFatal(t *testing.T) {
	_, err := Decode(Entry{Kind: "REINDEX", Payload: 1})

	var ue *models.UnknownJobError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "REINDEX", ue.Kind)
	assert.True(t, models.IsFatal(err))
}

func TestDispatch_RoutesByKind(t *testing.T) {
	h := &recordingHandler{}
	require.NoError(t, Dispatch(context.Background(), h, SakSync{SakID: 1}))
	require.NoError(t, Dispatch(context.Background(), h, BehandlingSync{BehandlingID: 2, SakID: 1}))
	require.NoError(t, Dispatch(context.Background(), h, SakVersjonSync{SakID: 1, Versjon: 2}))
	require.NoError(t, Dispatch(context.Background(), h, SnapshotSync{HistorikkID: 9, SakID: 1}))

	assert.Equal(t, []SakSync{{SakID: 1}}, h.saker)
	assert.Equal(t, []BehandlingSync{{BehandlingID: 2, SakID: 1}}, h.behandlinger)
	assert.Equal(t, []SakVersjonSync{{SakID: 1, Versjon: 2}}, h.versjoner)
	assert.Equal(t, []SnapshotSync{{HistorikkID: 9, SakID: 1}}, h.snapshots)
}

func TestEntry_ShardIsStablePerKey(t *testing.T) {
	a := Entry{ConcurrencyKey: 42}
	b := Entry{ConcurrencyKey: 42, Kind: KindBehandlingSync}

	assert.Equal(t, a.Shard(8), b.Shard(8))
	assert.Equal(t, 2, a.Shard(8))
	assert.Equal(t, "saksstatistikk.sync.shard.2", a.RoutingKey(8))
	assert.Equal(t, 0, a.Shard(1))
	assert.Equal(t, 3, Entry{ConcurrencyKey: -3}.Shard(8))
}

package sink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSchema_Check(t *testing.T) {
	s := TableSchema{Name: "T", Columns: []Column{{Name: "A"}, {Name: "B", Nullable: true}}}

	assert.NoError(t, s.Check(Row{"A": 1}))
	assert.NoError(t, s.Check(Row{"A": 1, "B": nil}))
	assert.Error(t, s.Check(Row{"B": 2}))
	assert.Error(t, s.Check(Row{"A": nil}))
	assert.Error(t, s.Check(Row{"A": 1, "C": 3}))
}

func TestTableSchema_CheckRejectsOverlongText(t *testing.T) {
	s := TableSchema{Name: "T", Columns: []Column{
		{Name: "KODE", Type: ColumnText, Size: 3},
		{Name: "FRI", Type: ColumnText, Nullable: true},
	}}

	assert.NoError(t, s.Check(Row{"KODE": "æøå"}), "size counts characters, not bytes")
	assert.NoError(t, s.Check(Row{"KODE": "abc", "FRI": strings.Repeat("x", DefaultTextSize)}))

	err := s.Check(Row{"KODE": "abcd"})
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "T.KODE", ve.Field)
	assert.True(t, models.IsFatal(err), "an oversized value never fits on retry")

	assert.Error(t, s.Check(Row{"KODE": "abc", "FRI": strings.Repeat("x", DefaultTextSize+1)}))
}

func TestProjections_FitSchemas(t *testing.T) {
	at := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	sak := models.Sak{ID: 1, Saksnummer: "SAK-1", PersonID: 2, Status: models.SakOpprettet, EndretTid: at, Versjon: 1}
	related := int64(3)
	b := models.Behandling{
		ID:                   4,
		Referanse:            uuid.New(),
		SakID:                1,
		Type:                 models.TypeRevurdering,
		OpprettetTid:         at,
		MottattTid:           at,
		Soknadsformat:        models.FormatDigital,
		RelatertBehandlingID: &related,
	}
	snap := models.Snapshot{ID: 5, BehandlingID: 4, Status: models.BehandlingPaaVent, EndretTid: at, Gjeldende: true}

	assert.NoError(t, SakSchema.Check(SakRad(sak)))

	row := BehandlingRad(b, sak, snap, "12345678901")
	assert.NoError(t, BehandlingSchema.Check(row))
	assert.Equal(t, int64(3), row["RELATERT_BEHANDLING_ID"])
	assert.Equal(t, "PAA_VENT", row["STATUS"])
	assert.Equal(t, "12345678901", row["PERSON_IDENT"])
}

func TestMemory_InsertAndRead(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	schema := TableSchema{Name: "T", Columns: []Column{{Name: "A"}}}

	assert.Error(t, m.InsertRow(ctx, "T", Row{"A": 1}), "table must exist")

	require.NoError(t, m.CreateTableIfAbsent(ctx, schema))
	require.NoError(t, m.CreateTableIfAbsent(ctx, schema))
	require.NoError(t, m.InsertRow(ctx, "T", Row{"A": 1}))
	assert.Error(t, m.InsertRow(ctx, "T", Row{"A": nil}))

	m.FailNext(errors.New("down"))
	assert.Error(t, m.InsertRow(ctx, "T", Row{"A": 2}))

	rows, err := m.ReadAll(ctx, "T")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	rows[0]["A"] = 99

	again, err := m.ReadAll(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, 1, again[0]["A"], "callers get copies")
	assert.Equal(t, 1, m.Inserts())

	m.Truncate("T")
	rows, err = m.ReadAll(ctx, "T")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, []string{"T"}, m.Tables())
}

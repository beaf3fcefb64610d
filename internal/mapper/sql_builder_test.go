package mapper

import (
	"testing"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCreateTable(t *testing.T) {
	schema := sink.TableSchema{
		Name: "sak_statistikk",
		Columns: []sink.Column{
			{Name: "SAK_ID", Type: sink.ColumnInt},
			{Name: "STATUS", Type: sink.ColumnText, Size: 20},
			{Name: "MERKNAD", Type: sink.ColumnText, Nullable: true},
			{Name: "ENDRET_TID", Type: sink.ColumnTimestamp},
			{Name: "SKJERMET", Type: sink.ColumnBool},
		},
	}

	ddl, err := NewSQLBuilder().BuildCreateTable(schema)
	require.NoError(t, err)
	assert.Equal(t,
		"CREATE TABLE SAK_STATISTIKK (SAK_ID BIGINT NOT NULL, STATUS VARCHAR(20) NOT NULL, MERKNAD VARCHAR(255), ENDRET_TID TIMESTAMP NOT NULL, SKJERMET SMALLINT NOT NULL)",
		ddl,
	)
}

func TestBuildCreateTable_KnownSchemas(t *testing.T) {
	for _, s := range []sink.TableSchema{sink.SakSchema, sink.BehandlingSchema} {
		_, err := NewSQLBuilder().BuildCreateTable(s)
		assert.NoError(t, err, s.Name)
	}
}

func TestBuildCreateTable_Rejects(t *testing.T) {
	b := NewSQLBuilder()

	_, err := b.BuildCreateTable(sink.TableSchema{Name: "T"})
	assert.Error(t, err, "no columns")

	_, err = b.BuildCreateTable(sink.TableSchema{Name: "T; DROP TABLE X", Columns: []sink.Column{{Name: "A", Type: sink.ColumnInt}}})
	assert.Error(t, err)

	_, err = b.BuildCreateTable(sink.TableSchema{Name: "T", Columns: []sink.Column{{Name: "A", Type: "BLOB"}}})
	assert.Error(t, err)
}

func TestBuildInsert(t *testing.T) {
	at := time.Date(2026, 10, 14, 12, 30, 5, 0, time.FixedZone("CEST", 2*3600))

	query, args, err := NewSQLBuilder().BuildInsert("behandling_statistikk", sink.Row{
		"STATUS":         "UNDER_BEHANDLING",
		"BEHANDLING_ID":  int64(7),
		"SKJERMET":       true,
		"ENDRET_TID":     at,
		"SAKSBEHANDLER":  nil,
		"APENT_SPORSMAL": "Trenger svar fra søker ✓",
	})
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO BEHANDLING_STATISTIKK (APENT_SPORSMAL, BEHANDLING_ID, ENDRET_TID, SAKSBEHANDLER, SKJERMET, STATUS) VALUES (?, ?, ?, ?, ?, ?)",
		query,
	)
	assert.Equal(t, []any{
		"Trenger svar fra søker ?",
		int64(7),
		"2026-10-14 10:30:05",
		nil,
		1,
		"UNDER_BEHANDLING",
	}, args)
}

func TestBuildInsert_Rejects(t *testing.T) {
	b := NewSQLBuilder()

	_, _, err := b.BuildInsert("T", sink.Row{})
	assert.Error(t, err)

	_, _, err = b.BuildInsert("T", sink.Row{"A B": 1})
	assert.Error(t, err)
}

func TestBuildSelectAll(t *testing.T) {
	q, err := NewSQLBuilder().BuildSelectAll(sink.TableSchema{
		Name:    "SAK_STATISTIKK",
		Columns: []sink.Column{{Name: "SAK_ID"}, {Name: "STATUS"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT SAK_ID, STATUS FROM SAK_STATISTIKK", q)

	q, err = NewSQLBuilder().BuildSelectAll(sink.TableSchema{Name: "X"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM X", q)
}

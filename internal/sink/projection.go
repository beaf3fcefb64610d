package sink

import (
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
)

const (
	SakTable        = "SAK_STATISTIKK"
	BehandlingTable = "BEHANDLING_STATISTIKK"
)

var SakSchema = TableSchema{
	Name: SakTable,
	Columns: []Column{
		{Name: "SAK_ID", Type: ColumnInt},
		{Name: "SAK_VERSJON", Type: ColumnInt},
		{Name: "SAKSNUMMER", Type: ColumnText, Size: models.MaxSaksnummerLen},
		{Name: "PERSON_ID", Type: ColumnInt},
		{Name: "STATUS", Type: ColumnText, Size: 20},
		{Name: "ENDRET_TID", Type: ColumnTimestamp},
	},
}

var BehandlingSchema = TableSchema{
	Name: BehandlingTable,
	Columns: []Column{
		{Name: "BEHANDLING_HISTORIKK_ID", Type: ColumnInt},
		{Name: "BEHANDLING_ID", Type: ColumnInt},
		{Name: "REFERANSE", Type: ColumnText, Size: 36},
		{Name: "SAK_ID", Type: ColumnInt},
		{Name: "SAKSNUMMER", Type: ColumnText, Size: models.MaxSaksnummerLen},
		{Name: "PERSON_IDENT", Type: ColumnText, Size: models.MaxIdentLen, Nullable: true},
		{Name: "TYPE", Type: ColumnText, Size: 20},
		{Name: "SOKNADSFORMAT", Type: ColumnText, Size: 10},
		{Name: "STATUS", Type: ColumnText, Size: 20},
		{Name: "SAKSBEHANDLER", Type: ColumnText, Size: models.MaxSaksbehandlerLen, Nullable: true},
		{Name: "APENT_SPORSMAL", Type: ColumnText, Size: models.MaxFritekstLen, Nullable: true},
		{Name: "VENTEAARSAK", Type: ColumnText, Size: models.MaxFritekstLen, Nullable: true},
		{Name: "RELATERT_BEHANDLING_ID", Type: ColumnInt, Nullable: true},
		{Name: "OPPRETTET_TID", Type: ColumnTimestamp},
		{Name: "MOTTATT_TID", Type: ColumnTimestamp},
		{Name: "ENDRET_TID", Type: ColumnTimestamp},
		{Name: "SKJERMET", Type: ColumnBool},
	},
}

// SakRad projects one version of a case. The row depends on committed state only, so delivering
// the same version twice yields the same row
func SakRad(s models.Sak) Row {
	return Row{
		"SAK_ID":      s.ID,
		"SAK_VERSJON": s.Versjon,
		"SAKSNUMMER":  s.Saksnummer,
		"PERSON_ID":   s.PersonID,
		"STATUS":      string(s.Status),
		"ENDRET_TID":  s.EndretTid.UTC(),
	}
}

// BehandlingRad projects one unit snapshot. Mutable columns come from snap so an old snapshot
// projects the row it produced when it was current. Screened snapshots are projected without the
// person ident and the caseworker
func BehandlingRad(b models.Behandling, s models.Sak, snap models.Snapshot, ident string) Row {
	row := Row{
		"BEHANDLING_HISTORIKK_ID": snap.ID,
		"BEHANDLING_ID":           b.ID,
		"REFERANSE":               b.Referanse.String(),
		"SAK_ID":                  s.ID,
		"SAKSNUMMER":              s.Saksnummer,
		"PERSON_IDENT":            nil,
		"TYPE":                    string(b.Type),
		"SOKNADSFORMAT":           string(b.Soknadsformat),
		"STATUS":                  string(snap.Status),
		"SAKSBEHANDLER":           nil,
		"APENT_SPORSMAL":          optional(snap.ApentSporsmal),
		"VENTEAARSAK":             optional(snap.Venteaarsak),
		"RELATERT_BEHANDLING_ID":  nil,
		"OPPRETTET_TID":           utc(b.OpprettetTid),
		"MOTTATT_TID":             utc(b.MottattTid),
		"ENDRET_TID":              utc(snap.EndretTid),
		"SKJERMET":                snap.Skjermet,
	}
	if !snap.Skjermet {
		row["PERSON_IDENT"] = ident
		row["SAKSBEHANDLER"] = optional(snap.Saksbehandler)
	}
	if b.RelatertBehandlingID != nil {
		row["RELATERT_BEHANDLING_ID"] = *b.RelatertBehandlingID
	}
	return row
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func utc(t time.Time) time.Time { return t.UTC() }

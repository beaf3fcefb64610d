package models

import (
	"fmt"
	"strings"
	"time"
)

// Person is immutable once created and only referenced afterwards
type Person struct {
	ID    int64  `db:"id"`
	Ident string `db:"ident"`
}

type SakStatus string

const (
	SakOpprettet       SakStatus = "OPPRETTET"
	SakUnderBehandling SakStatus = "UNDER_BEHANDLING"
	SakLopende         SakStatus = "LOPENDE"
	SakAvsluttet       SakStatus = "AVSLUTTET"
)

func ParseSakStatus(s string) (SakStatus, error) {
	switch v := SakStatus(strings.ToUpper(strings.TrimSpace(s))); v {
	case SakOpprettet, SakUnderBehandling, SakLopende, SakAvsluttet:
		return v, nil
	default:
		return "", NewValidationError("sak_status", "unknown status %q", s)
	}
}

// Sak is one person's claim. Saksnummer never changes after creation, while status,
// EndretTid and Versjon move with every mutation
type Sak struct {
	ID               int64     `db:"id"`
	Saksnummer       string    `db:"saksnummer"`
	PersonID         int64     `db:"person_id"`
	Status           SakStatus `db:"status"`
	EndretTid        time.Time `db:"endret_tid"`
	Versjon          int64     `db:"versjon"`
	SinkKvitteringID *int64    `db:"sink_kvittering_id"`
}

// SnapshotKey identifies the case snapshot delivered to the sink
func (s Sak) SnapshotKey() string {
	return fmt.Sprintf("%d@%d", s.ID, s.Versjon)
}

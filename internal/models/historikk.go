package models

import "time"

// Snapshot is one behandling_historikk row. Rows are never mutated except for clearing
// Gjeldende when a newer snapshot is appended. Together with the unit's immutable columns a
// snapshot holds everything needed to rebuild the unit row it produced
type Snapshot struct {
	ID            int64            `db:"id"`
	BehandlingID  int64            `db:"behandling_id"`
	Status        BehandlingStatus `db:"status"`
	Saksbehandler *string          `db:"saksbehandler"`
	ApentSporsmal *string          `db:"apent_sporsmal"`
	Venteaarsak   *string          `db:"venteaarsak"`
	Skjermet      bool             `db:"skjermet"`
	EndretTid     time.Time        `db:"endret_tid"`
	Gjeldende     bool             `db:"gjeldende"`
}

type NyttSnapshot struct {
	BehandlingID  int64
	Status        BehandlingStatus
	Saksbehandler *string
	ApentSporsmal *string
	Venteaarsak   *string
	Skjermet      bool
	EndretTid     time.Time
}

// Kvittering proves that a snapshot reached the analytical sink. Exactly one of the case pair
// (SakID, SakVersjon) or BehandlingHistorikkID identifies the delivered snapshot
type Kvittering struct {
	ID                    int64     `db:"id"`
	SakID                 *int64    `db:"sak_id"`
	SakVersjon            *int64    `db:"sak_versjon"`
	BehandlingHistorikkID *int64    `db:"behandling_historikk_id"`
	LevertTid             time.Time `db:"levert_tid"`
}

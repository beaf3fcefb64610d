package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type BehandlingStatus string

const (
	BehandlingOpprettet       BehandlingStatus = "OPPRETTET"
	BehandlingUnderBehandling BehandlingStatus = "UNDER_BEHANDLING"
	BehandlingPaaVent         BehandlingStatus = "PAA_VENT"
	BehandlingAvsluttet       BehandlingStatus = "AVSLUTTET"
)

func ParseBehandlingStatus(s string) (BehandlingStatus, error) {
	switch v := BehandlingStatus(strings.ToUpper(strings.TrimSpace(s))); v {
	case BehandlingOpprettet, BehandlingUnderBehandling, BehandlingPaaVent, BehandlingAvsluttet:
		return v, nil
	default:
		return "", NewValidationError("status", "unknown status %q", s)
	}
}

// Open reports whether the unit still counts as work in progress
func (s BehandlingStatus) Open() bool {
	return s != BehandlingAvsluttet
}

type BehandlingType string

const (
	TypeForstegangs    BehandlingType = "FORSTEGANGS"
	TypeRevurdering    BehandlingType = "REVURDERING"
	TypeTilbakekreving BehandlingType = "TILBAKEKREVING"
	TypeKlage          BehandlingType = "KLAGE"
)

func ParseBehandlingType(s string) (BehandlingType, error) {
	switch v := BehandlingType(strings.ToUpper(strings.TrimSpace(s))); v {
	case TypeForstegangs, TypeRevurdering, TypeTilbakekreving, TypeKlage:
		return v, nil
	default:
		return "", NewValidationError("type", "unknown behandling type %q", s)
	}
}

type Soknadsformat string

const (
	FormatDigital Soknadsformat = "DIGITAL"
	FormatPapir   Soknadsformat = "PAPIR"
)

func ParseSoknadsformat(s string) (Soknadsformat, error) {
	switch v := Soknadsformat(strings.ToUpper(strings.TrimSpace(s))); v {
	case FormatDigital, FormatPapir:
		return v, nil
	case "":
		return FormatDigital, nil
	default:
		return "", NewValidationError("soknadsformat", "unknown format %q", s)
	}
}

// Behandling is one processing episode within a Sak. Referanse is supplied upstream and is the
// idempotency key for re-delivered events
type Behandling struct {
	ID                   int64            `db:"id"`
	Referanse            uuid.UUID        `db:"referanse"`
	SakID                int64            `db:"sak_id"`
	Type                 BehandlingType   `db:"type"`
	OpprettetTid         time.Time        `db:"opprettet_tid"`
	MottattTid           time.Time        `db:"mottatt_tid"`
	Soknadsformat        Soknadsformat    `db:"soknadsformat"`
	Status               BehandlingStatus `db:"status"`
	RelatertBehandlingID *int64           `db:"relatert_behandling_id"`
	ApentSporsmal        *string          `db:"apent_sporsmal"`
	Venteaarsak          *string          `db:"venteaarsak"`
	RelaterteIdenter     []string         `db:"relaterte_identer"`
	Skjermet             bool             `db:"skjermet"`
	SinkKvitteringID     *int64           `db:"sink_kvittering_id"`
}

// NyBehandling carries what ResolveUnit needs to create or refresh a unit
type NyBehandling struct {
	Referanse         uuid.UUID
	SakID             int64
	Type              BehandlingType
	OpprettetTid      time.Time
	MottattTid        time.Time
	Soknadsformat     Soknadsformat
	Status            BehandlingStatus
	RelatertReferanse *uuid.UUID
	ApentSporsmal     *string
	Venteaarsak       *string
	RelaterteIdenter  []string
	Skjermet          bool
}

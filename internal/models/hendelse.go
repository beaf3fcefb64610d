package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Hendelse is the inbound lifecycle event as decoded by the API layer
type Hendelse struct {
	Saksnummer       string     `json:"saksnummer"`
	SakStatus        string     `json:"sakStatus,omitempty"`
	BehandlingRef    uuid.UUID  `json:"behandlingReferanse"`
	RelatertRef      *uuid.UUID `json:"relatertBehandlingReferanse,omitempty"`
	BehandlingType   string     `json:"behandlingType"`
	PersonIdent      string     `json:"ident"`
	OpprettetTid     time.Time  `json:"opprettetTid"`
	MottattTid       time.Time  `json:"mottattTid"`
	Soknadsformat    string     `json:"soknadsformat,omitempty"`
	Status           string     `json:"status"`
	Saksbehandler    *string    `json:"saksbehandler,omitempty"`
	ApentSporsmal    *string    `json:"apentSporsmal,omitempty"`
	Venteaarsak      *string    `json:"venteaarsak,omitempty"`
	RelaterteIdenter []string   `json:"relaterteIdenter,omitempty"`
	HendelseTid      time.Time  `json:"hendelseTid"`
}

// ValidertHendelse is a Hendelse whose enums are parsed and whose timestamps passed the
// precision contract
type ValidertHendelse struct {
	Hendelse
	NySakStatus      *SakStatus
	Type             BehandlingType
	Format           Soknadsformat
	BehandlingStatus BehandlingStatus
	Opprettet        time.Time
}

// Longest values, in characters, the analytical sink stores for the free-form event fields
const (
	MaxSaksnummerLen    = 40
	MaxIdentLen         = 20
	MaxSaksbehandlerLen = 20
	MaxFritekstLen      = 100
)

// Validate checks the event before anything is written
func (h Hendelse) Validate() (ValidertHendelse, error) {
	v := ValidertHendelse{Hendelse: h}

	if strings.TrimSpace(h.Saksnummer) == "" {
		return v, NewValidationError("saksnummer", "is required")
	}
	if strings.TrimSpace(h.PersonIdent) == "" {
		return v, NewValidationError("ident", "is required")
	}
	if h.BehandlingRef == uuid.Nil {
		return v, NewValidationError("behandlingReferanse", "is required")
	}
	if err := checkLengths(h); err != nil {
		return v, err
	}
	if h.HendelseTid.IsZero() {
		return v, NewValidationError("hendelseTid", "is required")
	}
	if err := RequireSecondPrecision("mottattTid", h.MottattTid); err != nil {
		return v, err
	}
	if h.OpprettetTid.IsZero() {
		return v, NewValidationError("opprettetTid", "is required")
	}
	v.Opprettet = h.OpprettetTid.Truncate(time.Second)

	var err error
	if v.Type, err = ParseBehandlingType(h.BehandlingType); err != nil {
		return v, err
	}
	if v.BehandlingStatus, err = ParseBehandlingStatus(h.Status); err != nil {
		return v, err
	}
	if v.Format, err = ParseSoknadsformat(h.Soknadsformat); err != nil {
		return v, err
	}
	if h.SakStatus != "" {
		s, err := ParseSakStatus(h.SakStatus)
		if err != nil {
			return v, err
		}
		v.NySakStatus = &s
	}
	return v, nil
}

// checkLengths rejects values the sink could never store. Accepting them would park a sync job
// that fails on every attempt
func checkLengths(h Hendelse) error {
	fields := []struct {
		name  string
		value *string
		max   int
	}{
		{"saksnummer", ptr(strings.TrimSpace(h.Saksnummer)), MaxSaksnummerLen},
		{"ident", ptr(strings.TrimSpace(h.PersonIdent)), MaxIdentLen},
		{"saksbehandler", h.Saksbehandler, MaxSaksbehandlerLen},
		{"apentSporsmal", h.ApentSporsmal, MaxFritekstLen},
		{"venteaarsak", h.Venteaarsak, MaxFritekstLen},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if n := utf8.RuneCountInString(*f.value); n > f.max {
			return NewValidationError(f.name, "is %d characters, at most %d allowed", n, f.max)
		}
	}
	return nil
}

func ptr(s string) *string { return &s }

package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validHendelse() Hendelse {
	at := time.Date(2026, 10, 12, 9, 30, 0, 0, time.UTC)
	return Hendelse{
		Saksnummer:     "SAK-1",
		BehandlingRef:  uuid.New(),
		BehandlingType: "forstegangs",
		PersonIdent:    "12345678901",
		OpprettetTid:   at.Add(123 * time.Millisecond),
		MottattTid:     at,
		Status:         "UNDER_BEHANDLING",
		HendelseTid:    at,
	}
}

func TestValidate_Accepts(t *testing.T) {
	h := validHendelse()
	h.SakStatus = "lopende"

	v, err := h.Validate()
	require.NoError(t, err)

	assert.Equal(t, TypeForstegangs, v.Type)
	assert.Equal(t, BehandlingUnderBehandling, v.BehandlingStatus)
	assert.Equal(t, FormatDigital, v.Format)
	require.NotNil(t, v.NySakStatus)
	assert.Equal(t, SakLopende, *v.NySakStatus)
	assert.Zero(t, v.Opprettet.Nanosecond(), "creation time is truncated to whole seconds")
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *Hendelse)
		field  string
	}{
		{"missing saksnummer", func(h *Hendelse) { h.Saksnummer = " " }, "saksnummer"},
		{"missing ident", func(h *Hendelse) { h.PersonIdent = "" }, "ident"},
		{"missing reference", func(h *Hendelse) { h.BehandlingRef = uuid.Nil }, "behandlingReferanse"},
		{"missing event time", func(h *Hendelse) { h.HendelseTid = time.Time{} }, "hendelseTid"},
		{"sub-second received time", func(h *Hendelse) { h.MottattTid = h.MottattTid.Add(time.Millisecond) }, "mottattTid"},
		{"missing received time", func(h *Hendelse) { h.MottattTid = time.Time{} }, "mottattTid"},
		{"missing creation time", func(h *Hendelse) { h.OpprettetTid = time.Time{} }, "opprettetTid"},
		{"unknown type", func(h *Hendelse) { h.BehandlingType = "SOKNAD" }, "type"},
		{"unknown status", func(h *Hendelse) { h.Status = "DONE" }, "status"},
		{"unknown format", func(h *Hendelse) { h.Soknadsformat = "FAX" }, "soknadsformat"},
		{"unknown case status", func(h *Hendelse) { h.SakStatus = "ARKIVERT" }, "sak_status"},
		{"overlong saksnummer", func(h *Hendelse) { h.Saksnummer = strings.Repeat("S", MaxSaksnummerLen+1) }, "saksnummer"},
		{"overlong ident", func(h *Hendelse) { h.PersonIdent = strings.Repeat("1", MaxIdentLen+1) }, "ident"},
		{"overlong caseworker", func(h *Hendelse) { h.Saksbehandler = text(MaxSaksbehandlerLen + 1) }, "saksbehandler"},
		{"overlong open question", func(h *Hendelse) { h.ApentSporsmal = text(MaxFritekstLen + 1) }, "apentSporsmal"},
		{"overlong wait reason", func(h *Hendelse) { h.Venteaarsak = text(MaxFritekstLen + 1) }, "venteaarsak"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := validHendelse()
			tt.mutate(&h)

			_, err := h.Validate()
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestValidate_LengthLimitsCountCharacters(t *testing.T) {
	h := validHendelse()
	h.Venteaarsak = ptr(strings.Repeat("ø", MaxFritekstLen))
	h.Saksbehandler = text(MaxSaksbehandlerLen)

	_, err := h.Validate()
	assert.NoError(t, err)
}

func text(n int) *string {
	s := strings.Repeat("x", n)
	return &s
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&AlreadyExistsError{Entity: "receipt", Key: "1"}))
	assert.True(t, IsFatal(&UnknownJobError{Kind: "X"}))
	assert.True(t, IsFatal(errors.Join(errors.New("ctx"), ErrNotFound)))
	assert.False(t, IsFatal(&ConnectionError{Err: errors.New("refused")}))
	assert.False(t, IsFatal(&SyncDeliveryError{Table: "T", Err: errors.New("down")}))
	assert.False(t, IsFatal(&TransactionError{Err: errors.New("serialization failure")}))
}

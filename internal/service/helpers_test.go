package service

import (
	"io"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/google/uuid"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// friday is the reference instant used across the service tests
var friday = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func hendelse(saksnummer string, ref uuid.UUID, status models.BehandlingStatus, at time.Time) models.Hendelse {
	return models.Hendelse{
		Saksnummer:     saksnummer,
		BehandlingRef:  ref,
		BehandlingType: string(models.TypeForstegangs),
		PersonIdent:    "12345678901",
		OpprettetTid:   at,
		MottattTid:     at,
		Status:         string(status),
		HendelseTid:    at,
	}
}

func ptr(s string) *string { return &s }

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
)

// Resolver performs the atomic get-or-create steps for person, case and unit. Every call reads
// the authoritative row inside the caller's transaction
type Resolver struct{}

func (Resolver) ResolvePerson(ctx context.Context, tx store.Tx, ident string) (int64, error) {
	id, err := tx.GetOrCreatePerson(ctx, ident)
	if err != nil {
		return 0, fmt.Errorf("resolve person: %w", err)
	}
	return id, nil
}

// ResolveCase returns the case for saksnummer, creating it with status when absent
func (Resolver) ResolveCase(ctx context.Context, tx store.Tx, saksnummer string, personID int64, status models.SakStatus, at time.Time) (models.Sak, bool, error) {
	sak, created, err := tx.GetOrCreateSak(ctx, saksnummer, personID, status, at)
	if err != nil {
		return models.Sak{}, false, fmt.Errorf("resolve sak %s: %w", saksnummer, err)
	}
	return sak, created, nil
}

// UpdateCaseStatus moves the case to status. Nothing is written when the status is unchanged
func (Resolver) UpdateCaseStatus(ctx context.Context, tx store.Tx, sak models.Sak, status models.SakStatus, at time.Time) (models.Sak, bool, error) {
	if sak.Status == status {
		return sak, false, nil
	}
	updated, err := tx.UpdateSakStatus(ctx, sak.ID, status, at)
	if err != nil {
		return sak, false, fmt.Errorf("update sak %d: %w", sak.ID, err)
	}
	return updated, true, nil
}

// ResolveUnit returns the unit for nb.Referanse, creating it when absent. The received timestamp
// must carry whole seconds; the creation timestamp is truncated to them
func (Resolver) ResolveUnit(ctx context.Context, tx store.Tx, nb models.NyBehandling) (models.Behandling, bool, error) {
	if err := models.RequireSecondPrecision("mottattTid", nb.MottattTid); err != nil {
		return models.Behandling{}, false, err
	}
	nb.OpprettetTid = nb.OpprettetTid.Truncate(time.Second)

	b, created, err := tx.GetOrCreateBehandling(ctx, nb)
	if err != nil {
		return models.Behandling{}, false, fmt.Errorf("resolve behandling %s: %w", nb.Referanse, err)
	}
	return b, created, nil
}

// RefreshUnit copies the mutable fields of nb onto an existing unit
func (Resolver) RefreshUnit(ctx context.Context, tx store.Tx, b models.Behandling, nb models.NyBehandling) (models.Behandling, error) {
	updated, err := tx.UpdateBehandling(ctx, b.ID, nb)
	if err != nil {
		return b, fmt.Errorf("refresh behandling %d: %w", b.ID, err)
	}
	return updated, nil
}

// DeriveSakStatus decides the case status an event leads to. An explicit case status wins. A unit
// being worked on or waiting puts the case under treatment. A new case starts as created and an
// existing case otherwise keeps its status
func DeriveSakStatus(current *models.SakStatus, explicit *models.SakStatus, unit models.BehandlingStatus) models.SakStatus {
	switch {
	case explicit != nil:
		return *explicit
	case unit == models.BehandlingUnderBehandling || unit == models.BehandlingPaaVent:
		return models.SakUnderBehandling
	case current == nil:
		return models.SakOpprettet
	default:
		return *current
	}
}

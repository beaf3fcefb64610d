package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/skjerming"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
	"github.com/Guizzs26/go-saksstatistikk/pkg/metrics"
)

// Resultat describes what one event changed
type Resultat struct {
	PersonID            int64
	SakID               int64
	BehandlingID        int64
	SnapshotID          int64
	SakOpprettet        bool
	SakEndret           bool
	BehandlingOpprettet bool
	// Stale is set when the event was older than the unit's current snapshot and nothing was appended
	Stale  bool
	Jobber []jobs.Job
}

// Dispatcher is the entry point for inbound events. Each event runs in exactly one transaction
type Dispatcher struct {
	store     store.Store
	skjerming skjerming.Checker
	resolver  Resolver
	historikk Historikk
	queue     JobQueue
	logger    *slog.Logger
}

func NewDispatcher(s store.Store, sk skjerming.Checker, logger *slog.Logger) *Dispatcher {
	if sk == nil {
		sk = skjerming.Disabled{}
	}
	return &Dispatcher{store: s, skjerming: sk, logger: logger}
}

func (d *Dispatcher) Handle(ctx context.Context, h models.Hendelse) (res Resultat, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		var ve *models.ValidationError
		switch {
		case errors.As(err, &ve):
			outcome = "invalid"
		case err != nil:
			outcome = "error"
		case res.Stale:
			outcome = "stale"
		}
		metrics.EventsProcessed.WithLabelValues(outcome).Inc()
		metrics.EventDuration.Observe(time.Since(start).Seconds())
	}()

	v, err := h.Validate()
	if err != nil {
		return Resultat{}, err
	}

	l := d.logger.With("saksnummer", v.Saksnummer, "behandling", v.BehandlingRef)

	skjermet, err := skjerming.AnySkjermet(ctx, d.skjerming, append([]string{v.PersonIdent}, v.RelaterteIdenter...)...)
	if err != nil {
		return Resultat{}, err
	}

	err = d.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		res, err = d.apply(ctx, tx, v, skjermet)
		return err
	})
	if err != nil {
		l.Error("Event rejected", "error", err)
		return Resultat{}, err
	}

	if res.Stale {
		metrics.StaleEvents.Inc()
		l.Warn("Event older than current snapshot, skipped", "hendelse_tid", v.HendelseTid)
		return res, nil
	}

	l.Debug("Event applied",
		"sak_id", res.SakID,
		"behandling_id", res.BehandlingID,
		"snapshot_id", res.SnapshotID,
		"jobs", len(res.Jobber),
	)
	return res, nil
}

func (d *Dispatcher) apply(ctx context.Context, tx store.Tx, v models.ValidertHendelse, skjermet bool) (Resultat, error) {
	var res Resultat
	at := v.HendelseTid

	personID, err := d.resolver.ResolvePerson(ctx, tx, v.PersonIdent)
	if err != nil {
		return res, err
	}
	res.PersonID = personID

	sak, sakCreated, err := d.resolver.ResolveCase(ctx, tx, v.Saksnummer, personID,
		DeriveSakStatus(nil, v.NySakStatus, v.BehandlingStatus), at)
	if err != nil {
		return res, err
	}
	res.SakID, res.SakOpprettet = sak.ID, sakCreated

	nb := models.NyBehandling{
		Referanse:         v.BehandlingRef,
		SakID:             sak.ID,
		Type:              v.Type,
		OpprettetTid:      v.Opprettet,
		MottattTid:        v.MottattTid,
		Soknadsformat:     v.Format,
		Status:            v.BehandlingStatus,
		RelatertReferanse: v.RelatertRef,
		ApentSporsmal:     v.ApentSporsmal,
		Venteaarsak:       v.Venteaarsak,
		RelaterteIdenter:  v.RelaterteIdenter,
		Skjermet:          skjermet,
	}
	b, unitCreated, err := d.resolver.ResolveUnit(ctx, tx, nb)
	if err != nil {
		return res, err
	}
	res.BehandlingID, res.BehandlingOpprettet = b.ID, unitCreated

	current, err := d.historikk.CurrentAsOf(ctx, tx, b.ID)
	if err != nil {
		return res, err
	}
	if Stale(current, at) {
		res.Stale = true
		return res, nil
	}

	if !unitCreated {
		if _, err := d.resolver.RefreshUnit(ctx, tx, b, nb); err != nil {
			return res, err
		}
	}

	if !sakCreated {
		next := DeriveSakStatus(&sak.Status, v.NySakStatus, v.BehandlingStatus)
		if sak, res.SakEndret, err = d.resolver.UpdateCaseStatus(ctx, tx, sak, next, at); err != nil {
			return res, err
		}
	}

	res.SnapshotID, err = d.historikk.AppendSnapshot(ctx, tx, models.NyttSnapshot{
		BehandlingID:  b.ID,
		Status:        v.BehandlingStatus,
		Saksbehandler: v.Saksbehandler,
		ApentSporsmal: v.ApentSporsmal,
		Venteaarsak:   v.Venteaarsak,
		Skjermet:      skjermet,
		EndretTid:     at,
	})
	if err != nil {
		return res, err
	}

	j, err := d.queue.EnqueueUnitSync(ctx, tx, b.ID, sak.ID)
	if err != nil {
		return res, err
	}
	res.Jobber = append(res.Jobber, j)

	if sakCreated || res.SakEndret {
		j, err := d.queue.EnqueueCaseSync(ctx, tx, sak.ID)
		if err != nil {
			return res, err
		}
		res.Jobber = append(res.Jobber, j)
	}
	return res, nil
}

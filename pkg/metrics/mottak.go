package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed counts inbound events by outcome
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saksstatistikk_events_total",
		Help: "Inbound events handled by the dispatcher",
	}, []string{"result"}) // result: ok, stale, invalid, error

	EventDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "saksstatistikk_event_duration_seconds",
		Help:    "Time from validation to commit of one event",
		Buckets: prometheus.DefBuckets,
	})

	// StaleEvents counts events older than the unit's current snapshot
	StaleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saksstatistikk_stale_events_total",
		Help: "Events skipped because they were older than the current snapshot",
	})

	// SkjermingLookups tracks the screening cache. result: hit, miss, error
	SkjermingLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saksstatistikk_skjerming_lookups_total",
		Help: "Privacy screening lookups by cache result",
	}, []string{"result"})
)

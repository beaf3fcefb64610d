// Package jobs defines the synchronization jobs the pipeline enqueues. The set of kinds is closed:
// every job is one of the types below and Decode is the only place a stored kind string is turned
// back into a typed job.
package jobs

import (
	"context"
	"fmt"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/google/uuid"
)

type Kind string

const (
	KindSakSync        Kind = "SAK_SYNC"
	KindBehandlingSync Kind = "BEHANDLING_SYNC"
	KindSakVersjon     Kind = "SAK_VERSJON_SYNC"
	KindSnapshot       Kind = "SNAPSHOT_SYNC"
)

// Job is implemented only by the job types in this package
type Job interface {
	Kind() Kind
	// Payload is the single scalar the handler needs
	Payload() int64
	// ConcurrencyKey serializes jobs for the same case
	ConcurrencyKey() int64
	sealed()
}

// SakSync replicates the current committed version of a case
type SakSync struct {
	SakID int64
}

func (SakSync) Kind() Kind              { return KindSakSync }
func (j SakSync) Payload() int64        { return j.SakID }
func (j SakSync) ConcurrencyKey() int64 { return j.SakID }
func (SakSync) sealed()                 {}
func (j SakSync) String() string        { return fmt.Sprintf("%s(sak=%d)", KindSakSync, j.SakID) }

// BehandlingSync replicates the current snapshot of a treatment unit
type BehandlingSync struct {
	BehandlingID int64
	SakID        int64
}

func (BehandlingSync) Kind() Kind              { return KindBehandlingSync }
func (j BehandlingSync) Payload() int64        { return j.BehandlingID }
func (j BehandlingSync) ConcurrencyKey() int64 { return j.SakID }
func (BehandlingSync) sealed()                 {}
func (j BehandlingSync) String() string {
	return fmt.Sprintf("%s(behandling=%d, sak=%d)", KindBehandlingSync, j.BehandlingID, j.SakID)
}

// SakVersjonSync replicates one committed version of a case, current or not
type SakVersjonSync struct {
	SakID   int64
	Versjon int64
}

func (SakVersjonSync) Kind() Kind              { return KindSakVersjon }
func (j SakVersjonSync) Payload() int64        { return j.Versjon }
func (j SakVersjonSync) ConcurrencyKey() int64 { return j.SakID }
func (SakVersjonSync) sealed()                 {}
func (j SakVersjonSync) String() string {
	return fmt.Sprintf("%s(sak=%d, versjon=%d)", KindSakVersjon, j.SakID, j.Versjon)
}

// SnapshotSync replicates one behandling_historikk row, current or not
type SnapshotSync struct {
	HistorikkID int64
	SakID       int64
}

func (SnapshotSync) Kind() Kind              { return KindSnapshot }
func (j SnapshotSync) Payload() int64        { return j.HistorikkID }
func (j SnapshotSync) ConcurrencyKey() int64 { return j.SakID }
func (SnapshotSync) sealed()                 {}
func (j SnapshotSync) String() string {
	return fmt.Sprintf("%s(historikk=%d, sak=%d)", KindSnapshot, j.HistorikkID, j.SakID)
}

// Decode turns a stored job record back into its typed job
func Decode(e Entry) (Job, error) {
	switch e.Kind {
	case KindSakSync:
		return SakSync{SakID: e.Payload}, nil
	case KindBehandlingSync:
		return BehandlingSync{BehandlingID: e.Payload, SakID: e.ConcurrencyKey}, nil
	case KindSakVersjon:
		return SakVersjonSync{SakID: e.ConcurrencyKey, Versjon: e.Payload}, nil
	case KindSnapshot:
		return SnapshotSync{HistorikkID: e.Payload, SakID: e.ConcurrencyKey}, nil
	default:
		return nil, &models.UnknownJobError{Kind: string(e.Kind)}
	}
}

// Handler executes one kind of job each
type Handler interface {
	HandleSak(ctx context.Context, j SakSync) error
	HandleBehandling(ctx context.Context, j BehandlingSync) error
	HandleSakVersjon(ctx context.Context, j SakVersjonSync) error
	HandleSnapshot(ctx context.Context, j SnapshotSync) error
}

// Dispatch routes j to the matching Handler method
func Dispatch(ctx context.Context, h Handler, j Job) error {
	switch v := j.(type) {
	case SakSync:
		return h.HandleSak(ctx, v)
	case BehandlingSync:
		return h.HandleBehandling(ctx, v)
	case SakVersjonSync:
		return h.HandleSakVersjon(ctx, v)
	case SnapshotSync:
		return h.HandleSnapshot(ctx, v)
	default:
		return &models.UnknownJobError{Kind: string(j.Kind())}
	}
}

// NewEntry builds the job record for j with a fresh correlation id
func NewEntry(j Job) Entry {
	return Entry{
		CorrelationID:  uuid.NewString(),
		Kind:           j.Kind(),
		Payload:        j.Payload(),
		ConcurrencyKey: j.ConcurrencyKey(),
		Status:         StatusPending,
	}
}

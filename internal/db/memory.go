package db

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"

	"github.com/google/uuid"
)

// MemoryStore is an in-process implementation of store.Store and of the outbox relay contract.
// Transactions run one at a time against a private copy of the state that replaces the shared
// state only on commit, so a failed unit of work leaves nothing behind
type MemoryStore struct {
	mu         sync.Mutex
	state      *memState
	now        func() time.Time
	failCommit error
}

var _ store.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: func() time.Time { return time.Now().UTC() }}
}

// SetClock replaces the clock used for receipt and claim timestamps
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailNextCommit makes the next transaction fail at commit with err
func (m *MemoryStore) FailNextCommit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCommit = err
}

type memJob struct {
	entry     jobs.Entry
	claimedAt time.Time
	errorLog  string
}

type memState struct {
	seq          map[string]int64
	persons      map[string]int64
	saker        map[int64]models.Sak
	sakVersjoner map[int64][]models.Sak
	sakByNr      map[string]int64
	behandlinger map[int64]models.Behandling
	behByRef     map[uuid.UUID]int64
	historikk    []models.Snapshot
	kvitteringer []models.Kvittering
	jobber       []memJob
}

func newMemState() *memState {
	return &memState{
		seq:          map[string]int64{},
		persons:      map[string]int64{},
		saker:        map[int64]models.Sak{},
		sakVersjoner: map[int64][]models.Sak{},
		sakByNr:      map[string]int64{},
		behandlinger: map[int64]models.Behandling{},
		behByRef:     map[uuid.UUID]int64{},
	}
}

func (s *memState) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:          make(map[string]int64, len(s.seq)),
		persons:      make(map[string]int64, len(s.persons)),
		saker:        make(map[int64]models.Sak, len(s.saker)),
		sakVersjoner: make(map[int64][]models.Sak, len(s.sakVersjoner)),
		sakByNr:      make(map[string]int64, len(s.sakByNr)),
		behandlinger: make(map[int64]models.Behandling, len(s.behandlinger)),
		behByRef:     make(map[uuid.UUID]int64, len(s.behByRef)),
		historikk:    slices.Clone(s.historikk),
		kvitteringer: slices.Clone(s.kvitteringer),
		jobber:       slices.Clone(s.jobber),
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.persons {
		c.persons[k] = v
	}
	for k, v := range s.saker {
		c.saker[k] = v
	}
	for k, v := range s.sakVersjoner {
		c.sakVersjoner[k] = slices.Clone(v)
	}
	for k, v := range s.sakByNr {
		c.sakByNr[k] = v
	}
	for k, v := range s.behandlinger {
		v.RelaterteIdenter = slices.Clone(v.RelaterteIdenter)
		c.behandlinger[k] = v
	}
	for k, v := range s.behByRef {
		c.behByRef[k] = v
	}
	return c
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return &models.ConnectionError{Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memTx{s: work, now: m.now}); err != nil {
		return err
	}
	if m.failCommit != nil {
		err := m.failCommit
		m.failCommit = nil
		return &models.TransactionError{Err: err}
	}
	m.state = work
	return nil
}

type memTx struct {
	s   *memState
	now func() time.Time
}

func (t *memTx) LockKey(ctx context.Context, key int64) error { return nil }

func (t *memTx) GetOrCreatePerson(ctx context.Context, ident string) (int64, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return 0, models.NewValidationError("ident", "is required")
	}
	if id, ok := t.s.persons[ident]; ok {
		return id, nil
	}
	id := t.s.next("person")
	t.s.persons[ident] = id
	return id, nil
}

func (t *memTx) GetOrCreateSak(ctx context.Context, saksnummer string, personID int64, status models.SakStatus, at time.Time) (models.Sak, bool, error) {
	saksnummer = strings.TrimSpace(saksnummer)
	if saksnummer == "" {
		return models.Sak{}, false, models.NewValidationError("saksnummer", "is required")
	}
	if id, ok := t.s.sakByNr[saksnummer]; ok {
		return t.s.saker[id], false, nil
	}
	if !t.personExists(personID) {
		return models.Sak{}, false, fmt.Errorf("failed to insert sak: person %d: %w", personID, models.ErrNotFound)
	}
	sak := models.Sak{
		ID:         t.s.next("sak"),
		Saksnummer: saksnummer,
		PersonID:   personID,
		Status:     status,
		EndretTid:  at,
		Versjon:    1,
	}
	t.s.saker[sak.ID] = sak
	t.s.sakVersjoner[sak.ID] = []models.Sak{sak}
	t.s.sakByNr[saksnummer] = sak.ID
	return sak, true, nil
}

func (t *memTx) personExists(id int64) bool {
	_, err := t.GetPerson(context.Background(), id)
	return err == nil
}

func (t *memTx) GetPerson(ctx context.Context, id int64) (models.Person, error) {
	for ident, v := range t.s.persons {
		if v == id {
			return models.Person{ID: id, Ident: ident}, nil
		}
	}
	return models.Person{}, fmt.Errorf("person %d: %w", id, models.ErrNotFound)
}

func (t *memTx) GetSak(ctx context.Context, id int64) (models.Sak, error) {
	sak, ok := t.s.saker[id]
	if !ok {
		return models.Sak{}, fmt.Errorf("sak %d: %w", id, models.ErrNotFound)
	}
	return sak, nil
}

func (t *memTx) UpdateSakStatus(ctx context.Context, id int64, status models.SakStatus, at time.Time) (models.Sak, error) {
	sak, ok := t.s.saker[id]
	if !ok {
		return models.Sak{}, fmt.Errorf("sak %d: %w", id, models.ErrNotFound)
	}
	sak.Status = status
	sak.EndretTid = at
	sak.Versjon++
	t.s.saker[id] = sak
	t.s.sakVersjoner[id] = append(t.s.sakVersjoner[id], sak)
	return sak, nil
}

func (t *memTx) GetSakVersjon(ctx context.Context, id, versjon int64) (models.Sak, error) {
	cur, ok := t.s.saker[id]
	if !ok {
		return models.Sak{}, fmt.Errorf("sak %d: %w", id, models.ErrNotFound)
	}
	for _, v := range t.s.sakVersjoner[id] {
		if v.Versjon == versjon {
			v.SinkKvitteringID = cur.SinkKvitteringID
			return v, nil
		}
	}
	return models.Sak{}, fmt.Errorf("sak %d version %d: %w", id, versjon, models.ErrNotFound)
}

func (t *memTx) SetSakKvittering(ctx context.Context, id int64, kvitteringID int64) error {
	sak, ok := t.s.saker[id]
	if !ok {
		return fmt.Errorf("sak %d: %w", id, models.ErrNotFound)
	}
	sak.SinkKvitteringID = &kvitteringID
	t.s.saker[id] = sak
	return nil
}

func (t *memTx) GetOrCreateBehandling(ctx context.Context, nb models.NyBehandling) (models.Behandling, bool, error) {
	if err := models.RequireSecondPrecision("mottatt_tid", nb.MottattTid); err != nil {
		return models.Behandling{}, false, err
	}
	if err := models.RequireSecondPrecision("opprettet_tid", nb.OpprettetTid); err != nil {
		return models.Behandling{}, false, err
	}
	if id, ok := t.s.behByRef[nb.Referanse]; ok {
		return t.s.behandlinger[id], false, nil
	}
	if _, ok := t.s.saker[nb.SakID]; !ok {
		return models.Behandling{}, false, fmt.Errorf("failed to insert behandling: sak %d: %w", nb.SakID, models.ErrNotFound)
	}

	b := models.Behandling{
		ID:               t.s.next("behandling"),
		Referanse:        nb.Referanse,
		SakID:            nb.SakID,
		Type:             nb.Type,
		OpprettetTid:     nb.OpprettetTid,
		MottattTid:       nb.MottattTid,
		Soknadsformat:    nb.Soknadsformat,
		Status:           nb.Status,
		ApentSporsmal:    nb.ApentSporsmal,
		Venteaarsak:      nb.Venteaarsak,
		RelaterteIdenter: slices.Clone(nb.RelaterteIdenter),
		Skjermet:         nb.Skjermet,
	}
	if b.RelaterteIdenter == nil {
		b.RelaterteIdenter = []string{}
	}
	if nb.RelatertReferanse != nil {
		if id, ok := t.s.behByRef[*nb.RelatertReferanse]; ok {
			b.RelatertBehandlingID = &id
		}
	}
	t.s.behandlinger[b.ID] = b
	t.s.behByRef[b.Referanse] = b.ID
	return b, true, nil
}

func (t *memTx) GetBehandling(ctx context.Context, id int64) (models.Behandling, error) {
	b, ok := t.s.behandlinger[id]
	if !ok {
		return models.Behandling{}, fmt.Errorf("behandling %d: %w", id, models.ErrNotFound)
	}
	return b, nil
}

func (t *memTx) GetBehandlingByReferanse(ctx context.Context, ref uuid.UUID) (models.Behandling, error) {
	id, ok := t.s.behByRef[ref]
	if !ok {
		return models.Behandling{}, fmt.Errorf("behandling %s: %w", ref, models.ErrNotFound)
	}
	return t.s.behandlinger[id], nil
}

func (t *memTx) UpdateBehandling(ctx context.Context, id int64, nb models.NyBehandling) (models.Behandling, error) {
	b, ok := t.s.behandlinger[id]
	if !ok {
		return models.Behandling{}, fmt.Errorf("behandling %d: %w", id, models.ErrNotFound)
	}
	b.Status = nb.Status
	b.ApentSporsmal = nb.ApentSporsmal
	b.Venteaarsak = nb.Venteaarsak
	b.RelaterteIdenter = slices.Clone(nb.RelaterteIdenter)
	if b.RelaterteIdenter == nil {
		b.RelaterteIdenter = []string{}
	}
	b.Skjermet = nb.Skjermet
	t.s.behandlinger[id] = b
	return b, nil
}

func (t *memTx) SetBehandlingKvittering(ctx context.Context, id int64, kvitteringID int64) error {
	b, ok := t.s.behandlinger[id]
	if !ok {
		return fmt.Errorf("behandling %d: %w", id, models.ErrNotFound)
	}
	b.SinkKvitteringID = &kvitteringID
	t.s.behandlinger[id] = b
	return nil
}

func (t *memTx) ClearCurrentSnapshot(ctx context.Context, behandlingID int64) (int64, error) {
	for i := range t.s.historikk {
		h := &t.s.historikk[i]
		if h.BehandlingID == behandlingID && h.Gjeldende {
			h.Gjeldende = false
			return h.ID, nil
		}
	}
	return 0, nil
}

func (t *memTx) InsertSnapshot(ctx context.Context, s models.NyttSnapshot) (int64, error) {
	if _, ok := t.s.behandlinger[s.BehandlingID]; !ok {
		return 0, fmt.Errorf("failed to insert snapshot: behandling %d: %w", s.BehandlingID, models.ErrNotFound)
	}
	for _, h := range t.s.historikk {
		if h.BehandlingID == s.BehandlingID && h.Gjeldende {
			return 0, fmt.Errorf("failed to insert snapshot: %w",
				&models.AlreadyExistsError{Entity: "current snapshot", Key: fmt.Sprint(s.BehandlingID)})
		}
	}
	row := models.Snapshot{
		ID:            t.s.next("historikk"),
		BehandlingID:  s.BehandlingID,
		Status:        s.Status,
		Saksbehandler: s.Saksbehandler,
		ApentSporsmal: s.ApentSporsmal,
		Venteaarsak:   s.Venteaarsak,
		Skjermet:      s.Skjermet,
		EndretTid:     s.EndretTid,
		Gjeldende:     true,
	}
	t.s.historikk = append(t.s.historikk, row)
	return row.ID, nil
}

func (t *memTx) CurrentSnapshot(ctx context.Context, behandlingID int64) (*models.Snapshot, error) {
	for _, h := range t.s.historikk {
		if h.BehandlingID == behandlingID && h.Gjeldende {
			return &h, nil
		}
	}
	return nil, nil
}

func (t *memTx) GetSnapshot(ctx context.Context, id int64) (models.Snapshot, error) {
	for _, h := range t.s.historikk {
		if h.ID == id {
			return h, nil
		}
	}
	return models.Snapshot{}, fmt.Errorf("snapshot %d: %w", id, models.ErrNotFound)
}

func (t *memTx) ListSnapshots(ctx context.Context, behandlingID int64) ([]models.Snapshot, error) {
	var out []models.Snapshot
	for _, h := range t.s.historikk {
		if h.BehandlingID == behandlingID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *memTx) FindSakKvittering(ctx context.Context, sakID, versjon int64) (*models.Kvittering, error) {
	for _, k := range t.s.kvitteringer {
		if k.SakID != nil && *k.SakID == sakID && k.SakVersjon != nil && *k.SakVersjon == versjon {
			return &k, nil
		}
	}
	return nil, nil
}

func (t *memTx) FindBehandlingKvittering(ctx context.Context, historikkID int64) (*models.Kvittering, error) {
	for _, k := range t.s.kvitteringer {
		if k.BehandlingHistorikkID != nil && *k.BehandlingHistorikkID == historikkID {
			return &k, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertKvittering(ctx context.Context, k models.Kvittering) (int64, error) {
	var existing *models.Kvittering
	var err error
	switch {
	case k.BehandlingHistorikkID != nil && k.SakID == nil:
		existing, err = t.FindBehandlingKvittering(ctx, *k.BehandlingHistorikkID)
	case k.SakID != nil && k.SakVersjon != nil && k.BehandlingHistorikkID == nil:
		existing, err = t.FindSakKvittering(ctx, *k.SakID, *k.SakVersjon)
	default:
		return 0, models.NewValidationError("kvittering", "must reference exactly one snapshot")
	}
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("failed to insert receipt: %w", &models.AlreadyExistsError{Entity: "receipt", Key: kvitteringKey(k)})
	}
	k.ID = t.s.next("kvittering")
	if k.LevertTid.IsZero() {
		k.LevertTid = t.now()
	}
	t.s.kvitteringer = append(t.s.kvitteringer, k)
	return k.ID, nil
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (t *memTx) ListKvitteringer(ctx context.Context, from, to time.Time) ([]models.Kvittering, error) {
	var out []models.Kvittering
	for _, k := range t.s.kvitteringer {
		if inWindow(k.LevertTid, from, to) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (t *memTx) DeleteKvitteringer(ctx context.Context, from, to time.Time) ([]models.Kvittering, error) {
	var deleted []models.Kvittering
	kept := t.s.kvitteringer[:0:0]
	for _, k := range t.s.kvitteringer {
		if inWindow(k.LevertTid, from, to) {
			deleted = append(deleted, k)
			continue
		}
		kept = append(kept, k)
	}
	t.s.kvitteringer = kept

	// ON DELETE SET NULL
	gone := map[int64]bool{}
	for _, k := range deleted {
		gone[k.ID] = true
	}
	for id, sak := range t.s.saker {
		if sak.SinkKvitteringID != nil && gone[*sak.SinkKvitteringID] {
			sak.SinkKvitteringID = nil
			t.s.saker[id] = sak
		}
	}
	for id, b := range t.s.behandlinger {
		if b.SinkKvitteringID != nil && gone[*b.SinkKvitteringID] {
			b.SinkKvitteringID = nil
			t.s.behandlinger[id] = b
		}
	}
	return deleted, nil
}

func (t *memTx) EnqueueJob(ctx context.Context, e jobs.Entry) (int64, error) {
	for _, j := range t.s.jobber {
		if j.entry.CorrelationID == e.CorrelationID {
			return 0, fmt.Errorf("failed to enqueue job: %w", &models.AlreadyExistsError{Entity: "job", Key: e.CorrelationID})
		}
	}
	e.ID = t.s.next("jobb")
	e.Status = jobs.StatusPending
	e.CreatedAt = t.now()
	t.s.jobber = append(t.s.jobber, memJob{entry: e})
	return e.ID, nil
}

func (t *memTx) DeleteJob(ctx context.Context, id int64) error {
	t.s.jobber = slices.DeleteFunc(t.s.jobber, func(j memJob) bool { return j.entry.ID == id })
	return nil
}

// Outbox relay contract

func (m *MemoryStore) FetchAndClaim(ctx context.Context, batchSize int) ([]jobs.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []jobs.Entry
	for i := range m.state.jobber {
		if len(out) >= batchSize {
			break
		}
		j := &m.state.jobber[i]
		if j.entry.Status != jobs.StatusPending {
			continue
		}
		j.entry.Status = jobs.StatusProcessing
		j.claimedAt = m.now()
		out = append(out, j.entry)
	}
	return out, nil
}

func (m *MemoryStore) update(id int64, fn func(j *memJob)) {
	for i := range m.state.jobber {
		if m.state.jobber[i].entry.ID == id {
			fn(&m.state.jobber[i])
			return
		}
	}
}

func (m *MemoryStore) MarkAsSent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update(id, func(j *memJob) { j.entry.Status = jobs.StatusSent })
	return nil
}

func (m *MemoryStore) MarkAsError(ctx context.Context, id int64, errLog string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update(id, func(j *memJob) {
		j.entry.Status = jobs.StatusError
		j.entry.Attempts++
		j.errorLog = errLog
	})
	return nil
}

func (m *MemoryStore) MarkManyAsPending(ctx context.Context, ids []int64, note string, strategy jobs.RevertStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.update(id, func(j *memJob) {
			if j.entry.Status != jobs.StatusProcessing {
				return
			}
			j.entry.Status = jobs.StatusPending
			j.claimedAt = time.Time{}
			j.errorLog = note
			if strategy == jobs.StrategyBusinessFailure {
				j.entry.Attempts++
			}
		})
	}
	return nil
}

func (m *MemoryStore) ResetStaleMessages(ctx context.Context, olderThanMin int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-time.Duration(olderThanMin) * time.Minute)
	var n int64
	for i := range m.state.jobber {
		j := &m.state.jobber[i]
		if j.entry.Status == jobs.StatusProcessing && j.claimedAt.Before(cutoff) {
			j.entry.Status = jobs.StatusPending
			j.claimedAt = time.Time{}
			j.errorLog = "stale_claim"
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) MarkAsErrorByCorrelationID(ctx context.Context, correlationID string, errLog string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.state.jobber {
		j := &m.state.jobber[i]
		if j.entry.CorrelationID == correlationID {
			j.entry.Status = jobs.StatusError
			j.errorLog = errLog
		}
	}
	return nil
}

func (m *MemoryStore) CountBacklog(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.state.jobber {
		if j.entry.Status == jobs.StatusPending || j.entry.Status == jobs.StatusProcessing {
			n++
		}
	}
	return n, nil
}

// Statistikk

func (m *MemoryStore) countPerDay(loc *time.Location, from, to time.Time, times []time.Time) []models.DayCount {
	byDate := map[models.Date]int{}
	for _, t := range times {
		if inWindow(t, from, to) {
			byDate[models.DateOf(t, loc)]++
		}
	}
	out := make([]models.DayCount, 0, len(byDate))
	for d, n := range byDate {
		out = append(out, models.DayCount{Dato: d, Antall: n})
	}
	models.SortDayCounts(out)
	return out
}

func (m *MemoryStore) CountOpenedPerDay(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.DayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var times []time.Time
	for _, b := range m.state.behandlinger {
		times = append(times, b.MottattTid)
	}
	return m.countPerDay(loc, from, to, times), nil
}

func (m *MemoryStore) CountClosedPerDay(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.DayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var times []time.Time
	for _, h := range m.state.historikk {
		if h.Gjeldende && h.Status == models.BehandlingAvsluttet {
			times = append(times, h.EndretTid)
		}
	}
	return m.countPerDay(loc, from, to, times), nil
}

func (m *MemoryStore) CountOpen(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, h := range m.state.historikk {
		if h.Gjeldende && h.Status.Open() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CurrentAgeBasis(ctx context.Context) ([]models.AldersGrunnlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AldersGrunnlag
	for _, h := range m.state.historikk {
		if !h.Gjeldende {
			continue
		}
		out = append(out, models.AldersGrunnlag{
			BehandlingID: h.BehandlingID,
			MottattTid:   m.state.behandlinger[h.BehandlingID].MottattTid,
			Status:       h.Status,
			EndretTid:    h.EndretTid,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BehandlingID < out[j].BehandlingID })
	return out, nil
}

// Inspection helpers for tests and local tooling

func (m *MemoryStore) PersonCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.persons)
}

func (m *MemoryStore) SakCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.saker)
}

func (m *MemoryStore) BehandlingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.behandlinger)
}

func (m *MemoryStore) Snapshots() []models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.historikk)
}

func (m *MemoryStore) Kvitteringer() []models.Kvittering {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.kvitteringer)
}

func (m *MemoryStore) Jobs() []jobs.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]jobs.Entry, 0, len(m.state.jobber))
	for _, j := range m.state.jobber {
		out = append(out, j.entry)
	}
	return out
}

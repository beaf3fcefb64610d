package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
	"github.com/Guizzs26/go-saksstatistikk/internal/store"
)

// Statistikk derives the production steering figures. It only reads
type Statistikk struct {
	reader store.StatistikkReader
	policy models.AgeBucketPolicy
	loc    *time.Location
	now    func() time.Time
}

func NewStatistikk(r store.StatistikkReader, policy models.AgeBucketPolicy, loc *time.Location) *Statistikk {
	if loc == nil {
		loc = time.UTC
	}
	if len(policy.Boundaries) == 0 {
		policy = models.DefaultAgeBucketPolicy()
	}
	return &Statistikk{reader: r, policy: policy, loc: loc, now: time.Now}
}

// WithClock replaces the time source
func (s *Statistikk) WithClock(now func() time.Time) *Statistikk {
	s.now = now
	return s
}

// Window returns the trailing days ending today, ascending, with the half-open instant range
// covering them
func (s *Statistikk) Window(days int) (dates []models.Date, from, to time.Time, err error) {
	if days < 1 {
		return nil, time.Time{}, time.Time{}, models.NewValidationError("dager", "must be at least 1, got %d", days)
	}
	today := models.DateOf(s.now(), s.loc)
	first := today.AddDays(-(days - 1))
	return models.DateRange(first, today), first.Start(s.loc), today.AddDays(1).Start(s.loc), nil
}

// DailyCounts returns opened and closed units per day over the trailing window. Days without
// events are present with zero
func (s *Statistikk) DailyCounts(ctx context.Context, days int) (models.DailyCounts, error) {
	dates, from, to, err := s.Window(days)
	if err != nil {
		return models.DailyCounts{}, err
	}

	opened, err := s.reader.CountOpenedPerDay(ctx, from, to, s.loc)
	if err != nil {
		return models.DailyCounts{}, fmt.Errorf("count opened: %w", err)
	}
	closed, err := s.reader.CountClosedPerDay(ctx, from, to, s.loc)
	if err != nil {
		return models.DailyCounts{}, fmt.Errorf("count closed: %w", err)
	}

	return models.DailyCounts{
		Opened: models.FillDays(opened, dates),
		Closed: models.FillDays(closed, dates),
	}, nil
}

// OpenAgeBuckets distributes the currently open units by days since they were received
func (s *Statistikk) OpenAgeBuckets(ctx context.Context) ([]models.AgeBucket, error) {
	basis, err := s.reader.CurrentAgeBasis(ctx)
	if err != nil {
		return nil, fmt.Errorf("read age basis: %w", err)
	}
	now := s.now()
	var ages []int
	for _, g := range basis {
		if g.Status.Open() {
			ages = append(ages, models.AgeDays(now.Sub(g.MottattTid)))
		}
	}
	return s.policy.Distribute(ages), nil
}

// ClosedAgeBuckets distributes the closed units by days from received to closed
func (s *Statistikk) ClosedAgeBuckets(ctx context.Context) ([]models.AgeBucket, error) {
	basis, err := s.reader.CurrentAgeBasis(ctx)
	if err != nil {
		return nil, fmt.Errorf("read age basis: %w", err)
	}
	var ages []int
	for _, g := range basis {
		if !g.Status.Open() {
			ages = append(ages, models.AgeDays(g.EndretTid.Sub(g.MottattTid)))
		}
	}
	return s.policy.Distribute(ages), nil
}

// BehandlingerPerDag reconstructs the open total for each of the trailing days
func (s *Statistikk) BehandlingerPerDag(ctx context.Context, days int) ([]models.DayTotal, error) {
	dates, _, _, err := s.Window(days)
	if err != nil {
		return nil, err
	}
	open, err := s.reader.CountOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("count open: %w", err)
	}
	counts, err := s.DailyCounts(ctx, days)
	if err != nil {
		return nil, err
	}
	return AntallBehandlingerPerDag(open, counts.Opened, counts.Closed, dates), nil
}

// AntallBehandlingerPerDag walks dates from newest to oldest starting at currentOpen. The total of
// a day includes that day's openings and closings, so the previous day's total is this day's minus
// its openings plus its closings. Only the given dates are reported; when dates is nil the dates
// present in opened or closed are used. The result is ordered newest first
func AntallBehandlingerPerDag(currentOpen int, opened, closed []models.DayCount, dates []models.Date) []models.DayTotal {
	openedBy := map[models.Date]int{}
	closedBy := map[models.Date]int{}
	for _, c := range opened {
		openedBy[c.Dato] += c.Antall
	}
	for _, c := range closed {
		closedBy[c.Dato] += c.Antall
	}

	if dates == nil {
		seen := map[models.Date]bool{}
		for _, c := range append(append([]models.DayCount(nil), opened...), closed...) {
			if !seen[c.Dato] {
				seen[c.Dato] = true
				dates = append(dates, c.Dato)
			}
		}
	}

	ordered := make([]models.DayCount, 0, len(dates))
	for _, d := range dates {
		ordered = append(ordered, models.DayCount{Dato: d})
	}
	models.SortDayCounts(ordered)

	out := make([]models.DayTotal, 0, len(ordered))
	running := currentOpen
	for i := len(ordered) - 1; i >= 0; i-- {
		d := ordered[i].Dato
		out = append(out, models.DayTotal{Dato: d, Totalt: running})
		running -= openedBy[d]
		running += closedBy[d]
	}
	return out
}

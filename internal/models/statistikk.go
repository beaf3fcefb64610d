package models

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Date is a civil date. Only the year, month and day of the underlying time are meaningful,
// always at midnight UTC
type Date struct {
	t time.Time
}

// DateOf returns the civil date of t as observed in loc
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, NewValidationError("dato", "invalid date %q", s)
	}
	return Date{t: t}, nil
}

func (d Date) AddDays(n int) Date    { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Before(o Date) bool    { return d.t.Before(o.t) }
func (d Date) After(o Date) bool     { return d.t.After(o.t) }
func (d Date) String() string        { return d.t.Format(time.DateOnly) }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.t.Year(), d.t.Month(), d.t.Day(), 0, 0, 0, 0, loc)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange lists every date from From to To inclusive, ascending
func DateRange(from, to Date) []Date {
	var out []Date
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

type DayCount struct {
	Dato   Date `json:"dato"`
	Antall int  `json:"antall"`
}

type DailyCounts struct {
	Opened []DayCount `json:"opprettet"`
	Closed []DayCount `json:"avsluttet"`
}

// FillDays returns counts for every date in dates, with zero for dates missing from counts
func FillDays(counts []DayCount, dates []Date) []DayCount {
	byDate := make(map[Date]int, len(counts))
	for _, c := range counts {
		byDate[c.Dato] += c.Antall
	}
	out := make([]DayCount, 0, len(dates))
	for _, d := range dates {
		out = append(out, DayCount{Dato: d, Antall: byDate[d]})
	}
	return out
}

// SortDayCounts orders counts ascending by date
func SortDayCounts(counts []DayCount) {
	sort.Slice(counts, func(i, j int) bool { return counts[i].Dato.Before(counts[j].Dato) })
}

type DayTotal struct {
	Dato   Date `json:"dato"`
	Totalt int  `json:"totalt"`
}

// AldersGrunnlag is the minimal view of a current snapshot needed for age bucketing
type AldersGrunnlag struct {
	BehandlingID int64
	MottattTid   time.Time
	Status       BehandlingStatus
	EndretTid    time.Time
}

type AgeBucket struct {
	Index  int    `json:"index"`
	Label  string `json:"label"`
	Antall int    `json:"antall"`
}

// AgeBucketPolicy maps an age in whole days onto a histogram bucket. Bucket i holds ages below
// Boundaries[i] and at or above Boundaries[i-1]. Ages at or beyond the last boundary land in the
// overflow bucket at index len(Boundaries)
type AgeBucketPolicy struct {
	Boundaries []int
}

// DefaultAgeBucketPolicy is one bucket per day for the first week, then widening ranges up to half a year
func DefaultAgeBucketPolicy() AgeBucketPolicy {
	return AgeBucketPolicy{Boundaries: []int{1, 2, 3, 4, 5, 6, 7, 14, 30, 60, 90, 180}}
}

func NewAgeBucketPolicy(boundaries ...int) (AgeBucketPolicy, error) {
	if len(boundaries) == 0 {
		return AgeBucketPolicy{}, NewValidationError("boundaries", "at least one boundary is required")
	}
	for i, b := range boundaries {
		if b <= 0 {
			return AgeBucketPolicy{}, NewValidationError("boundaries", "boundary %d must be positive", b)
		}
		if i > 0 && b <= boundaries[i-1] {
			return AgeBucketPolicy{}, NewValidationError("boundaries", "boundaries must be strictly ascending")
		}
	}
	return AgeBucketPolicy{Boundaries: append([]int(nil), boundaries...)}, nil
}

// AgeDays floors d to whole days. Negative ages count as zero
func AgeDays(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Index returns the bucket for an age in whole days
func (p AgeBucketPolicy) Index(days int) int {
	if days < 0 {
		days = 0
	}
	return sort.SearchInts(p.Boundaries, days+1)
}

func (p AgeBucketPolicy) Label(i int) string {
	n := len(p.Boundaries)
	if i >= n {
		return fmt.Sprintf("%d+", p.Boundaries[n-1])
	}
	lo, hi := 0, p.Boundaries[i]-1
	if i > 0 {
		lo = p.Boundaries[i-1]
	}
	if lo == hi {
		return strconv.Itoa(lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}

// Distribute counts ages per bucket. Every bucket is present, including empty ones
func (p AgeBucketPolicy) Distribute(ages []int) []AgeBucket {
	out := make([]AgeBucket, len(p.Boundaries)+1)
	for i := range out {
		out[i] = AgeBucket{Index: i, Label: p.Label(i)}
	}
	for _, a := range ages {
		out[p.Index(a)].Antall++
	}
	return out
}

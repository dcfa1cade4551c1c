package slots

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxRangeDays caps how many calendar days a single date range may span.
const MaxRangeDays = 366

var (
	ErrEmptyIntervals      = errors.New("date slot has no time slots")
	ErrOverlappingInterval = errors.New("time slots within a date slot overlap")
	ErrInvalidRange        = errors.New("invalid date range")
	ErrMissingDate         = errors.New("date slot has neither date nor date_range")
)

// Span is either a SingleDate or a DateRange. The unexported marker keeps the
// set closed so type switches over it stay exhaustive.
type Span interface {
	Dates() []Date
	First() Date
	isSpan()
}

type SingleDate struct {
	Date Date
}

func (s SingleDate) Dates() []Date { return []Date{s.Date} }
func (s SingleDate) First() Date   { return s.Date }
func (SingleDate) isSpan()         {}

// DateRange covers every calendar day from From to To inclusive.
type DateRange struct {
	From Date
	To   Date
}

func (r DateRange) Dates() []Date { return ExpandDateRange(r) }
func (r DateRange) First() Date   { return r.From }
func (DateRange) isSpan()         {}

func (r DateRange) String() string {
	return r.From.String() + " - " + r.To.String()
}

func ParseDateRange(s string) (DateRange, error) {
	// "2025-03-21 - 2025-03-23"; dates contain dashes so split on the spaced separator.
	from, to, ok := strings.Cut(s, " - ")
	if !ok {
		return DateRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	f, err := ParseDate(from)
	if err != nil {
		return DateRange{}, err
	}
	t, err := ParseDate(to)
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{From: f, To: t}, nil
}

// ExpandDateRange lists every calendar day of r in order. An inverted range is empty.
func ExpandDateRange(r DateRange) []Date {
	var dates []Date
	for d := r.From; !d.After(r.To); d = d.AddDays(1) {
		dates = append(dates, d)
		if len(dates) > MaxRangeDays {
			break
		}
	}
	return dates
}

// DateSlot pairs a Span with the hour intervals requested on each of its days.
type DateSlot struct {
	Span      Span
	Intervals []Interval
}

func NewSingleDate(d Date, intervals ...Interval) DateSlot {
	return DateSlot{Span: SingleDate{Date: d}, Intervals: intervals}
}

func NewDateRange(from, to Date, intervals ...Interval) DateSlot {
	return DateSlot{Span: DateRange{From: from, To: to}, Intervals: intervals}
}

// Dates expands the slot's span into calendar days.
func (ds DateSlot) Dates() []Date {
	if ds.Span == nil {
		return nil
	}
	return ds.Span.Dates()
}

// Validate checks the span and the interval set. Intervals must be pairwise
// disjoint; order is not checked here, Canonical fixes it.
func (ds DateSlot) Validate() error {
	switch s := ds.Span.(type) {
	case SingleDate:
		if s.Date.IsZero() {
			return ErrMissingDate
		}
	case DateRange:
		if s.From.IsZero() || s.To.IsZero() || s.To.Before(s.From) {
			return fmt.Errorf("%w: %s", ErrInvalidRange, s)
		}
		if s.From.AddDays(MaxRangeDays).Before(s.To) {
			return fmt.Errorf("%w: %s spans more than %d days", ErrInvalidRange, s, MaxRangeDays)
		}
	default:
		return ErrMissingDate
	}

	if len(ds.Intervals) == 0 {
		return ErrEmptyIntervals
	}
	for _, iv := range ds.Intervals {
		if err := iv.Validate(); err != nil {
			return err
		}
	}
	sorted := sortedCopy(ds.Intervals)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Overlaps(sorted[i]) {
			return fmt.Errorf("%w: %s and %s", ErrOverlappingInterval, sorted[i-1], sorted[i])
		}
	}
	return nil
}

// Canonical returns a copy with intervals sorted by start. Intervals are not merged.
func (ds DateSlot) Canonical() DateSlot {
	return DateSlot{Span: ds.Span, Intervals: sortedCopy(ds.Intervals)}
}

func sortedCopy(in []Interval) []Interval {
	out := make([]Interval, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start == out[j].Start {
			return out[i].End < out[j].End
		}
		return out[i].Start < out[j].Start
	})
	return out
}

type dateSlotJSON struct {
	Date      string   `json:"date,omitempty"`
	DateRange string   `json:"date_range,omitempty"`
	TimeSlots []string `json:"time_slots"`
}

func (ds DateSlot) MarshalJSON() ([]byte, error) {
	var raw dateSlotJSON
	switch s := ds.Span.(type) {
	case SingleDate:
		raw.Date = s.Date.String()
	case DateRange:
		raw.DateRange = s.String()
	default:
		return nil, ErrMissingDate
	}
	raw.TimeSlots = make([]string, 0, len(ds.Intervals))
	for _, iv := range ds.Intervals {
		raw.TimeSlots = append(raw.TimeSlots, iv.String())
	}
	return json.Marshal(raw)
}

func (ds *DateSlot) UnmarshalJSON(data []byte) error {
	var raw dateSlotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.Date != "" && raw.DateRange != "":
		return fmt.Errorf("%w: both date and date_range set", ErrInvalidRange)
	case raw.Date != "":
		d, err := ParseDate(raw.Date)
		if err != nil {
			return err
		}
		ds.Span = SingleDate{Date: d}
	case raw.DateRange != "":
		r, err := ParseDateRange(raw.DateRange)
		if err != nil {
			return err
		}
		ds.Span = r
	default:
		return ErrMissingDate
	}

	ds.Intervals = make([]Interval, 0, len(raw.TimeSlots))
	for _, s := range raw.TimeSlots {
		iv, err := ParseInterval(s)
		if err != nil {
			return err
		}
		ds.Intervals = append(ds.Intervals, iv)
	}
	return nil
}

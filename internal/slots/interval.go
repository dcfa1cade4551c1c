package slots

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

var (
	ErrInvalidInterval = errors.New("invalid time interval")
	ErrInvalidDate     = errors.New("invalid date")
)

// Interval is a half-open [Start, End) span of wall-clock minutes within one day.
type Interval struct {
	Start int
	End   int
}

// ParseInterval accepts "HH:mm-HH:mm" and "HH:mm - HH:mm". "24:00" is allowed as an end.
func ParseInterval(s string) (Interval, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	start, err := parseClock(strings.TrimSpace(parts[0]))
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	end, err := parseClock(strings.TrimSpace(parts[1]))
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// MustInterval panics on a malformed interval. Meant for tests and constants.
func MustInterval(s string) Interval {
	iv, err := ParseInterval(s)
	if err != nil {
		panic(err)
	}
	return iv
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, ErrInvalidInterval
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, ErrInvalidInterval
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func (i Interval) Validate() error {
	if i.Start < 0 || i.End > minutesPerDay || i.End <= i.Start {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, i)
	}
	return nil
}

// String renders the persisted form, e.g. "09:00 - 10:00".
func (i Interval) String() string {
	return formatClock(i.Start) + " - " + formatClock(i.End)
}

func (i Interval) StartClock() string { return formatClock(i.Start) }
func (i Interval) EndClock() string   { return formatClock(i.End) }

func (i Interval) Duration() time.Duration {
	return time.Duration(i.End-i.Start) * time.Minute
}

// Overlaps uses half-open semantics: touching intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

func IntervalsOverlap(a, b Interval) bool {
	return a.Overlaps(b)
}

func (i Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Interval) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseInterval(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf takes the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool {
	return d.In(time.UTC).Before(o.In(time.UTC))
}

func (d Date) After(o Date) bool {
	return o.Before(d)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// At combines d with a minute-of-day offset in loc.
func (d Date) At(minutes int, loc *time.Location) time.Time {
	return d.In(loc).Add(time.Duration(minutes) * time.Minute)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

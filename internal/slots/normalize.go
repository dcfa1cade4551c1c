package slots

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Slot is one (date, interval) unit of auditorium time.
type Slot struct {
	Date     Date
	Interval Interval
}

func (s Slot) String() string {
	return s.Date.String() + " " + s.Interval.String()
}

// Normalize sorts intervals in every DateSlot and merges touching ones
// (an interval ending at T joins one starting at T). The result is a view for
// presentation; conflict checks and pricing work on the unmerged slots.
func Normalize(dateSlots []DateSlot) []DateSlot {
	out := make([]DateSlot, 0, len(dateSlots))
	for _, ds := range dateSlots {
		out = append(out, DateSlot{Span: ds.Span, Intervals: mergeIntervals(ds.Intervals)})
	}
	return out
}

func mergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := sortedCopy(in)
	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Expand resolves date slots into distinct (date, interval) pairs ordered by
// date then start time. The same pair requested twice counts once.
func Expand(dateSlots []DateSlot) []Slot {
	seen := make(map[Slot]struct{})
	var out []Slot
	for _, ds := range dateSlots {
		for _, d := range ds.Dates() {
			for _, iv := range ds.Intervals {
				s := Slot{Date: d, Interval: iv}
				if _, ok := seen[s]; ok {
					continue
				}
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Interval.Start < out[j].Interval.Start
	})
	return out
}

// FirstOverlap finds two distinct requested slots that share time on the same
// date, looking across all date slots. A pair requested twice is one slot.
func FirstOverlap(dateSlots []DateSlot) (Slot, Slot, bool) {
	var widest Slot
	seen := false
	for _, s := range Expand(dateSlots) {
		if seen && widest.Date == s.Date && widest.Interval.Overlaps(s.Interval) {
			return widest, s, true
		}
		if !seen || widest.Date != s.Date || s.Interval.End > widest.Interval.End {
			widest, seen = s, true
		}
	}
	return Slot{}, Slot{}, false
}

// EarliestStart is the first requested date at its earliest interval start, in loc.
func EarliestStart(dateSlots []DateSlot, loc *time.Location) (time.Time, bool) {
	expanded := Expand(dateSlots)
	if len(expanded) == 0 {
		return time.Time{}, false
	}
	first := expanded[0]
	return first.Date.At(first.Interval.Start, loc), true
}

// Describe renders each normalized slot as a short human line, for example
// "21 March 2025 from 09:00 to 12:00" or
// "21 March 2025 to 23 March 2025 from 09:00 to 10:00, 14:00 to 16:00".
func Describe(dateSlots []DateSlot) []string {
	var lines []string
	for _, ds := range Normalize(dateSlots) {
		var when string
		switch s := ds.Span.(type) {
		case SingleDate:
			when = humanDate(s.Date)
		case DateRange:
			when = humanDate(s.From) + " to " + humanDate(s.To)
		default:
			continue
		}
		ranges := make([]string, 0, len(ds.Intervals))
		for _, iv := range ds.Intervals {
			ranges = append(ranges, fmt.Sprintf("%s to %s", iv.StartClock(), iv.EndClock()))
		}
		lines = append(lines, when+" from "+strings.Join(ranges, ", "))
	}
	return lines
}

func humanDate(d Date) string {
	return d.In(time.UTC).Format("2 January 2006")
}

package availability

import (
	"context"
	"errors"
	"sort"
	"sync"

	"ms-booking/internal/models"
	"ms-booking/internal/slots"
)

// MemoryIndex keeps occupancy in an in-process arena keyed by auditorium and date.
type MemoryIndex struct {
	mu     sync.RWMutex
	byDate map[string]map[slots.Date][]Occupancy
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{byDate: make(map[string]map[slots.Date][]Occupancy)}
}

func (m *MemoryIndex) IsFree(_ context.Context, auditoriumID string, date slots.Date, iv slots.Interval) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, occ := range m.byDate[auditoriumID][date] {
		if occ.Interval.Overlaps(iv) {
			return false, nil
		}
	}
	return true, nil
}

func (m *MemoryIndex) Commit(_ context.Context, b *models.Booking) error {
	wanted := occupancies(b)

	m.mu.Lock()
	defer m.mu.Unlock()

	dates := m.byDate[b.AuditoriumID]
	for _, want := range wanted {
		if held, clash := firstClash(want, dates[want.Date]); clash {
			return clashError(want, held)
		}
	}

	if dates == nil {
		dates = make(map[slots.Date][]Occupancy)
		m.byDate[b.AuditoriumID] = dates
	}
	for _, want := range wanted {
		if holds(dates[want.Date], want) {
			continue
		}
		dates[want.Date] = append(dates[want.Date], want)
	}
	return nil
}

func holds(existing []Occupancy, want Occupancy) bool {
	for _, occ := range existing {
		if occ.BookingID == want.BookingID && occ.Interval == want.Interval {
			return true
		}
	}
	return false
}

func (m *MemoryIndex) Release(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dates := m.byDate[b.AuditoriumID]
	for date, list := range dates {
		kept := list[:0]
		for _, occ := range list {
			if occ.BookingID != b.ID {
				kept = append(kept, occ)
			}
		}
		if len(kept) == 0 {
			delete(dates, date)
			continue
		}
		dates[date] = kept
	}
	return nil
}

func (m *MemoryIndex) Committed(_ context.Context, auditoriumID string, date slots.Date) ([]Occupancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]Occupancy(nil), m.byDate[auditoriumID][date]...)
	sortOccupancy(out)
	return out, nil
}

func (m *MemoryIndex) Booked(_ context.Context, auditoriumID string) ([]Occupancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Occupancy
	for _, list := range m.byDate[auditoriumID] {
		out = append(out, list...)
	}
	sortOccupancy(out)
	return out, nil
}

func sortOccupancy(list []Occupancy) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date.Before(list[j].Date)
		}
		return list[i].Interval.Start < list[j].Interval.Start
	})
}

func isSlotConflict(err error) bool {
	return errors.Is(err, models.ErrSlotConflict)
}

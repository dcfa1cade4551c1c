package availability

import (
	"context"
	"fmt"

	"ms-booking/internal/models"
	"ms-booking/internal/slots"
)

// Occupancy is one committed (auditorium, date, interval) claim.
type Occupancy struct {
	AuditoriumID string         `json:"auditorium_id"`
	Date         slots.Date     `json:"date"`
	Interval     slots.Interval `json:"interval"`
	BookingID    string         `json:"booking_id"`
	UserID       string         `json:"user_id"`
	EventName    string         `json:"event_name"`
}

// Index records which slots are held by approved or confirmed bookings.
type Index interface {
	IsFree(ctx context.Context, auditoriumID string, date slots.Date, iv slots.Interval) (bool, error)
	// Commit claims every slot of b. It fails with models.ErrSlotConflict when a
	// slot overlaps a claim of another booking and is a no-op for b's own claims.
	Commit(ctx context.Context, b *models.Booking) error
	// Release drops every claim tagged with b.ID. Releasing twice is a no-op.
	Release(ctx context.Context, b *models.Booking) error
	Committed(ctx context.Context, auditoriumID string, date slots.Date) ([]Occupancy, error)
	Booked(ctx context.Context, auditoriumID string) ([]Occupancy, error)
}

func occupancies(b *models.Booking) []Occupancy {
	expanded := slots.Expand(b.Dates)
	out := make([]Occupancy, 0, len(expanded))
	for _, s := range expanded {
		out = append(out, Occupancy{
			AuditoriumID: b.AuditoriumID,
			Date:         s.Date,
			Interval:     s.Interval,
			BookingID:    b.ID,
			UserID:       b.UserID,
			EventName:    b.EventName,
		})
	}
	return out
}

// firstClash returns the first existing claim of another booking that
// overlaps want.
func firstClash(want Occupancy, existing []Occupancy) (Occupancy, bool) {
	for _, occ := range existing {
		if occ.BookingID == want.BookingID {
			continue
		}
		if occ.Interval.Overlaps(want.Interval) {
			return occ, true
		}
	}
	return Occupancy{}, false
}

func clashError(want, held Occupancy) error {
	return fmt.Errorf("%w: %s %s overlaps %s held by booking %s",
		models.ErrSlotConflict, want.Date, want.Interval, held.Interval, held.BookingID)
}

// CheckFree verifies every slot b requests is free of other bookings' claims.
func CheckFree(ctx context.Context, idx Index, b *models.Booking) error {
	byDate := make(map[slots.Date][]Occupancy)
	for _, want := range occupancies(b) {
		existing, ok := byDate[want.Date]
		if !ok {
			var err error
			existing, err = idx.Committed(ctx, b.AuditoriumID, want.Date)
			if err != nil {
				return err
			}
			byDate[want.Date] = existing
		}
		if held, clash := firstClash(want, existing); clash {
			return clashError(want, held)
		}
	}
	return nil
}

// Rebuild commits every committed-status booking into idx. Used at startup
// to restore an in-process index from the store. Bookings that clash are
// skipped and returned so the caller can log them.
func Rebuild(ctx context.Context, idx Index, bookings []*models.Booking) ([]string, error) {
	var clashes []string
	for _, b := range bookings {
		if !b.Status.IsCommitted() {
			continue
		}
		if err := idx.Commit(ctx, b); err != nil {
			if isSlotConflict(err) {
				clashes = append(clashes, b.ID)
				continue
			}
			return clashes, fmt.Errorf("rebuild index with booking %s: %w", b.ID, err)
		}
	}
	return clashes, nil
}

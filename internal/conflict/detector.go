package conflict

import (
	"context"
	"fmt"

	"ms-booking/internal/availability"
	"ms-booking/internal/models"
	"ms-booking/internal/slots"
)

type BookingRef struct {
	BookingID string `json:"booking_id"`
	EventName string `json:"event_name"`
	BookedBy  string `json:"booked_by"`
}

// Comparison is one requested interval colliding with a committed one.
type Comparison struct {
	Date            slots.Date     `json:"date"`
	RequestedSlot   slots.Interval `json:"requested_slot"`
	ApprovedSlot    slots.Interval `json:"approved_slot"`
	ApprovedBooking BookingRef     `json:"approved_booking"`
}

type Report struct {
	BookingID   string       `json:"booking_id"`
	EventName   string       `json:"event_name"`
	RequestedBy string       `json:"requested_by"`
	Comparisons []Comparison `json:"comparisons"`
}

// Overlap is a requested interval colliding with another undecided request.
type Overlap struct {
	Date          slots.Date     `json:"date"`
	RequestedSlot slots.Interval `json:"requested_slot"`
	OtherSlot     slots.Interval `json:"other_slot"`
	Other         BookingRef     `json:"other_booking"`
}

type ContentionReport struct {
	BookingID string    `json:"booking_id"`
	EventName string    `json:"event_name"`
	Overlaps  []Overlap `json:"overlaps"`
}

// Lookup is the read side of the availability index.
type Lookup interface {
	Committed(ctx context.Context, auditoriumID string, date slots.Date) ([]availability.Occupancy, error)
}

// Detector compares undecided bookings with committed occupancy. It never
// writes and takes no lock, so a report may trail a concurrent approval.
type Detector struct {
	index Lookup
}

func NewDetector(index Lookup) *Detector {
	return &Detector{index: index}
}

func undecided(b *models.Booking) bool {
	return b.Status == models.StatusPending || b.Status == models.StatusWaiting
}

type dayKey struct {
	auditoriumID string
	date         slots.Date
}

// Detect reports, per booking, every requested interval that overlaps a
// committed interval on the same date. Bookings without overlaps are left out.
func (d *Detector) Detect(ctx context.Context, pending []*models.Booking) ([]Report, error) {
	cache := make(map[dayKey][]availability.Occupancy)
	committedOn := func(auditoriumID string, date slots.Date) ([]availability.Occupancy, error) {
		k := dayKey{auditoriumID, date}
		if list, ok := cache[k]; ok {
			return list, nil
		}
		list, err := d.index.Committed(ctx, auditoriumID, date)
		if err != nil {
			return nil, fmt.Errorf("load committed slots for %s on %s: %w", auditoriumID, date, err)
		}
		cache[k] = list
		return list, nil
	}

	var reports []Report
	for _, b := range pending {
		if !undecided(b) {
			continue
		}
		var comparisons []Comparison
		for _, ds := range b.Dates {
			for _, date := range ds.Dates() {
				committed, err := committedOn(b.AuditoriumID, date)
				if err != nil {
					return nil, err
				}
				for _, requested := range ds.Intervals {
					for _, occ := range committed {
						if occ.BookingID == b.ID || !requested.Overlaps(occ.Interval) {
							continue
						}
						comparisons = append(comparisons, Comparison{
							Date:          date,
							RequestedSlot: requested,
							ApprovedSlot:  occ.Interval,
							ApprovedBooking: BookingRef{
								BookingID: occ.BookingID,
								EventName: occ.EventName,
								BookedBy:  occ.UserID,
							},
						})
					}
				}
			}
		}
		if len(comparisons) > 0 {
			reports = append(reports, Report{
				BookingID:   b.ID,
				EventName:   b.EventName,
				RequestedBy: b.UserID,
				Comparisons: comparisons,
			})
		}
	}
	return reports, nil
}

// DetectContention reports undecided bookings of the same auditorium whose
// requests overlap each other. Only one of them can be approved.
func (d *Detector) DetectContention(pending []*models.Booking) []ContentionReport {
	type claim struct {
		booking *models.Booking
		slot    slots.Slot
	}
	byDay := make(map[dayKey][]claim)
	var order []*models.Booking
	for _, b := range pending {
		if !undecided(b) {
			continue
		}
		order = append(order, b)
		for _, s := range slots.Expand(b.Dates) {
			k := dayKey{b.AuditoriumID, s.Date}
			byDay[k] = append(byDay[k], claim{booking: b, slot: s})
		}
	}

	var reports []ContentionReport
	for _, b := range order {
		var overlaps []Overlap
		for _, s := range slots.Expand(b.Dates) {
			for _, other := range byDay[dayKey{b.AuditoriumID, s.Date}] {
				if other.booking.ID == b.ID || !s.Interval.Overlaps(other.slot.Interval) {
					continue
				}
				overlaps = append(overlaps, Overlap{
					Date:          s.Date,
					RequestedSlot: s.Interval,
					OtherSlot:     other.slot.Interval,
					Other: BookingRef{
						BookingID: other.booking.ID,
						EventName: other.booking.EventName,
						BookedBy:  other.booking.UserID,
					},
				})
			}
		}
		if len(overlaps) > 0 {
			reports = append(reports, ContentionReport{BookingID: b.ID, EventName: b.EventName, Overlaps: overlaps})
		}
	}
	return reports
}

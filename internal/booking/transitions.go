package booking

import (
	"fmt"
	"time"

	"ms-booking/internal/models"
)

const (
	NonPaymentReason   = "cancelled for non-payment"
	StalePendingReason = "no administrative action taken within 24 hours"
	RequesterReason    = "cancelled by requester"
)

var allowed = map[models.Status][]models.Status{
	models.StatusPending:   {models.StatusApproved, models.StatusConfirmed, models.StatusRejected, models.StatusWaiting},
	models.StatusWaiting:   {models.StatusApproved, models.StatusConfirmed, models.StatusRejected},
	models.StatusApproved:  {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusCancelled},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another. Pending and Waiting may jump to Confirmed through a fully
// discounted approval.
func CanTransition(from, to models.Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// index side effect of a transition
type indexEffect int

const (
	indexNone indexEffect = iota
	indexClaim
	indexRelease
)

// transition describes one lifecycle move. apply mutates a copy of the
// booking and returns the notification type to emit.
type transition struct {
	name   string
	from   []models.Status
	locked bool
	effect indexEffect
	apply  func(b *models.Booking, now time.Time) (models.EventType, error)
}

func (t transition) permits(s models.Status) bool {
	for _, f := range t.from {
		if f == s {
			return true
		}
	}
	return false
}

func (t transition) refuse(b *models.Booking) error {
	return fmt.Errorf("%w: cannot %s booking %s in status %s", models.ErrInvalidTransition, t.name, b.ID, b.Status)
}

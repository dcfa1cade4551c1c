package refund

import (
	"time"

	"ms-booking/internal/pricing"
	"ms-booking/internal/slots"
)

// Tier grants Percent of the paid amount when at least Before remains until the event.
type Tier struct {
	Before  time.Duration
	Percent float64
}

// DefaultTiers is ordered from the most generous tier down. Lower bounds are inclusive.
var DefaultTiers = []Tier{
	{Before: 24 * time.Hour, Percent: 100},
	{Before: 12 * time.Hour, Percent: 50},
	{Before: 6 * time.Hour, Percent: 30},
}

type Policy struct {
	Tiers    []Tier
	Location *time.Location
}

func NewPolicy(loc *time.Location) *Policy {
	if loc == nil {
		loc = time.UTC
	}
	return &Policy{Tiers: DefaultTiers, Location: loc}
}

// Percent picks the tier for the time left between cancelledAt and eventStart.
func (p *Policy) Percent(cancelledAt, eventStart time.Time) float64 {
	remaining := eventStart.Sub(cancelledAt)
	for _, tier := range p.Tiers {
		if remaining >= tier.Before {
			return tier.Percent
		}
	}
	return 0
}

func (p *Policy) Compute(cancelledAt, eventStart time.Time, paid float64) float64 {
	return pricing.RoundMinor(paid * p.Percent(cancelledAt, eventStart) / 100)
}

// ForBooking resolves the event start from the earliest requested slot in the
// venue time zone. A booking without slots refunds nothing.
func (p *Policy) ForBooking(dateSlots []slots.DateSlot, cancelledAt time.Time, paid float64) float64 {
	start, ok := slots.EarliestStart(dateSlots, p.Location)
	if !ok {
		return 0
	}
	return p.Compute(cancelledAt, start, paid)
}

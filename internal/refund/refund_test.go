package refund

import (
	"testing"
	"time"

	"ms-booking/internal/slots"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_TierBoundaries(t *testing.T) {
	p := NewPolicy(time.UTC)
	eventStart := time.Date(2025, 3, 21, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		before time.Duration
		want   float64
	}{
		{name: "two days out", before: 48 * time.Hour, want: 1000},
		{name: "exactly 24h", before: 24 * time.Hour, want: 1000},
		{name: "23h59m", before: 23*time.Hour + 59*time.Minute, want: 500},
		{name: "exactly 12h", before: 12 * time.Hour, want: 500},
		{name: "11h59m", before: 11*time.Hour + 59*time.Minute, want: 300},
		{name: "exactly 6h", before: 6 * time.Hour, want: 300},
		{name: "5h59m", before: 5*time.Hour + 59*time.Minute, want: 0},
		{name: "event started", before: -time.Hour, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Compute(eventStart.Add(-tt.before), eventStart, 1000)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicy_ForBooking_UsesVenueZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	p := NewPolicy(loc)

	dates := []slots.DateSlot{
		slots.NewSingleDate(slots.MustDate("2025-03-22"), slots.MustInterval("09:00-10:00")),
		slots.NewSingleDate(slots.MustDate("2025-03-21"), slots.MustInterval("18:00-20:00")),
	}
	eventStart := time.Date(2025, 3, 21, 18, 0, 0, 0, loc)

	// The same instant expressed in UTC must land in the same tier.
	cancelledAt := eventStart.Add(-12 * time.Hour).UTC()
	assert.Equal(t, 1250.0, p.ForBooking(dates, cancelledAt, 2500))
}

func TestPolicy_ForBooking_NoSlots(t *testing.T) {
	assert.Zero(t, NewPolicy(nil).ForBooking(nil, time.Now(), 2500))
}

func TestPolicy_RoundsToMinorUnit(t *testing.T) {
	p := NewPolicy(time.UTC)
	start := time.Date(2025, 3, 21, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, 33.33, p.Compute(start.Add(-7*time.Hour), start, 111.1))
}

package conflict

import (
	"context"
	"errors"
	"testing"

	"ms-booking/internal/availability"
	"ms-booking/internal/models"
	"ms-booking/internal/slots"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var day = slots.MustDate("2025-03-21")

func booking(id string, status models.Status, dates ...slots.DateSlot) *models.Booking {
	return &models.Booking{
		ID:           id,
		AuditoriumID: "aud-1",
		UserID:       "user-" + id,
		EventName:    "event " + id,
		Dates:        dates,
		Status:       status,
	}
}

func TestDetect_ReportsOverlapsAgainstCommitted(t *testing.T) {
	ctx := context.Background()
	idx := availability.NewMemoryIndex()
	approved := booking("approved", models.StatusApproved,
		slots.NewSingleDate(day, slots.MustInterval("10:00-12:00")))
	require.NoError(t, idx.Commit(ctx, approved))

	clashing := booking("p1", models.StatusPending,
		slots.NewDateRange(day.AddDays(-1), day, slots.MustInterval("09:00-10:30"), slots.MustInterval("13:00-14:00")))
	touching := booking("p2", models.StatusPending,
		slots.NewSingleDate(day, slots.MustInterval("12:00-13:00")))

	reports, err := NewDetector(idx).Detect(ctx, []*models.Booking{clashing, touching})
	require.NoError(t, err)
	require.Len(t, reports, 1, "a booking with no overlaps is not reported")

	r := reports[0]
	assert.Equal(t, "p1", r.BookingID)
	assert.Equal(t, "event p1", r.EventName)
	require.Len(t, r.Comparisons, 1)

	c := r.Comparisons[0]
	assert.Equal(t, day, c.Date)
	assert.Equal(t, slots.MustInterval("09:00-10:30"), c.RequestedSlot)
	assert.Equal(t, slots.MustInterval("10:00-12:00"), c.ApprovedSlot)
	assert.Equal(t, BookingRef{BookingID: "approved", EventName: "event approved", BookedBy: "user-approved"}, c.ApprovedBooking)
}

func TestDetect_OneComparisonPerCommittedInterval(t *testing.T) {
	ctx := context.Background()
	idx := availability.NewMemoryIndex()
	require.NoError(t, idx.Commit(ctx, booking("a1", models.StatusApproved,
		slots.NewSingleDate(day, slots.MustInterval("09:00-10:00")))))
	require.NoError(t, idx.Commit(ctx, booking("a2", models.StatusConfirmed,
		slots.NewSingleDate(day, slots.MustInterval("10:00-11:00")))))

	wide := booking("p1", models.StatusPending, slots.NewSingleDate(day, slots.MustInterval("08:00-12:00")))
	reports, err := NewDetector(idx).Detect(ctx, []*models.Booking{wide})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Len(t, reports[0].Comparisons, 2)
}

func TestDetect_SkipsDecidedBookings(t *testing.T) {
	ctx := context.Background()
	idx := availability.NewMemoryIndex()
	require.NoError(t, idx.Commit(ctx, booking("a1", models.StatusApproved,
		slots.NewSingleDate(day, slots.MustInterval("09:00-10:00")))))

	rejected := booking("r1", models.StatusRejected, slots.NewSingleDate(day, slots.MustInterval("09:00-10:00")))
	waiting := booking("w1", models.StatusWaiting, slots.NewSingleDate(day, slots.MustInterval("09:00-10:00")))

	reports, err := NewDetector(idx).Detect(ctx, []*models.Booking{rejected, waiting})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "w1", reports[0].BookingID)
}

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) Committed(ctx context.Context, auditoriumID string, date slots.Date) ([]availability.Occupancy, error) {
	args := m.Called(ctx, auditoriumID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]availability.Occupancy), args.Error(1)
}

func TestDetect_LooksUpEachDateOnce(t *testing.T) {
	ctx := context.Background()
	lookup := new(mockLookup)
	lookup.On("Committed", ctx, "aud-1", day).Return([]availability.Occupancy{}, nil).Once()

	p1 := booking("p1", models.StatusPending, slots.NewSingleDate(day, slots.MustInterval("09:00-10:00")))
	p2 := booking("p2", models.StatusPending, slots.NewSingleDate(day, slots.MustInterval("11:00-12:00")))

	reports, err := NewDetector(lookup).Detect(ctx, []*models.Booking{p1, p2})
	require.NoError(t, err)
	assert.Empty(t, reports)
	lookup.AssertExpectations(t)
}

func TestDetect_PropagatesLookupErrors(t *testing.T) {
	ctx := context.Background()
	lookup := new(mockLookup)
	lookup.On("Committed", ctx, "aud-1", day).Return(nil, errors.New("redis down"))

	p1 := booking("p1", models.StatusPending, slots.NewSingleDate(day, slots.MustInterval("09:00-10:00")))
	_, err := NewDetector(lookup).Detect(ctx, []*models.Booking{p1})
	assert.ErrorContains(t, err, "redis down")
}

func TestDetectContention(t *testing.T) {
	p1 := booking("p1", models.StatusPending, slots.NewSingleDate(day, slots.MustInterval("09:00-11:00")))
	p2 := booking("p2", models.StatusPending, slots.NewDateRange(day, day.AddDays(1), slots.MustInterval("10:00-12:00")))
	p3 := booking("p3", models.StatusPending, slots.NewSingleDate(day, slots.MustInterval("11:00-12:00")))
	other := booking("x1", models.StatusPending, slots.NewSingleDate(day, slots.MustInterval("09:00-11:00")))
	other.AuditoriumID = "aud-2"

	reports := NewDetector(availability.NewMemoryIndex()).DetectContention([]*models.Booking{p1, p2, p3, other})

	byID := make(map[string]ContentionReport)
	for _, r := range reports {
		byID[r.BookingID] = r
	}
	require.Len(t, byID, 3)
	assert.NotContains(t, byID, "x1")

	require.Len(t, byID["p1"].Overlaps, 1)
	assert.Equal(t, "p2", byID["p1"].Overlaps[0].Other.BookingID)

	assert.Len(t, byID["p2"].Overlaps, 2)
	require.Len(t, byID["p3"].Overlaps, 1)
	assert.Equal(t, "p2", byID["p3"].Overlaps[0].Other.BookingID)
}

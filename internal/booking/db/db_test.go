package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"
	"ms-booking/internal/slots"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// Every connection to ":memory:" is its own database.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))

	t.Cleanup(func() { bunDB.Close() })
	return db.New(bunDB)
}

var baseTime = time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)

func newBooking(status models.Status, createdAt time.Time) *models.Booking {
	return &models.Booking{
		ID:           uuid.NewString(),
		AuditoriumID: "aud-1",
		UserID:       "user123",
		EventName:    "Annual Day",
		Dates: []slots.DateSlot{
			slots.NewSingleDate(slots.MustDate("2025-03-21"), slots.MustInterval("09:00-10:00")),
			slots.NewDateRange(slots.MustDate("2025-03-22"), slots.MustDate("2025-03-23"), slots.MustInterval("14:00-16:00")),
		},
		Amenities:     []string{"projector"},
		TotalAmount:   3500,
		Status:        status,
		PaymentStatus: models.PaymentNotPaid,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	b := newBooking(models.StatusPending, baseTime)
	require.NoError(t, store.CreateBooking(ctx, b))

	got, err := store.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.EventName, got.EventName)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, []string{"projector"}, got.Amenities)
	assert.Nil(t, got.PaymentDue)
	assert.Nil(t, got.DiscountPercent)

	require.Len(t, got.Dates, 2)
	_, isRange := got.Dates[1].Span.(slots.DateRange)
	assert.True(t, isRange, "date range variant must survive the round trip")
	assert.Equal(t, b.Dates[1].Intervals, got.Dates[1].Intervals)

	_, err = store.GetBookingByID(ctx, "non-existent")
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestUpdateBookingIfStatus(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	b := newBooking(models.StatusPending, baseTime)
	require.NoError(t, store.CreateBooking(ctx, b))

	due := baseTime.Add(24 * time.Hour)
	percent, amount := 10.0, 3150.0
	b.Status = models.StatusApproved
	b.PaymentStatus = models.PaymentPending
	b.PaymentDue = &due
	b.DiscountPercent = &percent
	b.DiscountAmount = &amount
	require.NoError(t, store.UpdateBookingIfStatus(ctx, b, models.StatusPending))

	got, err := store.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	require.NotNil(t, got.PaymentDue)
	assert.True(t, due.Equal(*got.PaymentDue))
	require.NotNil(t, got.DiscountAmount)
	assert.Equal(t, 3150.0, *got.DiscountAmount)

	// A second writer still expecting pending loses.
	stale := *got
	stale.Status = models.StatusRejected
	stale.RejectReason = "late"
	err = store.UpdateBookingIfStatus(ctx, &stale, models.StatusPending)
	assert.ErrorIs(t, err, models.ErrStaleState)

	got, err = store.GetBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Empty(t, got.RejectReason)

	missing := newBooking(models.StatusRejected, baseTime)
	assert.ErrorIs(t, store.UpdateBookingIfStatus(ctx, missing, models.StatusPending), models.ErrBookingNotFound)
}

func TestListings(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	pendingOld := newBooking(models.StatusPending, baseTime.Add(-30*time.Hour))
	pendingNew := newBooking(models.StatusPending, baseTime.Add(-time.Hour))

	expiredDue := baseTime.Add(-time.Minute)
	unpaid := newBooking(models.StatusApproved, baseTime.Add(-25*time.Hour))
	unpaid.PaymentStatus = models.PaymentPending
	unpaid.PaymentDue = &expiredDue

	futureDue := baseTime.Add(time.Hour)
	notDue := newBooking(models.StatusApproved, baseTime.Add(-23*time.Hour))
	notDue.PaymentStatus = models.PaymentPending
	notDue.PaymentDue = &futureDue

	confirmed := newBooking(models.StatusConfirmed, baseTime.Add(-26*time.Hour))
	confirmed.PaymentStatus = models.PaymentSuccessful
	confirmed.PaymentDue = &expiredDue

	otherAud := newBooking(models.StatusApproved, baseTime)
	otherAud.AuditoriumID = "aud-2"
	otherAud.UserID = "someone-else"

	for _, b := range []*models.Booking{pendingOld, pendingNew, unpaid, notDue, confirmed, otherAud} {
		require.NoError(t, store.CreateBooking(ctx, b))
	}

	t.Run("stale pending", func(t *testing.T) {
		got, err := store.ListStalePending(ctx, baseTime.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, pendingOld.ID, got[0].ID)
	})

	t.Run("unpaid expired", func(t *testing.T) {
		got, err := store.ListUnpaidExpired(ctx, baseTime)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, unpaid.ID, got[0].ID)
	})

	t.Run("by auditorium and status", func(t *testing.T) {
		got, err := store.ListByAuditorium(ctx, "aud-1", models.StatusApproved, models.StatusConfirmed)
		require.NoError(t, err)
		assert.Len(t, got, 3)

		all, err := store.ListByAuditorium(ctx, "aud-1")
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("by status", func(t *testing.T) {
		got, err := store.ListByStatus(ctx, models.StatusPending)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, pendingOld.ID, got[0].ID, "oldest first")
	})

	t.Run("by user", func(t *testing.T) {
		got, err := store.ListByUser(ctx, "user123")
		require.NoError(t, err)
		assert.Len(t, got, 5)
		assert.Equal(t, pendingNew.ID, got[0].ID, "newest first")
	})
}

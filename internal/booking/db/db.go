package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// ---------------- BOOKINGS ----------------

// CreateBooking → insert a new booking row
func (d *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	return err
}

// GetBookingByID → fetch one booking, models.ErrBookingNotFound when absent
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrBookingNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBookingIfStatus writes the mutable columns of b only if the stored
// status still equals expected. Zero affected rows means another writer moved
// the booking first and yields models.ErrStaleState.
func (d *DB) UpdateBookingIfStatus(ctx context.Context, b *models.Booking, expected models.Status) error {
	res, err := d.Bun.NewUpdate().
		Model(b).
		Column(
			"status", "payment_status", "payment_due", "payment_reference",
			"discount_percent", "discount_amount", "reject_reason", "cancel_reason",
			"refund_amount", "updated_at",
		).
		Where("id = ?", b.ID).
		Where("status = ?", expected).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := d.GetBookingByID(ctx, b.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: booking %s is no longer %s", models.ErrStaleState, b.ID, expected)
	}
	return nil
}

// ---------------- LISTINGS ----------------

func (d *DB) ListByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Booking, error) {
	var bookings []*models.Booking
	q := d.Bun.NewSelect().Model(&bookings).Order("created_at ASC")
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListByAuditorium → bookings of one auditorium, optionally filtered by status
func (d *DB) ListByAuditorium(ctx context.Context, auditoriumID string, statuses ...models.Status) ([]*models.Booking, error) {
	var bookings []*models.Booking
	q := d.Bun.NewSelect().
		Model(&bookings).
		Where("auditorium_id = ?", auditoriumID).
		Order("created_at ASC")
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (d *DB) ListByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListUnpaidExpired → approved bookings whose payment deadline passed before now
func (d *DB) ListUnpaidExpired(ctx context.Context, now time.Time) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.StatusApproved).
		Where("payment_status != ?", models.PaymentSuccessful).
		Where("payment_due IS NOT NULL").
		Where("payment_due < ?", now.UTC()).
		Order("payment_due ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListStalePending → pending bookings created before cutoff
func (d *DB) ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.Booking, error) {
	var bookings []*models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.StatusPending).
		Where("created_at < ?", cutoff.UTC()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

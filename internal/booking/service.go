package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/availability"
	"ms-booking/internal/conflict"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/pricing"
	"ms-booking/internal/refund"
	"ms-booking/internal/slots"
	"ms-booking/internal/utils"

	"github.com/google/uuid"
)

type Store interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingIfStatus(ctx context.Context, b *models.Booking, expected models.Status) error
	ListByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Booking, error)
	ListByAuditorium(ctx context.Context, auditoriumID string, statuses ...models.Status) ([]*models.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Booking, error)
	ListUnpaidExpired(ctx context.Context, now time.Time) ([]*models.Booking, error)
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.Booking, error)
}

type Catalog interface {
	GetAuditorium(ctx context.Context, id string) (*models.Auditorium, error)
}

// Refunder returns money to the requester after a refunded cancellation.
type Refunder interface {
	Refund(ctx context.Context, b *models.Booking, amount float64) error
}

type Settings struct {
	PaymentWindow time.Duration
	PendingTTL    time.Duration
	Location      *time.Location
}

type BookingService struct {
	DB       Store
	Index    availability.Index
	Catalog  Catalog
	Locker   Locker
	Clock    utils.Clock
	Logger   *logger.Logger
	Refunder Refunder

	settings Settings
	refunds  *refund.Policy
	notifier *dispatcher
}

func NewBookingService(
	store Store,
	index availability.Index,
	catalog Catalog,
	locker Locker,
	notifier NotificationPort,
	log *logger.Logger,
	settings Settings,
) *BookingService {
	if settings.PaymentWindow <= 0 {
		settings.PaymentWindow = 24 * time.Hour
	}
	if settings.PendingTTL <= 0 {
		settings.PendingTTL = 24 * time.Hour
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &BookingService{
		DB:       store,
		Index:    index,
		Catalog:  catalog,
		Locker:   locker,
		Clock:    utils.RealClock{},
		Logger:   log,
		settings: settings,
		refunds:  refund.NewPolicy(settings.Location),
		notifier: &dispatcher{port: notifier, logger: log},
	}
}

func (s *BookingService) now() time.Time {
	return s.Clock.Now().UTC()
}

// Drain waits for notifications still being delivered.
func (s *BookingService) Drain() {
	s.notifier.wait()
}

// ---------------- SUBMISSION ----------------

func validateDates(dates []slots.DateSlot) ([]slots.DateSlot, error) {
	if len(dates) == 0 {
		return nil, models.NewValidationError("dates", "at least one date slot is required")
	}
	out := make([]slots.DateSlot, 0, len(dates))
	for i, ds := range dates {
		if err := ds.Validate(); err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("dates[%d]", i), err.Error())
		}
		out = append(out, ds.Canonical())
	}
	if a, b, ok := slots.FirstOverlap(out); ok {
		return nil, models.NewValidationError("dates", fmt.Sprintf("%s overlaps %s", a, b))
	}
	return out, nil
}

// Submit creates a Pending booking priced from the catalog.
func (s *BookingService) Submit(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	req.EventName = strings.TrimSpace(req.EventName)
	switch {
	case req.AuditoriumID == "":
		return nil, models.NewValidationError("auditorium_id", "is required")
	case req.UserID == "":
		return nil, models.NewValidationError("user_id", "is required")
	case req.EventName == "":
		return nil, models.NewValidationError("event_name", "is required")
	}

	dates, err := validateDates(req.Dates)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if start, ok := slots.EarliestStart(dates, s.settings.Location); ok && start.Before(now) {
		return nil, models.NewValidationError("dates", "requested slots must start in the future")
	}

	auditorium, err := s.Catalog.GetAuditorium(ctx, req.AuditoriumID)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.QuoteFor(auditorium, dates, req.Amenities)
	if err != nil {
		return nil, err
	}

	b := &models.Booking{
		ID:            uuid.NewString(),
		AuditoriumID:  req.AuditoriumID,
		UserID:        req.UserID,
		EventName:     req.EventName,
		Dates:         dates,
		Amenities:     append([]string{}, req.Amenities...),
		TotalAmount:   quote.Total,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentNotPaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.DB.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.Logger.LogBooking("SUBMIT", b.ID, fmt.Sprintf("%q for auditorium %s, total %.2f", b.EventName, b.AuditoriumID, b.TotalAmount))
	return b, nil
}

// Quote prices a prospective request without storing anything.
func (s *BookingService) Quote(ctx context.Context, auditoriumID string, req models.QuoteRequest) (*pricing.Quote, error) {
	dates, err := validateDates(req.Dates)
	if err != nil {
		return nil, err
	}
	auditorium, err := s.Catalog.GetAuditorium(ctx, auditoriumID)
	if err != nil {
		return nil, err
	}
	return pricing.QuoteFor(auditorium, dates, req.Amenities)
}

// ---------------- QUERIES ----------------

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.DB.GetBookingByID(ctx, id)
}

func (s *BookingService) ListForUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	return s.DB.ListByUser(ctx, userID)
}

func (s *BookingService) ListByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Booking, error) {
	return s.DB.ListByStatus(ctx, statuses...)
}

func (s *BookingService) BookedSlots(ctx context.Context, auditoriumID string) ([]availability.Occupancy, error) {
	return s.Index.Booked(ctx, auditoriumID)
}

// Conflicts compares undecided bookings of an auditorium with its committed slots.
func (s *BookingService) Conflicts(ctx context.Context, auditoriumID string) ([]conflict.Report, error) {
	pending, err := s.DB.ListByAuditorium(ctx, auditoriumID, models.StatusPending, models.StatusWaiting)
	if err != nil {
		return nil, err
	}
	return conflict.NewDetector(s.Index).Detect(ctx, pending)
}

// Contention lists undecided bookings of an auditorium that overlap each other.
func (s *BookingService) Contention(ctx context.Context, auditoriumID string) ([]conflict.ContentionReport, error) {
	pending, err := s.DB.ListByAuditorium(ctx, auditoriumID, models.StatusPending, models.StatusWaiting)
	if err != nil {
		return nil, err
	}
	return conflict.NewDetector(s.Index).DetectContention(pending), nil
}

// RebuildIndex restores committed claims from the store.
func (s *BookingService) RebuildIndex(ctx context.Context) error {
	committed, err := s.DB.ListByStatus(ctx, models.StatusApproved, models.StatusConfirmed)
	if err != nil {
		return err
	}
	clashes, err := availability.Rebuild(ctx, s.Index, committed)
	for _, id := range clashes {
		s.Logger.Error("INDEX", fmt.Sprintf("Booking %s overlaps another committed booking, not indexed", id))
	}
	if err != nil {
		return err
	}
	s.Logger.Info("INDEX", fmt.Sprintf("Availability index rebuilt from %d committed bookings", len(committed)-len(clashes)))
	return nil
}

// ---------------- TRANSITIONS ----------------

// run loads the booking, checks the source status, optionally serializes on
// the auditorium lock, applies the change with its index side effect and
// persists it with a check-and-set on the status read.
func (s *BookingService) run(ctx context.Context, id string, t transition) (*models.Booking, error) {
	current, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.permits(current.Status) {
		return nil, t.refuse(current)
	}

	if t.locked {
		unlock, err := s.Locker.Lock(ctx, current.AuditoriumID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		// Re-read under the lock; the status may have moved while waiting.
		if current, err = s.DB.GetBookingByID(ctx, id); err != nil {
			return nil, err
		}
		if !t.permits(current.Status) {
			return nil, t.refuse(current)
		}
	}

	// Past this point a half-applied transition is worse than a late one.
	ctx = context.WithoutCancel(ctx)

	now := s.now()
	next := current.Clone()
	event, err := t.apply(next, now)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, next.Status) {
		return nil, t.refuse(current)
	}
	next.UpdatedAt = now

	switch t.effect {
	case indexClaim:
		if err := availability.CheckFree(ctx, s.Index, next); err != nil {
			return nil, err
		}
		if err := s.Index.Commit(ctx, next); err != nil {
			return nil, err
		}
	case indexRelease:
		if err := s.Index.Release(ctx, current); err != nil {
			return nil, fmt.Errorf("release slots of booking %s: %w", id, err)
		}
	}

	if err := s.DB.UpdateBookingIfStatus(ctx, next, current.Status); err != nil {
		s.undo(ctx, t.effect, current)
		return nil, err
	}

	s.Logger.LogBooking(strings.ToUpper(t.name), id, fmt.Sprintf("%s -> %s", current.Status, next.Status))
	s.notifier.send(next, event, now)
	return next, nil
}

// undo reverts the index side effect after a failed status write.
func (s *BookingService) undo(ctx context.Context, effect indexEffect, b *models.Booking) {
	var err error
	switch effect {
	case indexClaim:
		err = s.Index.Release(ctx, b)
	case indexRelease:
		err = s.Index.Commit(ctx, b)
	}
	if err != nil {
		s.Logger.Error("INDEX", fmt.Sprintf("Failed to restore index for booking %s: %v", b.ID, err))
	}
}

// Approve claims the booking's slots and starts the payment window. A 100%
// discount confirms the booking outright with nothing to pay.
func (s *BookingService) Approve(ctx context.Context, id string, discountPercent float64) (*models.Booking, error) {
	if _, err := pricing.ApplyDiscount(0, discountPercent); err != nil {
		return nil, err
	}

	return s.run(ctx, id, transition{
		name:   "approve",
		from:   []models.Status{models.StatusPending, models.StatusWaiting},
		locked: true,
		effect: indexClaim,
		apply: func(b *models.Booking, now time.Time) (models.EventType, error) {
			amount, err := pricing.ApplyDiscount(b.TotalAmount, discountPercent)
			if err != nil {
				return "", err
			}
			percent := discountPercent
			b.DiscountPercent = &percent
			b.DiscountAmount = &amount

			if pricing.IsFullDiscount(discountPercent) {
				b.Status = models.StatusConfirmed
				b.PaymentStatus = models.PaymentSuccessful
				b.PaymentDue = nil
				return models.EventConfirmed, nil
			}

			due := now.Add(s.settings.PaymentWindow)
			b.Status = models.StatusApproved
			b.PaymentStatus = models.PaymentPending
			b.PaymentDue = &due
			return models.EventApproved, nil
		},
	})
}

func (s *BookingService) Reject(ctx context.Context, id, reason string) (*models.Booking, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError("reason", "is required")
	}

	return s.run(ctx, id, transition{
		name: "reject",
		from: []models.Status{models.StatusPending, models.StatusWaiting},
		apply: func(b *models.Booking, _ time.Time) (models.EventType, error) {
			b.Status = models.StatusRejected
			b.RejectReason = reason
			return models.EventRejected, nil
		},
	})
}

// MarkWaiting parks a pending booking that collides with committed slots.
func (s *BookingService) MarkWaiting(ctx context.Context, id string) (*models.Booking, error) {
	return s.run(ctx, id, transition{
		name: "mark waiting",
		from: []models.Status{models.StatusPending},
		apply: func(b *models.Booking, _ time.Time) (models.EventType, error) {
			b.Status = models.StatusWaiting
			return models.EventWaiting, nil
		},
	})
}

func (s *BookingService) RecordPayment(ctx context.Context, id, reference string) (*models.Booking, error) {
	t := transition{
		name: "record payment",
		from: []models.Status{models.StatusApproved},
	}
	t.apply = func(b *models.Booking, _ time.Time) (models.EventType, error) {
		if b.PaymentStatus == models.PaymentSuccessful {
			return "", t.refuse(b)
		}
		b.Status = models.StatusConfirmed
		b.PaymentStatus = models.PaymentSuccessful
		b.PaymentReference = reference
		return models.EventConfirmed, nil
	}
	return s.run(ctx, id, t)
}

// Cancel releases the slots of an approved or confirmed booking. A booking
// that was paid for gets a refund by the time left before its first slot.
func (s *BookingService) Cancel(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.run(ctx, id, transition{
		name:   "cancel",
		from:   []models.Status{models.StatusApproved, models.StatusConfirmed},
		locked: true,
		effect: indexRelease,
		apply: func(b *models.Booking, now time.Time) (models.EventType, error) {
			// A 100% discount confirms with nothing paid, so nothing is refunded.
			if b.PaymentStatus == models.PaymentSuccessful && b.PayableAmount() > 0 {
				amount := s.refunds.ForBooking(b.Dates, now, b.PayableAmount())
				b.RefundAmount = &amount
			}
			b.Status = models.StatusCancelled
			b.CancelReason = RequesterReason
			return models.EventCancelled, nil
		},
	})
	if err != nil {
		return nil, err
	}

	if b.RefundAmount != nil && *b.RefundAmount > 0 && s.Refunder != nil {
		s.issueRefund(b.Clone(), *b.RefundAmount)
	}
	return b, nil
}

func (s *BookingService) issueRefund(b *models.Booking, amount float64) {
	s.notifier.wg.Add(1)
	go func() {
		defer s.notifier.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := s.Refunder.Refund(ctx, b, amount); err != nil {
			s.Logger.Error("PAYMENT", fmt.Sprintf("Refund of %.2f for booking %s failed: %v", amount, b.ID, err))
			return
		}
		s.Logger.LogBooking("REFUND", b.ID, fmt.Sprintf("refunded %.2f", amount))
	}()
}

// ---------------- EXPIRY ----------------

// ExpireUnpaid cancels an approved booking whose payment deadline passed.
// Nothing was paid, so nothing is refunded.
func (s *BookingService) ExpireUnpaid(ctx context.Context, id string) (*models.Booking, error) {
	t := transition{
		name:   "expire unpaid",
		from:   []models.Status{models.StatusApproved},
		locked: true,
		effect: indexRelease,
	}
	t.apply = func(b *models.Booking, now time.Time) (models.EventType, error) {
		if b.PaymentStatus == models.PaymentSuccessful || b.PaymentDue == nil || !b.PaymentDue.Before(now) {
			return "", t.refuse(b)
		}
		b.Status = models.StatusCancelled
		b.PaymentStatus = models.PaymentNotPaid
		b.CancelReason = NonPaymentReason
		b.RefundAmount = nil
		return models.EventAutoCancelled, nil
	}
	return s.run(ctx, id, t)
}

// ExpirePending rejects a booking that sat in Pending longer than the TTL.
func (s *BookingService) ExpirePending(ctx context.Context, id string) (*models.Booking, error) {
	t := transition{
		name: "expire pending",
		from: []models.Status{models.StatusPending},
	}
	t.apply = func(b *models.Booking, now time.Time) (models.EventType, error) {
		if now.Sub(b.CreatedAt) <= s.settings.PendingTTL {
			return "", t.refuse(b)
		}
		b.Status = models.StatusRejected
		b.RejectReason = StalePendingReason
		return models.EventAutoRejected, nil
	}
	return s.run(ctx, id, t)
}

// IsNoop reports errors that mean the booking already moved on, which a
// sweep or a redelivered payment event should treat as done.
func IsNoop(err error) bool {
	return errors.Is(err, models.ErrStaleState) || errors.Is(err, models.ErrInvalidTransition)
}

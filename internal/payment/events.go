package payment

import (
	"context"
	"errors"
	"fmt"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Recorder confirms a booking once its payment cleared.
type Recorder interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	RecordPayment(ctx context.Context, id, reference string) (*models.Booking, error)
}

// Refunder returns a charge that could not be applied to its booking.
type Refunder interface {
	Refund(ctx context.Context, b *models.Booking, amount float64) error
}

// amountTolerance absorbs float noise between major and minor units.
const amountTolerance = 0.005

// EventHandler applies payment events from the webhook or the payment topic.
// Redelivery of an applied payment is harmless. A charge that arrives short
// of the payable amount, or after the booking was cancelled or rejected, is
// handed back through refunder. refunder may be nil, in which case such
// charges are logged for manual refund.
func EventHandler(rec Recorder, refunder Refunder, log *logger.Logger) func(ctx context.Context, ev models.PaymentEvent) error {
	return func(ctx context.Context, ev models.PaymentEvent) error {
		if ev.Type != EventPaymentSucceeded {
			log.Debug("PAYMENT", fmt.Sprintf("Ignoring payment event %s for booking %s", ev.Type, ev.BookingID))
			return nil
		}

		b, err := rec.GetBooking(ctx, ev.BookingID)
		if errors.Is(err, models.ErrBookingNotFound) {
			log.Error("PAYMENT", fmt.Sprintf("Payment %s names unknown booking %s, refund manually", ev.Reference, ev.BookingID))
			return nil
		}
		if err != nil {
			return err
		}

		if b.Status == models.StatusApproved && ev.Amount+amountTolerance < b.PayableAmount() {
			log.Error("PAYMENT", fmt.Sprintf("Payment %s of %.2f for booking %s is short of %.2f", ev.Reference, ev.Amount, b.ID, b.PayableAmount()))
			return returnCharge(ctx, refunder, b, ev, log)
		}

		_, err = rec.RecordPayment(ctx, ev.BookingID, ev.Reference)
		switch {
		case err == nil:
			return nil
		case booking.IsNoop(err):
			return settleUnapplied(ctx, rec, refunder, ev, log)
		default:
			return err
		}
	}
}

// settleUnapplied decides what to do with a payment the booking refused.
func settleUnapplied(ctx context.Context, rec Recorder, refunder Refunder, ev models.PaymentEvent, log *logger.Logger) error {
	b, err := rec.GetBooking(ctx, ev.BookingID)
	if err != nil {
		return err
	}
	switch {
	case b.PaymentReference == ev.Reference:
		log.Warn("PAYMENT", fmt.Sprintf("Payment %s for booking %s already applied", ev.Reference, b.ID))
		return nil
	case b.Status == models.StatusApproved:
		// Lost a race with another transition; the caller retries.
		return fmt.Errorf("payment %s for booking %s not applied yet", ev.Reference, b.ID)
	default:
		log.Error("PAYMENT", fmt.Sprintf("Payment %s arrived for booking %s in status %s/%s, returning it",
			ev.Reference, b.ID, b.Status, b.PaymentStatus))
		return returnCharge(ctx, refunder, b, ev, log)
	}
}

func returnCharge(ctx context.Context, refunder Refunder, b *models.Booking, ev models.PaymentEvent, log *logger.Logger) error {
	if refunder == nil || ev.Amount <= 0 {
		log.Error("PAYMENT", fmt.Sprintf("Charge %s for booking %s needs a manual refund", ev.Reference, b.ID))
		return nil
	}
	charged := b.Clone()
	charged.PaymentReference = ev.Reference

	err := refunder.Refund(ctx, charged, ev.Amount)
	if errors.Is(err, ErrNoRefundTarget) {
		log.Error("PAYMENT", fmt.Sprintf("Charge %s for booking %s is not a card payment, refund manually", ev.Reference, b.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("refund charge %s of booking %s: %w", ev.Reference, b.ID, err)
	}
	log.LogBooking("REFUND", b.ID, fmt.Sprintf("returned unapplied charge %s of %.2f", ev.Reference, ev.Amount))
	return nil
}

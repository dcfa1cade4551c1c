package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/slots"
)

const notifyTimeout = 10 * time.Second

// NotificationPort delivers lifecycle events to requesters. How is not the
// booking engine's concern.
type NotificationPort interface {
	Notify(ctx context.Context, n models.Notification) error
}

// LogNotifier only records notifications. Used when no broker is configured.
type LogNotifier struct {
	Logger *logger.Logger
}

func (l LogNotifier) Notify(_ context.Context, n models.Notification) error {
	l.Logger.Info("NOTIFY", fmt.Sprintf("%s -> %s for booking %s", n.Type, n.Recipient, n.Booking.ID))
	return nil
}

// dispatcher sends notifications in the background. A failed delivery is
// logged and never affects the transition that triggered it.
type dispatcher struct {
	port   NotificationPort
	logger *logger.Logger
	wg     sync.WaitGroup
}

func (d *dispatcher) send(b *models.Booking, event models.EventType, at time.Time) {
	if d.port == nil {
		return
	}
	n := models.Notification{
		Recipient:  b.UserID,
		Type:       event,
		Booking:    b.Clone(),
		Schedule:   slots.Describe(b.Dates),
		OccurredAt: at,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := d.port.Notify(ctx, n); err != nil {
			derr := &models.NotificationDeliveryError{BookingID: n.Booking.ID, Type: event, Err: err}
			d.logger.Error("NOTIFY", derr.Error())
		}
	}()
}

func (d *dispatcher) wait() {
	d.wg.Wait()
}

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrStripeNotConfigured = errors.New("stripe is not configured")
	ErrNotPayable          = errors.New("booking is not awaiting payment")
	ErrNoRefundTarget      = errors.New("booking has no stripe payment to refund")
)

const (
	// EventPaymentSucceeded is the PaymentEvent type that confirms a booking.
	EventPaymentSucceeded = "payment.succeeded"
	metadataBookingID     = "booking_id"
)

// Gateway wraps the Stripe client for booking payments and refunds.
type Gateway struct {
	client        *client.API
	currency      string
	webhookSecret string
	log           *logger.Logger
}

// NewGateway creates a Stripe gateway. The webhook secret may be empty when
// payments arrive through Kafka only.
func NewGateway(secretKey, webhookSecret, currency string, log *logger.Logger) (*Gateway, error) {
	if secretKey == "" {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, card payments disabled")
		return nil, ErrStripeNotConfigured
	}
	sc := client.New(secretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return newGateway(sc, webhookSecret, currency, log), nil
}

func newGateway(sc *client.API, webhookSecret, currency string, log *logger.Logger) *Gateway {
	return &Gateway{
		client:        sc,
		currency:      strings.ToLower(currency),
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// toMinor converts an amount to the currency's smallest unit.
func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CheckPayable reports whether a booking can take a payment now.
func CheckPayable(b *models.Booking) error {
	if b.Status != models.StatusApproved || b.PaymentStatus == models.PaymentSuccessful {
		return fmt.Errorf("%w: booking %s is %s/%s", ErrNotPayable, b.ID, b.Status, b.PaymentStatus)
	}
	if b.PayableAmount() <= 0 {
		return fmt.Errorf("%w: booking %s has nothing to pay", ErrNotPayable, b.ID)
	}
	return nil
}

// CreatePaymentIntent opens a Stripe payment intent for the payable amount of
// an approved booking. Repeated calls for the same approval reuse one intent.
func (g *Gateway) CreatePaymentIntent(ctx context.Context, b *models.Booking) (*models.PaymentIntentResponse, error) {
	if err := CheckPayable(b); err != nil {
		return nil, err
	}
	amount := b.PayableAmount()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinor(amount)),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(fmt.Sprintf("Auditorium booking: %s", b.EventName)),
	}
	params.Context = ctx
	params.AddMetadata(metadataBookingID, b.ID)
	if b.PaymentDue != nil {
		params.SetIdempotencyKey(fmt.Sprintf("booking-%s-%d", b.ID, b.PaymentDue.Unix()))
	}

	intent, err := g.client.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for booking %s: %v", b.ID, err))
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	g.log.Info("PAYMENT", fmt.Sprintf("Created payment intent %s for booking %s (%s %.2f)", intent.ID, b.ID, strings.ToUpper(g.currency), amount))
	return &models.PaymentIntentResponse{
		BookingID:    b.ID,
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.ID,
		Amount:       amount,
		Currency:     g.currency,
	}, nil
}

// Refund returns amount of a booking paid through Stripe. Bookings paid by
// other means carry a reference that is not a payment intent and are left to
// the venue office.
func (g *Gateway) Refund(ctx context.Context, b *models.Booking, amount float64) error {
	if !strings.HasPrefix(b.PaymentReference, "pi_") {
		return fmt.Errorf("%w: %s", ErrNoRefundTarget, b.ID)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(b.PaymentReference),
		Amount:        stripe.Int64(toMinor(amount)),
	}
	params.Context = ctx
	params.AddMetadata(metadataBookingID, b.ID)
	params.SetIdempotencyKey("refund-" + b.ID + "-" + b.PaymentReference)

	r, err := g.client.Refunds.New(params)
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	g.log.Info("PAYMENT", fmt.Sprintf("Refund %s of %.2f issued for booking %s", r.ID, amount, b.ID))
	return nil
}

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	StatusCode  int
	PublicError string
	Err         error
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("%s: %v", e.PublicError, e.Err)
}

func (e *WebhookError) Unwrap() error {
	return e.Err
}

// ParseWebhook verifies a Stripe webhook and turns a succeeded payment intent
// into a PaymentEvent. Other event types yield nil.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error) {
	if g.webhookSecret == "" {
		return nil, &WebhookError{StatusCode: http.StatusInternalServerError, PublicError: "Webhook processing error", Err: ErrStripeNotConfigured}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		g.log.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Rejected webhook: %v", err))
		return nil, &WebhookError{StatusCode: http.StatusBadRequest, PublicError: "Invalid webhook signature", Err: err}
	}

	if event.Type != stripe.EventTypePaymentIntentSucceeded {
		g.log.Info("WEBHOOK", fmt.Sprintf("Ignoring Stripe event %s", event.Type))
		return nil, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, &WebhookError{StatusCode: http.StatusBadRequest, PublicError: "Invalid event data", Err: err}
	}
	bookingID := intent.Metadata[metadataBookingID]
	if bookingID == "" {
		return nil, &WebhookError{StatusCode: http.StatusBadRequest, PublicError: "Invalid payment intent data", Err: errors.New("payment intent has no booking_id in metadata")}
	}

	return &models.PaymentEvent{
		Type:      EventPaymentSucceeded,
		BookingID: bookingID,
		Reference: intent.ID,
		Amount:    float64(intent.AmountReceived) / 100,
		Timestamp: utils.UnixTimeToTime(event.Created).UTC(),
	}, nil
}

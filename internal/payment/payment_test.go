package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test"

func testLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard)
}

func approvedBooking() *models.Booking {
	due := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	discounted := 1350.5
	return &models.Booking{
		ID:             "b-1",
		EventName:      "Annual Day",
		TotalAmount:    1500,
		DiscountAmount: &discounted,
		Status:         models.StatusApproved,
		PaymentStatus:  models.PaymentPending,
		PaymentDue:     &due,
	}
}

// stripeStub serves the Stripe endpoints the gateway calls and records the
// decoded form bodies.
func stripeStub(t *testing.T) (*Gateway, map[string]url.Values) {
	requests := map[string]url.Values{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		requests[r.URL.Path] = form

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/payment_intents":
			fmt.Fprintf(w, `{"id":"pi_123","object":"payment_intent","client_secret":"pi_123_secret","amount":%s,"currency":"inr","status":"requires_payment_method"}`, form.Get("amount"))
		case "/v1/refunds":
			fmt.Fprintf(w, `{"id":"re_123","object":"refund","amount":%s,"status":"succeeded"}`, form.Get("amount"))
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"unknown path"}}`)
		}
	}))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	sc := client.New("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return newGateway(sc, testWebhookSecret, "INR", testLogger()), requests
}

func TestCreatePaymentIntent_ChargesDiscountedAmount(t *testing.T) {
	g, requests := stripeStub(t)

	resp, err := g.CreatePaymentIntent(context.Background(), approvedBooking())
	require.NoError(t, err)

	assert.Equal(t, "pi_123", resp.IntentID)
	assert.Equal(t, "pi_123_secret", resp.ClientSecret)
	assert.Equal(t, 1350.5, resp.Amount)
	assert.Equal(t, "inr", resp.Currency)

	form := requests["/v1/payment_intents"]
	assert.Equal(t, "135050", form.Get("amount"))
	assert.Equal(t, "b-1", form.Get("metadata[booking_id]"))
}

func TestCreatePaymentIntent_RefusesUnpayableBookings(t *testing.T) {
	g, requests := stripeStub(t)

	pending := approvedBooking()
	pending.Status = models.StatusPending
	paid := approvedBooking()
	paid.PaymentStatus = models.PaymentSuccessful
	free := approvedBooking()
	zero := 0.0
	free.DiscountAmount = &zero

	for _, b := range []*models.Booking{pending, paid, free} {
		_, err := g.CreatePaymentIntent(context.Background(), b)
		assert.ErrorIs(t, err, ErrNotPayable)
	}
	assert.Empty(t, requests)
}

func TestRefund(t *testing.T) {
	g, requests := stripeStub(t)

	b := approvedBooking()
	b.PaymentReference = "pi_123"
	require.NoError(t, g.Refund(context.Background(), b, 675.25))

	form := requests["/v1/refunds"]
	assert.Equal(t, "pi_123", form.Get("payment_intent"))
	assert.Equal(t, "67525", form.Get("amount"))

	b.PaymentReference = "UTR-998877"
	assert.ErrorIs(t, g.Refund(context.Background(), b, 10), ErrNoRefundTarget)
}

func signed(t *testing.T, event map[string]interface{}) ([]byte, string) {
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func intentEvent(eventType string, metadata map[string]string) map[string]interface{} {
	return map[string]interface{}{
		"id":          "evt_1",
		"object":      "event",
		"type":        eventType,
		"created":     1742547600,
		"api_version": stripe.APIVersion,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":              "pi_123",
				"object":          "payment_intent",
				"amount_received": 135050,
				"metadata":        metadata,
			},
		},
	}
}

func TestParseWebhook_SucceededIntent(t *testing.T) {
	g := newGateway(nil, testWebhookSecret, "inr", testLogger())
	payload, header := signed(t, intentEvent("payment_intent.succeeded", map[string]string{"booking_id": "b-1"}))

	ev, err := g.ParseWebhook(payload, header)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventPaymentSucceeded, ev.Type)
	assert.Equal(t, "b-1", ev.BookingID)
	assert.Equal(t, "pi_123", ev.Reference)
	assert.Equal(t, 1350.5, ev.Amount)
	assert.Equal(t, time.Unix(1742547600, 0).UTC(), ev.Timestamp)
}

func TestParseWebhook_Rejections(t *testing.T) {
	g := newGateway(nil, testWebhookSecret, "inr", testLogger())

	payload, _ := signed(t, intentEvent("payment_intent.succeeded", map[string]string{"booking_id": "b-1"}))
	_, err := g.ParseWebhook(payload, "t=1,v1=bogus")
	var werr *WebhookError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, http.StatusBadRequest, werr.StatusCode)

	payload, header := signed(t, intentEvent("payment_intent.succeeded", nil))
	_, err = g.ParseWebhook(payload, header)
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, http.StatusBadRequest, werr.StatusCode)

	unconfigured := newGateway(nil, "", "inr", testLogger())
	_, err = unconfigured.ParseWebhook(payload, header)
	assert.ErrorIs(t, err, ErrStripeNotConfigured)
}

func TestParseWebhook_IgnoresOtherEvents(t *testing.T) {
	g := newGateway(nil, testWebhookSecret, "inr", testLogger())
	payload, header := signed(t, intentEvent("payment_intent.created", map[string]string{"booking_id": "b-1"}))

	ev, err := g.ParseWebhook(payload, header)
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestQRGenerator(t *testing.T) {
	q := NewQRGenerator("auditorium@upi", "College Auditorium", "inr")
	b := approvedBooking()

	uri := q.URI(b)
	parsed, err := url.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, "upi", parsed.Scheme)
	assert.Equal(t, "1350.50", parsed.Query().Get("am"))
	assert.Equal(t, "INR", parsed.Query().Get("cu"))
	assert.Equal(t, "booking b-1", parsed.Query().Get("tn"))

	png, err := q.PNG(b, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	expected, err := qrcode.Encode(uri, qrcode.Medium, 256)
	require.NoError(t, err)
	assert.Equal(t, expected, png)

	b.Status = models.StatusCancelled
	_, err = q.PNG(b, 256)
	assert.ErrorIs(t, err, ErrNotPayable)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockRecorder) RecordPayment(ctx context.Context, id, reference string) (*models.Booking, error) {
	args := m.Called(ctx, id, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type MockRefunder struct {
	mock.Mock
}

func (m *MockRefunder) Refund(ctx context.Context, b *models.Booking, amount float64) error {
	return m.Called(ctx, b, amount).Error(0)
}

func succeeded(bookingID, reference string, amount float64) models.PaymentEvent {
	return models.PaymentEvent{Type: EventPaymentSucceeded, BookingID: bookingID, Reference: reference, Amount: amount}
}

func TestEventHandler(t *testing.T) {
	rec := new(MockRecorder)
	b1 := approvedBooking()
	b3 := approvedBooking()
	b3.ID = "b-3"
	rec.On("GetBooking", mock.Anything, "b-1").Return(b1, nil)
	rec.On("GetBooking", mock.Anything, "b-3").Return(b3, nil)
	rec.On("RecordPayment", mock.Anything, "b-1", "pi_1").Return(&models.Booking{ID: "b-1"}, nil)
	rec.On("RecordPayment", mock.Anything, "b-3", "pi_3").Return(nil, errors.New("database unavailable"))

	handle := EventHandler(rec, nil, testLogger())
	ctx := context.Background()

	assert.NoError(t, handle(ctx, succeeded("b-1", "pi_1", 1350.5)))
	assert.Error(t, handle(ctx, succeeded("b-3", "pi_3", 1350.5)))
	assert.NoError(t, handle(ctx, models.PaymentEvent{Type: "payment.failed", BookingID: "b-4"}))

	rec.AssertNotCalled(t, "GetBooking", mock.Anything, "b-4")
	rec.AssertNotCalled(t, "RecordPayment", mock.Anything, "b-4", mock.Anything)
}

func TestEventHandler_RedeliveryOfAppliedPayment(t *testing.T) {
	rec := new(MockRecorder)
	refunder := new(MockRefunder)
	confirmed := approvedBooking()
	confirmed.Status = models.StatusConfirmed
	confirmed.PaymentStatus = models.PaymentSuccessful
	confirmed.PaymentReference = "pi_1"
	rec.On("GetBooking", mock.Anything, "b-1").Return(confirmed, nil)
	rec.On("RecordPayment", mock.Anything, "b-1", "pi_1").Return(nil, fmt.Errorf("%w: confirmed", models.ErrInvalidTransition))

	handle := EventHandler(rec, refunder, testLogger())
	assert.NoError(t, handle(context.Background(), succeeded("b-1", "pi_1", 1350.5)))
	refunder.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestEventHandler_RefundsChargeAfterAutoCancel(t *testing.T) {
	rec := new(MockRecorder)
	refunder := new(MockRefunder)
	cancelled := approvedBooking()
	cancelled.Status = models.StatusCancelled
	cancelled.PaymentStatus = models.PaymentNotPaid
	cancelled.PaymentDue = nil
	rec.On("GetBooking", mock.Anything, "b-1").Return(cancelled, nil)
	rec.On("RecordPayment", mock.Anything, "b-1", "pi_late").Return(nil, fmt.Errorf("%w: cancelled", models.ErrInvalidTransition))
	refunder.On("Refund", mock.Anything, mock.MatchedBy(func(b *models.Booking) bool {
		return b.ID == "b-1" && b.PaymentReference == "pi_late"
	}), 1350.5).Return(nil)

	handle := EventHandler(rec, refunder, testLogger())
	require.NoError(t, handle(context.Background(), succeeded("b-1", "pi_late", 1350.5)))
	refunder.AssertExpectations(t)
	assert.Empty(t, cancelled.PaymentReference, "stored booking is not modified")
}

func TestEventHandler_RefundFailureIsRetried(t *testing.T) {
	rec := new(MockRecorder)
	refunder := new(MockRefunder)
	rejected := approvedBooking()
	rejected.Status = models.StatusRejected
	rec.On("GetBooking", mock.Anything, "b-1").Return(rejected, nil)
	rec.On("RecordPayment", mock.Anything, "b-1", "pi_late").Return(nil, fmt.Errorf("%w: rejected", models.ErrInvalidTransition))
	refunder.On("Refund", mock.Anything, mock.Anything, 1350.5).Return(errors.New("stripe unavailable"))

	handle := EventHandler(rec, refunder, testLogger())
	assert.Error(t, handle(context.Background(), succeeded("b-1", "pi_late", 1350.5)))
}

func TestEventHandler_ShortPaymentIsNotApplied(t *testing.T) {
	rec := new(MockRecorder)
	refunder := new(MockRefunder)
	rec.On("GetBooking", mock.Anything, "b-1").Return(approvedBooking(), nil)
	refunder.On("Refund", mock.Anything, mock.Anything, 500.0).Return(nil)

	handle := EventHandler(rec, refunder, testLogger())
	require.NoError(t, handle(context.Background(), succeeded("b-1", "pi_1", 500)))
	rec.AssertNotCalled(t, "RecordPayment", mock.Anything, mock.Anything, mock.Anything)
	refunder.AssertExpectations(t)
}

func TestEventHandler_UnknownBookingIsDropped(t *testing.T) {
	rec := new(MockRecorder)
	rec.On("GetBooking", mock.Anything, "ghost").Return(nil, fmt.Errorf("%w: ghost", models.ErrBookingNotFound))

	handle := EventHandler(rec, nil, testLogger())
	assert.NoError(t, handle(context.Background(), succeeded("ghost", "pi_1", 10)))
}

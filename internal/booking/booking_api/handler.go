package booking_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/availability"
	"ms-booking/internal/conflict"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/pricing"
	"ms-booking/internal/scheduler"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// BookingService is the lifecycle the handlers drive.
type BookingService interface {
	Submit(ctx context.Context, req models.BookingRequest) (*models.Booking, error)
	Quote(ctx context.Context, auditoriumID string, req models.QuoteRequest) (*pricing.Quote, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Booking, error)
	ListByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Booking, error)
	BookedSlots(ctx context.Context, auditoriumID string) ([]availability.Occupancy, error)
	Conflicts(ctx context.Context, auditoriumID string) ([]conflict.Report, error)
	Contention(ctx context.Context, auditoriumID string) ([]conflict.ContentionReport, error)
	Approve(ctx context.Context, id string, discountPercent float64) (*models.Booking, error)
	Reject(ctx context.Context, id, reason string) (*models.Booking, error)
	MarkWaiting(ctx context.Context, id string) (*models.Booking, error)
	RecordPayment(ctx context.Context, id, reference string) (*models.Booking, error)
	Cancel(ctx context.Context, id string) (*models.Booking, error)
}

type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, b *models.Booking) (*models.PaymentIntentResponse, error)
	ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error)
}

type QRRenderer interface {
	PNG(b *models.Booking, size int) ([]byte, error)
}

type Sweeper interface {
	SweepOnce(ctx context.Context) (scheduler.SweepResult, error)
}

// Handler serves the booking API. Payments, QR and Sweeper are optional; their
// routes answer 503 when unset.
type Handler struct {
	Bookings  BookingService
	Payments  PaymentGateway
	QR        QRRenderer
	Sweeper   Sweeper
	OnPayment func(ctx context.Context, ev models.PaymentEvent) error
	Logger    *logger.Logger
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// SubmitBooking creates a Pending booking for the caller.
func (h *Handler) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	// Admins may file on behalf of someone; everyone else books for themselves.
	p, _ := auth.PrincipalFrom(r.Context())
	if !p.Admin || req.UserID == "" {
		req.UserID = p.UserID
	}

	b, err := h.Bookings.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Booking submitted", b))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking retrieved", b))
}

func (h *Handler) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !canActFor(r.Context(), userID) {
		h.forbid(w, r)
		return
	}

	list, err := h.Bookings.ListForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d bookings", len(list)), list))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.Cancel(r.Context(), current.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", b))
}

func (h *Handler) BookedSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.Bookings.BookedSlots(r.Context(), chi.URLParam(r, "auditoriumId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booked slots retrieved", slots))
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req models.QuoteRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.Bookings.Quote(r.Context(), chi.URLParam(r, "auditoriumId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Quote computed", q))
}

func Health(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

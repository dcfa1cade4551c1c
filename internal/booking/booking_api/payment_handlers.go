package booking_api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBytes = 64 << 10

// RecordPayment marks an approved booking paid with an offline reference an
// admin has reconciled. Owners pay through Stripe or the QR code.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRecordRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Reference == "" {
		h.writeError(w, r, models.NewValidationError("reference", "is required"))
		return
	}

	b, err := h.Bookings.RecordPayment(r.Context(), chi.URLParam(r, "bookingId"), req.Reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment recorded", b))
}

// CreatePaymentIntent creates a Stripe payment intent for a booking
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	if h.Payments == nil {
		h.writeError(w, r, payment.ErrStripeNotConfigured)
		return
	}
	b, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	intent, err := h.Payments.CreatePaymentIntent(r.Context(), b)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment intent created", intent))
}

// PaymentQR returns the payment QR code as a PNG image.
func (h *Handler) PaymentQR(w http.ResponseWriter, r *http.Request) {
	if h.QR == nil {
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("QR payments unavailable", "no payee configured"))
		return
	}
	b, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size > 1024 {
		size = 1024
	}
	png, err := h.QR.PNG(b, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// StripeWebhook handles webhook events from Stripe
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Payments == nil || h.OnPayment == nil {
		h.writeError(w, r, payment.ErrStripeNotConfigured)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", err.Error()))
		return
	}

	event, err := h.Payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var werr *payment.WebhookError
		if errors.As(err, &werr) {
			utils.WriteJSON(w, werr.StatusCode, utils.ErrorResponse(werr.PublicError, ""))
			return
		}
		h.writeError(w, r, err)
		return
	}
	if event == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.OnPayment(r.Context(), *event); err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to apply payment %s for booking %s: %v", event.Reference, event.BookingID, err))
		// Stripe retries on a 5xx.
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to process payment", ""))
		return
	}
	h.Logger.Info("WEBHOOK", fmt.Sprintf("Processed payment %s for booking %s", event.Reference, event.BookingID))
	w.WriteHeader(http.StatusOK)
}

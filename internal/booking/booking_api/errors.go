package booking_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	lockredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/utils"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, models.ErrBookingNotFound), errors.Is(err, models.ErrAuditoriumNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, models.ErrSlotConflict):
		return http.StatusConflict, "Slot conflict"
	case errors.Is(err, models.ErrStaleState), errors.Is(err, models.ErrInvalidTransition), errors.Is(err, payment.ErrNotPayable):
		return http.StatusConflict, "Booking state does not allow this action"
	case errors.Is(err, lockredis.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Auditorium busy, try again"
	case errors.Is(err, payment.ErrStripeNotConfigured):
		return http.StatusServiceUnavailable, "Card payments unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
		if status == http.StatusInternalServerError {
			detail = ""
		}
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	}
	utils.WriteJSON(w, status, utils.ErrorResponse(message, detail))
}

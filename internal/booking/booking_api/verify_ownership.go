package booking_api

import (
	"context"
	"fmt"
	"net/http"

	"ms-booking/internal/auth"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// canActFor reports whether the caller may see or act on userID's bookings.
func canActFor(ctx context.Context, userID string) bool {
	p, ok := auth.PrincipalFrom(ctx)
	return ok && (p.Admin || (p.UserID != "" && p.UserID == userID))
}

// loadOwned fetches the booking named in the path and checks the caller owns
// it. On failure the response is already written.
func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request) (*models.Booking, bool) {
	id := chi.URLParam(r, "bookingId")
	b, err := h.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if !canActFor(r.Context(), b.UserID) {
		// Same answer as a missing booking, so ids cannot be enumerated.
		h.Logger.LogSecurity("OWNERSHIP", fmt.Sprintf("user %q denied booking %s", auth.UserID(r.Context()), id))
		h.writeError(w, r, fmt.Errorf("%w: %s", models.ErrBookingNotFound, id))
		return nil, false
	}
	return b, true
}

func (h *Handler) forbid(w http.ResponseWriter, r *http.Request) {
	h.Logger.LogSecurity("FORBIDDEN", fmt.Sprintf("user %q denied %s %s", auth.UserID(r.Context()), r.Method, r.URL.Path))
	utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "not allowed to access these bookings"))
}

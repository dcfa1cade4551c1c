package booking_api

import (
	"fmt"
	"net/http"
	"strings"

	"ms-booking/internal/models"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// ListBookings filters by ?status=pending,waiting; no filter lists undecided ones.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	statuses := []models.Status{models.StatusPending, models.StatusWaiting}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = statuses[:0]
		for _, part := range strings.Split(raw, ",") {
			s, ok := models.ParseStatus(strings.TrimSpace(part))
			if !ok {
				h.writeError(w, r, models.NewValidationError("status", fmt.Sprintf("unknown status %q", part)))
				return
			}
			statuses = append(statuses, s)
		}
	}

	list, err := h.Bookings.ListByStatus(r.Context(), statuses...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d bookings", len(list)), list))
}

func (h *Handler) Conflicts(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Bookings.Conflicts(r.Context(), chi.URLParam(r, "auditoriumId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d conflicting bookings", len(reports)), reports))
}

func (h *Handler) Contention(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Bookings.Contention(r.Context(), chi.URLParam(r, "auditoriumId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d contended bookings", len(reports)), reports))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req models.ApproveRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	b, err := h.Bookings.Approve(r.Context(), chi.URLParam(r, "bookingId"), req.DiscountPercent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking "+string(b.Status), b))
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req models.RejectRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Reject(r.Context(), chi.URLParam(r, "bookingId"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking rejected", b))
}

func (h *Handler) MarkWaiting(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.MarkWaiting(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking moved to waiting", b))
}

// Sweep runs one expiry pass on demand.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper == nil {
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Sweep unavailable", "expiry worker not running in this process"))
		return
	}
	res, err := h.Sweeper.SweepOnce(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Sweep completed", res))
}

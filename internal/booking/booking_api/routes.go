package booking_api

import (
	"net/http"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes mounts the API. authn authenticates callers; admin further requires
// the admin role.
func (h *Handler) Routes(r chi.Router, authn, admin func(http.Handler) http.Handler) {
	// --- Public Routes ---
	r.Get("/health", Health)
	r.Post("/api/payments/webhook", h.StripeWebhook)

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Route("/api/bookings", func(r chi.Router) {
			r.Post("/", h.SubmitBooking)
			r.Get("/user/{userId}", h.ListUserBookings)
			r.Get("/{bookingId}", h.GetBooking)
			r.Post("/{bookingId}/cancel", h.CancelBooking)
			r.Post("/{bookingId}/payment-intent", h.CreatePaymentIntent)
			r.Get("/{bookingId}/payment-qr", h.PaymentQR)
		})

		r.Route("/api/auditoriums/{auditoriumId}", func(r chi.Router) {
			r.Get("/booked-slots", h.BookedSlots)
			r.Post("/quote", h.Quote)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(admin)
			r.Get("/bookings", h.ListBookings)
			r.Post("/bookings/{bookingId}/approve", h.Approve)
			r.Post("/bookings/{bookingId}/reject", h.Reject)
			r.Post("/bookings/{bookingId}/waiting", h.MarkWaiting)
			r.Post("/bookings/{bookingId}/payment", h.RecordPayment)
			r.Get("/auditoriums/{auditoriumId}/conflicts", h.Conflicts)
			r.Get("/auditoriums/{auditoriumId}/contention", h.Contention)
			r.Post("/sweep", h.Sweep)
		})
	})
}

// RequestLogger logs method, path, status and latency of every request.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

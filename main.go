package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ms-booking/internal/app"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking/booking_api"
	"ms-booking/internal/config"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/payment"
	"ms-booking/internal/scheduler"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer == "" {
		log.Warn("AUTH", "OIDC_ISSUER not set, accepting unverified tokens (development only)")
		return auth.UnverifiedParser{}
	}
	v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to initialize OIDC verifier: %v", err))
	}
	log.Info("AUTH", fmt.Sprintf("Verifying tokens issued by %s", cfg.OIDCIssuer))
	return v
}

func main() {
	logger := logger.NewLogger("booking-service")
	defer logger.Close()

	logger.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("APP", "Verifying connections")
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("APP", fmt.Sprintf("Startup failed: %v", err))
	}
	defer a.Close()

	var refunder payment.Refunder
	if a.Gateway != nil {
		refunder = a.Gateway
	}
	onPayment := payment.EventHandler(a.Service, refunder, logger)

	handler := &booking_api.Handler{
		Bookings:  a.Service,
		QR:        payment.NewQRGenerator(cfg.Booking.PaymentPayee, "Auditorium Booking", cfg.Booking.Currency),
		OnPayment: onPayment,
		Logger:    logger,
	}
	if a.Gateway != nil {
		handler.Payments = a.Gateway
	}

	var worker *scheduler.ExpiryWorker
	if cfg.Booking.SchedulerOnAPI {
		worker = scheduler.NewExpiryWorker(a.Service, a.Store, scheduler.Config{
			ScanInterval: cfg.Booking.SweepInterval,
			PendingTTL:   cfg.Booking.PendingTTL,
		}, utils.RealClock{}, logger)
		if err := worker.Start(ctx); err != nil {
			logger.Fatal("SWEEP", fmt.Sprintf("Failed to start expiry worker: %v", err))
		}
		handler.Sweeper = worker
	} else {
		logger.Info("SWEEP", "Expiry worker disabled in this process")
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentSuccess, cfg.Kafka.GroupID, logger)
		go func() {
			if err := consumer.Run(ctx, onPayment); err != nil {
				logger.Error("KAFKA", fmt.Sprintf("Payment consumer stopped: %v", err))
			}
		}()
	}

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(booking_api.RequestLogger(logger))

	verifier := newVerifier(ctx, cfg.Auth, logger)
	handler.Routes(r, auth.Middleware(verifier, cfg.Auth.AdminRole, logger), auth.RequireAdmin(logger))
	logger.Info("ROUTER", "Booking routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	if worker != nil {
		worker.Stop()
	}
	cancel()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("KAFKA", fmt.Sprintf("Failed to close consumer: %v", err))
		}
	}
	logger.Info("APP", "✅ Booking Service shutdown complete")
}

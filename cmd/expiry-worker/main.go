package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ms-booking/internal/app"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/scheduler"
	"ms-booking/internal/utils"

	"github.com/joho/godotenv"
)

// The expiry worker runs the sweep on its own, for deployments where the API
// replicas start with SCHEDULER_ENABLED=false.
func main() {
	logger := logger.NewLogger("booking-expiry-worker")
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("APP", fmt.Sprintf("Startup failed: %v", err))
	}
	defer a.Close()

	worker := scheduler.NewExpiryWorker(a.Service, a.Store, scheduler.Config{
		ScanInterval: cfg.Booking.SweepInterval,
		PendingTTL:   cfg.Booking.PendingTTL,
	}, utils.RealClock{}, logger)
	if err := worker.Start(ctx); err != nil {
		logger.Fatal("SWEEP", fmt.Sprintf("Failed to start expiry worker: %v", err))
	}
	logger.Info("APP", fmt.Sprintf("Expiry worker running every %s", cfg.Booking.SweepInterval))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("APP", "Shutdown signal received")
	worker.Stop()
	stats := worker.GetStats()
	logger.Info("APP", fmt.Sprintf("Worker stopped after %d sweeps (%d cancelled, %d rejected)",
		stats.Sweeps, stats.TotalAutoCancelled, stats.TotalAutoRejected))
}

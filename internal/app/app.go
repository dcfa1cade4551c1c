package app

import (
	"context"
	"fmt"

	"ms-booking/internal/availability"
	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	bookingkafka "ms-booking/internal/booking/kafka"
	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/catalog"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/payment"

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"
)

// App holds the wired booking core shared by the API and the worker binaries.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Bun      *bun.DB
	Redis    *redis.Client
	Store    *bookingdb.DB
	Catalog  *catalog.Cache
	Service  *booking.BookingService
	Producer *kafka.Producer
	// Gateway is nil when no Stripe key is configured.
	Gateway *payment.Gateway
}

// NewIndex picks the availability index backend.
func NewIndex(cfg config.BookingConfig, client *redis.Client) (availability.Index, error) {
	switch cfg.IndexBackend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis index needs a redis client")
		}
		return availability.NewRedisIndex(client), nil
	case "memory", "":
		return availability.NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}

// NewLocker picks the approval lock backend. The memory locker only
// serializes within one process.
func NewLocker(cfg config.BookingConfig, client *redis.Client, log *logger.Logger) (booking.Locker, error) {
	switch cfg.LockerBackend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis locker needs a redis client")
		}
		return bookingredis.NewRedis(client, log, cfg.LockTTL, cfg.LockWait), nil
	case "memory", "":
		return booking.NewLocalLocker(), nil
	default:
		return nil, fmt.Errorf("unknown locker backend %q", cfg.LockerBackend)
	}
}

// Build connects to Postgres, Redis and Kafka and wires the booking service.
// The availability index is rebuilt from committed bookings before returning.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	var err error
	a.Bun, err = database.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.Redis, err = database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	index, err := NewIndex(cfg.Booking, a.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	locker, err := NewLocker(cfg.Booking, a.Redis, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Info("APP", fmt.Sprintf("Index backend %q, locker backend %q", cfg.Booking.IndexBackend, cfg.Booking.LockerBackend))

	a.Store = bookingdb.New(a.Bun)
	a.Catalog = catalog.NewCache(catalog.NewStore(a.Bun), a.Redis, cfg.Redis.CacheTTL, log)

	var notifier booking.NotificationPort = booking.LogNotifier{Logger: log}
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.Notifications, cfg.Kafka.Topics.PaymentSuccess}
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		a.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		notifier = bookingkafka.NewNotifier(a.Producer, cfg.Kafka.Topics.Notifications)
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, notifications are only logged")
	}

	a.Service = booking.NewBookingService(a.Store, index, a.Catalog, locker, notifier, log, booking.Settings{
		PaymentWindow: cfg.Booking.PaymentWindow,
		PendingTTL:    cfg.Booking.PendingTTL,
		Location:      cfg.Booking.Location(),
	})

	if gw, err := payment.NewGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Booking.Currency, log); err == nil {
		a.Gateway = gw
		a.Service.Refunder = gw
	}

	if err := a.Service.RebuildIndex(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("rebuild availability index: %w", err)
	}
	return a, nil
}

// Close drains pending notifications and releases every connection.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Drain()
	}
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Bun != nil {
		_ = a.Bun.Close()
	}
}

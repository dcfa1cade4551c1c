package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const retryDelay = 2 * time.Second

// ConnectPostgres opens the booking database, retrying while it starts up.
func ConnectPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN not set")
	}
	attempts := cfg.ConnectRetry
	if attempts < 1 {
		attempts = 1
	}

	var sqldb *sql.DB
	var err error
	for i := 0; i < attempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, attempts))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			if err = sqldb.PingContext(ctx); err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", attempts, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// ConnectRedis creates the shared client for locks, the availability index and
// the catalog cache, and checks it can write.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection error at %s: %w", cfg.Addr, err)
	}
	if err := client.Set(pingCtx, "booking-service:healthcheck", "ok", 5*time.Second).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis write check failed: %w", err)
	}

	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client, nil
}

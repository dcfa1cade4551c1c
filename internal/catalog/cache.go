package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/go-redis/redis/v8"
)

const auditoriumKeyPrefix = "auditorium:"

// Source is where a cache miss is served from.
type Source interface {
	GetAuditorium(ctx context.Context, id string) (*models.Auditorium, error)
}

// Cache keeps auditorium price lists in Redis in front of the database.
// Redis trouble degrades to reading the source directly.
type Cache struct {
	Source Source
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewCache(source Source, client *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{Source: source, Client: client, TTL: ttl, Logger: log}
}

func auditoriumKey(id string) string {
	return auditoriumKeyPrefix + id
}

func (c *Cache) GetAuditorium(ctx context.Context, id string) (*models.Auditorium, error) {
	raw, err := c.Client.Get(ctx, auditoriumKey(id)).Bytes()
	switch {
	case err == nil:
		var a models.Auditorium
		if jerr := json.Unmarshal(raw, &a); jerr == nil {
			return &a, nil
		}
		c.Logger.Warn("CATALOG", fmt.Sprintf("Discarding unreadable cache entry for auditorium %s", id))
	case err != redis.Nil:
		c.Logger.Warn("CATALOG", fmt.Sprintf("Redis read failed for auditorium %s: %v", id, err))
	}

	a, err := c.Source.GetAuditorium(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(a); err == nil {
		if err := c.Client.Set(ctx, auditoriumKey(id), data, c.TTL).Err(); err != nil {
			c.Logger.Warn("CATALOG", fmt.Sprintf("Failed to cache auditorium %s: %v", id, err))
		}
	}
	return a, nil
}

// Invalidate drops the cached copy after a price list change.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	return c.Client.Del(ctx, auditoriumKey(id)).Err()
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockTimeout = errors.New("timed out waiting for auditorium lock")

const retryInterval = 50 * time.Millisecond

// Redis serializes approvals and cancellations of one auditorium across
// processes with a SetNX lock carrying an owner token.
type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
	Wait   time.Duration
}

func NewRedis(client *redis.Client, log *logger.Logger, ttl, wait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Redis{Client: client, Logger: log, TTL: ttl, Wait: wait}
}

func lockKey(auditoriumID string) string {
	return "auditorium_lock:" + auditoriumID
}

// TryLock makes one SetNX attempt.
func (r *Redis) TryLock(ctx context.Context, auditoriumID, token string) (bool, error) {
	return r.Client.SetNX(ctx, lockKey(auditoriumID), token, r.TTL).Result()
}

// unlockScript compares and deletes in one step, so a holder whose lease
// expired cannot remove the next owner's key.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock deletes the key only while token still owns it.
func (r *Redis) Unlock(ctx context.Context, auditoriumID, token string) error {
	err := unlockScript.Run(ctx, r.Client, []string{lockKey(auditoriumID)}, token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Lock retries until the lock is taken, Wait elapses or ctx ends.
func (r *Redis) Lock(ctx context.Context, auditoriumID string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(r.Wait)

	for {
		ok, err := r.TryLock(ctx, auditoriumID, token)
		if err != nil {
			return nil, fmt.Errorf("lock auditorium %s: %w", auditoriumID, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, auditoriumID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	return func() {
		// Release even if the caller's context was cancelled meanwhile.
		if err := r.Unlock(context.Background(), auditoriumID, token); err != nil && r.Logger != nil {
			r.Logger.Error("REDIS", fmt.Sprintf("Failed to release lock for auditorium %s: %v", auditoriumID, err))
		}
	}, nil
}

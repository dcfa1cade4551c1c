package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ms-booking/internal/models"
	"ms-booking/internal/slots"

	"github.com/go-redis/redis/v8"
)

const commitRetries = 5

// RedisIndex stores occupancy in Redis so several processes share one view.
//
//	occupancy:<auditorium>:<date>   hash  interval -> Occupancy JSON
//	occupancy:dates:<auditorium>    set   dates with at least one claim
//	occupancy:booking:<booking>     set   "<date>|<interval>" claimed by the booking
type RedisIndex struct {
	Client *redis.Client
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{Client: client}
}

func dateKey(auditoriumID string, date slots.Date) string {
	return fmt.Sprintf("occupancy:%s:%s", auditoriumID, date)
}

func datesKey(auditoriumID string) string {
	return "occupancy:dates:" + auditoriumID
}

func bookingKey(bookingID string) string {
	return "occupancy:booking:" + bookingID
}

func (r *RedisIndex) IsFree(ctx context.Context, auditoriumID string, date slots.Date, iv slots.Interval) (bool, error) {
	existing, err := r.Committed(ctx, auditoriumID, date)
	if err != nil {
		return false, err
	}
	for _, occ := range existing {
		if occ.Interval.Overlaps(iv) {
			return false, nil
		}
	}
	return true, nil
}

// Commit runs an optimistic WATCH/MULTI transaction over every date key the
// booking touches and retries when another writer got there first.
func (r *RedisIndex) Commit(ctx context.Context, b *models.Booking) error {
	wanted := occupancies(b)
	if len(wanted) == 0 {
		return nil
	}

	keys := make([]string, 0)
	seen := make(map[string]bool)
	for _, want := range wanted {
		k := dateKey(b.AuditoriumID, want.Date)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	txf := func(tx *redis.Tx) error {
		existing := make(map[slots.Date][]Occupancy)
		for _, want := range wanted {
			if _, ok := existing[want.Date]; ok {
				continue
			}
			list, err := readDate(ctx, tx, b.AuditoriumID, want.Date)
			if err != nil {
				return err
			}
			existing[want.Date] = list
		}
		for _, want := range wanted {
			if held, clash := firstClash(want, existing[want.Date]); clash {
				return clashError(want, held)
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, want := range wanted {
				payload, err := json.Marshal(want)
				if err != nil {
					return err
				}
				pipe.HSet(ctx, dateKey(b.AuditoriumID, want.Date), want.Interval.String(), payload)
				pipe.SAdd(ctx, datesKey(b.AuditoriumID), want.Date.String())
				pipe.SAdd(ctx, bookingKey(b.ID), want.Date.String()+"|"+want.Interval.String())
			}
			return nil
		})
		return err
	}

	for i := 0; i < commitRetries; i++ {
		err := r.Client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("commit booking %s: %w", b.ID, redis.TxFailedErr)
}

// Release removes only fields still owned by b, so a slot re-claimed by
// another booking is never dropped.
func (r *RedisIndex) Release(ctx context.Context, b *models.Booking) error {
	members, err := r.Client.SMembers(ctx, bookingKey(b.ID)).Result()
	if err != nil {
		return err
	}

	for _, member := range members {
		date, field, ok := strings.Cut(member, "|")
		if !ok {
			continue
		}
		d, err := slots.ParseDate(date)
		if err != nil {
			continue
		}
		key := dateKey(b.AuditoriumID, d)

		raw, err := r.Client.HGet(ctx, key, field).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}
		var occ Occupancy
		if err := json.Unmarshal([]byte(raw), &occ); err != nil {
			return err
		}
		if occ.BookingID != b.ID {
			continue
		}
		if err := r.Client.HDel(ctx, key, field).Err(); err != nil {
			return err
		}
		if n, err := r.Client.HLen(ctx, key).Result(); err == nil && n == 0 {
			r.Client.SRem(ctx, datesKey(b.AuditoriumID), date)
		}
	}
	return r.Client.Del(ctx, bookingKey(b.ID)).Err()
}

func (r *RedisIndex) Committed(ctx context.Context, auditoriumID string, date slots.Date) ([]Occupancy, error) {
	list, err := readDate(ctx, r.Client, auditoriumID, date)
	if err != nil {
		return nil, err
	}
	sortOccupancy(list)
	return list, nil
}

func (r *RedisIndex) Booked(ctx context.Context, auditoriumID string) ([]Occupancy, error) {
	dates, err := r.Client.SMembers(ctx, datesKey(auditoriumID)).Result()
	if err != nil {
		return nil, err
	}
	var out []Occupancy
	for _, raw := range dates {
		d, err := slots.ParseDate(raw)
		if err != nil {
			continue
		}
		list, err := readDate(ctx, r.Client, auditoriumID, d)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	sortOccupancy(out)
	return out, nil
}

func readDate(ctx context.Context, c redis.Cmdable, auditoriumID string, date slots.Date) ([]Occupancy, error) {
	fields, err := c.HGetAll(ctx, dateKey(auditoriumID, date)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Occupancy, 0, len(fields))
	for _, raw := range fields {
		var occ Occupancy
		if err := json.Unmarshal([]byte(raw), &occ); err != nil {
			return nil, fmt.Errorf("decode occupancy in %s: %w", dateKey(auditoriumID, date), err)
		}
		out = append(out, occ)
	}
	return out, nil
}

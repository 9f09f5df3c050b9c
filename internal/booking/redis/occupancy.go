// Package redis caches occurrence seat counts and tracks pending-hold
// marker keys. Hold markers expire with the booking's hold window; main
// subscribes to Redis keyspace expiry events and turns each lapsed marker
// into an occupancy refresh for live views. The cache is advisory only —
// the database remains the arbiter of reservability.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	seatsKeyPrefix = "occupancy:"
	holdKeyPrefix  = "booking_hold:"

	// unlimitedSentinel marks occurrences without a capacity bound so a
	// cache hit can still answer "nil seats left".
	unlimitedSentinel = "unlimited"

	// seatsTTL bounds staleness when an invalidation is missed.
	seatsTTL = 30 * time.Second
)

type Redis struct {
	Client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client}
}

// GetSeatsLeft reads the cached seat count. The second return value
// reports whether the cache held an entry at all.
func (r *Redis) GetSeatsLeft(ctx context.Context, occurrenceID string) (*int, bool, error) {
	val, err := r.Client.Get(ctx, seatsKeyPrefix+occurrenceID).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if val == unlimitedSentinel {
		return nil, true, nil
	}
	seats, err := strconv.Atoi(val)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt seats_left entry for %s: %w", occurrenceID, err)
	}
	return &seats, true, nil
}

// SetSeatsLeft stores the seat count, nil meaning unlimited.
func (r *Redis) SetSeatsLeft(ctx context.Context, occurrenceID string, seats *int) error {
	val := unlimitedSentinel
	if seats != nil {
		val = strconv.Itoa(*seats)
	}
	return r.Client.Set(ctx, seatsKeyPrefix+occurrenceID, val, seatsTTL).Err()
}

// Invalidate drops the cached seat count for an occurrence.
func (r *Redis) Invalidate(ctx context.Context, occurrenceID string) error {
	return r.Client.Del(ctx, seatsKeyPrefix+occurrenceID).Err()
}

// SetHold writes the pending-hold marker for a booking. The key carries
// both IDs because an expiry notification delivers only the key name.
func (r *Redis) SetHold(ctx context.Context, bookingID, occurrenceID string, ttl time.Duration) error {
	key := holdKey(occurrenceID, bookingID)
	return r.Client.Set(ctx, key, bookingID, ttl).Err()
}

// ReleaseHold removes a booking's hold markers. Cancellation frees the
// seat immediately rather than waiting out the window.
func (r *Redis) ReleaseHold(ctx context.Context, bookingID string) error {
	var cursor uint64
	for {
		keys, next, err := r.Client.Scan(ctx, cursor, holdKeyPrefix+"*:"+bookingID, 50).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.Client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func holdKey(occurrenceID, bookingID string) string {
	return holdKeyPrefix + occurrenceID + ":" + bookingID
}

// ParseHoldKey splits an expired marker key back into its occurrence and
// booking IDs. Returns false for keys that are not hold markers.
func ParseHoldKey(key string) (occurrenceID, bookingID string, ok bool) {
	if !strings.HasPrefix(key, holdKeyPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(key, holdKeyPrefix)
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/booking/redis"
)

func setupRedis(t *testing.T) (*redis.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return redis.NewRedis(client), mr
}

func intPtr(v int) *int { return &v }

func TestSeatsLeftCache(t *testing.T) {
	r, _ := setupRedis(t)
	ctx := context.Background()

	// Cold cache
	_, ok, err := r.GetSeatsLeft(ctx, "occ-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetSeatsLeft(ctx, "occ-1", intPtr(4)))
	seats, ok, err := r.GetSeatsLeft(ctx, "occ-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, seats)
	assert.Equal(t, 4, *seats)

	require.NoError(t, r.Invalidate(ctx, "occ-1"))
	_, ok, err = r.GetSeatsLeft(ctx, "occ-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeatsLeftCache_UnlimitedSentinel(t *testing.T) {
	r, _ := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, r.SetSeatsLeft(ctx, "occ-1", nil))

	seats, ok, err := r.GetSeatsLeft(ctx, "occ-1")
	require.NoError(t, err)
	assert.True(t, ok, "unlimited is a cache hit, not a miss")
	assert.Nil(t, seats)
}

func TestSeatsLeftCache_EntryExpires(t *testing.T) {
	r, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, r.SetSeatsLeft(ctx, "occ-1", intPtr(4)))
	mr.FastForward(31 * time.Second)

	_, ok, err := r.GetSeatsLeft(ctx, "occ-1")
	require.NoError(t, err)
	assert.False(t, ok, "entry must age out on its own")
}

func TestHoldMarkers(t *testing.T) {
	r, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, r.SetHold(ctx, "bk-1", "occ-1", 15*time.Minute))
	assert.True(t, mr.Exists("booking_hold:occ-1:bk-1"))

	require.NoError(t, r.ReleaseHold(ctx, "bk-1"))
	assert.False(t, mr.Exists("booking_hold:occ-1:bk-1"))
}

func TestHoldMarker_ExpiresWithWindow(t *testing.T) {
	r, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, r.SetHold(ctx, "bk-1", "occ-1", 15*time.Minute))
	mr.FastForward(16 * time.Minute)

	assert.False(t, mr.Exists("booking_hold:occ-1:bk-1"))
}

func TestReleaseHold_OnlyTargetBooking(t *testing.T) {
	r, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, r.SetHold(ctx, "bk-1", "occ-1", 15*time.Minute))
	require.NoError(t, r.SetHold(ctx, "bk-2", "occ-1", 15*time.Minute))

	require.NoError(t, r.ReleaseHold(ctx, "bk-1"))
	assert.False(t, mr.Exists("booking_hold:occ-1:bk-1"))
	assert.True(t, mr.Exists("booking_hold:occ-1:bk-2"))
}

func TestParseHoldKey(t *testing.T) {
	occ, bk, ok := redis.ParseHoldKey("booking_hold:occ-1:bk-1")
	require.True(t, ok)
	assert.Equal(t, "occ-1", occ)
	assert.Equal(t, "bk-1", bk)

	for _, key := range []string{
		"occupancy:occ-1",
		"booking_hold:",
		"booking_hold:occ-only",
		"booking_hold::bk-1",
	} {
		_, _, ok := redis.ParseHoldKey(key)
		assert.False(t, ok, "key %q is not a hold marker", key)
	}
}

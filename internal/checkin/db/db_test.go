package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/checkin/db"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.CheckinToken)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}
}

func newToken(id, occurrenceID, code string, expiresAt time.Time) models.CheckinToken {
	return models.CheckinToken{
		ID:           id,
		OccurrenceID: occurrenceID,
		CodeHash:     utils.HashCheckinCode(code),
		ExpiresAt:    expiresAt,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestHasValidToken(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, d.CreateToken(ctx, newToken("tok-1", "occ-1", "654321", now.Add(30*time.Minute))))

	ok, err := d.HasValidToken(ctx, "occ-1", utils.HashCheckinCode("654321"), now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Wrong code
	ok, err = d.HasValidToken(ctx, "occ-1", utils.HashCheckinCode("000000"), now)
	require.NoError(t, err)
	assert.False(t, ok)

	// Right code, different occurrence
	ok, err = d.HasValidToken(ctx, "occ-2", utils.HashCheckinCode("654321"), now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasValidToken_ExpiryIsStrict(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, d.CreateToken(ctx, newToken("tok-1", "occ-1", "654321", now.Add(-1*time.Second))))

	ok, err := d.HasValidToken(ctx, "occ-1", utils.HashCheckinCode("654321"), now)
	require.NoError(t, err)
	assert.False(t, ok, "token expired before now must not validate")
}

func TestRotatingCodesCoexist(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// A newer token does not revoke the earlier one before its expiry.
	require.NoError(t, d.CreateToken(ctx, newToken("tok-1", "occ-1", "111111", now.Add(10*time.Minute))))
	require.NoError(t, d.CreateToken(ctx, newToken("tok-2", "occ-1", "222222", now.Add(30*time.Minute))))

	for _, code := range []string{"111111", "222222"} {
		ok, err := d.HasValidToken(ctx, "occ-1", utils.HashCheckinCode(code), now)
		require.NoError(t, err)
		assert.True(t, ok, "code %s must still validate", code)
	}
}

func TestListTokens(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	older := newToken("tok-1", "occ-1", "111111", now.Add(10*time.Minute))
	older.CreatedAt = now.Add(-5 * time.Minute)
	require.NoError(t, d.CreateToken(ctx, older))
	require.NoError(t, d.CreateToken(ctx, newToken("tok-2", "occ-1", "222222", now.Add(30*time.Minute))))
	require.NoError(t, d.CreateToken(ctx, newToken("tok-3", "occ-2", "333333", now.Add(30*time.Minute))))

	tokens, err := d.ListTokens(ctx, "occ-1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "tok-2", tokens[0].ID, "newest first")
	assert.Equal(t, "tok-1", tokens[1].ID)
}

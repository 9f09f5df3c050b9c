// Package db stores check-in tokens. Only code hashes are persisted;
// expired tokens are matched out by the query rather than deleted, so an
// occurrence can rotate codes without invalidating earlier ones ahead of
// their expiry.
package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateToken inserts a new check-in token.
func (d *DB) CreateToken(ctx context.Context, token models.CheckinToken) error {
	_, err := d.Bun.NewInsert().Model(&token).Exec(ctx)
	return err
}

// HasValidToken reports whether the occurrence has a token matching the
// code hash with expiry strictly in the future.
func (d *DB) HasValidToken(ctx context.Context, occurrenceID, codeHash string, now time.Time) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.CheckinToken)(nil)).
		Where("occurrence_id = ?", occurrenceID).
		Where("code_hash = ?", codeHash).
		Where("expires_at > ?", now).
		Exists(ctx)
}

// ListTokens returns the tokens issued for an occurrence, newest first.
// Used by the issuing expert to review rotation state.
func (d *DB) ListTokens(ctx context.Context, occurrenceID string) ([]models.CheckinToken, error) {
	var tokens []models.CheckinToken
	err := d.Bun.NewSelect().
		Model(&tokens).
		Where("occurrence_id = ?", occurrenceID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

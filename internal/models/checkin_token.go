package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CheckinToken is a short-lived credential authorizing attendance
// confirmation for an occurrence. Only the sha256 hash of the plaintext
// code is stored; the plaintext is returned once to the issuing expert.
// Several tokens may be live for one occurrence (rotating codes), each
// valid until its own expiry. Single use per booking is enforced on the
// booking side via the checked_in_at null check, not here.
type CheckinToken struct {
	bun.BaseModel `bun:"table:checkin_tokens"`

	ID           string    `bun:"id,pk" json:"id"`
	OccurrenceID string    `bun:"occurrence_id,notnull" json:"occurrence_id"`
	CodeHash     string    `bun:"code_hash,notnull" json:"-"`
	ExpiresAt    time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
}

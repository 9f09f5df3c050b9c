package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Session is a bookable offering published by a motion expert at a studio.
// Occurrences are its scheduled time instances.
type Session struct {
	bun.BaseModel `bun:"table:sessions"`

	ID          string    `bun:"id,pk" json:"id"`
	HostID      string    `bun:"host_id,notnull" json:"host_id"`
	ExpertID    string    `bun:"expert_id,notnull" json:"expert_id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description" json:"description,omitempty"`
	Price       float64   `bun:"price,notnull" json:"price"`
	ImageURL    string    `bun:"image_url" json:"image_url,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Occurrence is one scheduled time instance of a session. Capacity is nil
// for unlimited occurrences; bookings count against it otherwise.
type Occurrence struct {
	bun.BaseModel `bun:"table:occurrences"`

	ID        string    `bun:"id,pk" json:"id"`
	SessionID string    `bun:"session_id,notnull" json:"session_id"`
	StartsAt  time.Time `bun:"starts_at,notnull" json:"starts_at"`
	EndsAt    time.Time `bun:"ends_at,notnull" json:"ends_at"`
	Capacity  *int      `bun:"capacity" json:"capacity,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`

	Session *Session `bun:"rel:belongs-to,join:session_id=id" json:"session,omitempty"`
}

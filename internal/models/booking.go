package models

import (
	"time"

	"github.com/uptrace/bun"
)

// BookingStatus is the booking lifecycle state. Only pending and confirmed
// bookings are "active": they occupy a seat and block duplicates.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

// Active reports whether the booking still claims a seat.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// PaymentStatus tracks the provider-side payment state of a booking.
type PaymentStatus string

const (
	PaymentNone            PaymentStatus = "none"
	PaymentRequiresPayment PaymentStatus = "requires_payment"
	PaymentProcessing      PaymentStatus = "processing"
	PaymentSucceeded       PaymentStatus = "succeeded"
	PaymentFailed          PaymentStatus = "failed"
)

// Booking is one athlete's claim on one occurrence. At most one active
// booking may exist per (occurrence, athlete) pair; the bookings table
// carries a partial unique index enforcing this. CheckedInAt is set at
// most once and permanently blocks cancellation.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID              string        `bun:"id,pk" json:"id"`
	OccurrenceID    string        `bun:"occurrence_id,notnull" json:"occurrence_id"`
	AthleteID       string        `bun:"athlete_id,notnull" json:"athlete_id"`
	Status          BookingStatus `bun:"status,notnull" json:"status"`
	PaymentStatus   PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	PaymentIntentID string        `bun:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CheckedInAt     *time.Time    `bun:"checked_in_at" json:"checked_in_at,omitempty"`
	CreatedAt       time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time     `bun:"updated_at,notnull" json:"updated_at"`

	Occurrence *Occurrence `bun:"rel:belongs-to,join:occurrence_id=id" json:"occurrence,omitempty"`
}

// BookingWithSession is returned by athlete-facing list endpoints so the UI
// can render title and price without extra round trips.
type BookingWithSession struct {
	Booking      Booking    `json:"booking"`
	Occurrence   Occurrence `json:"occurrence"`
	SessionTitle string     `json:"session_title"`
	Price        float64    `json:"price"`
}

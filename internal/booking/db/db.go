// Package db is the bun-backed storage layer for bookings. ReserveSeat
// and MarkCheckedIn are the two operations the rest of the system relies
// on for atomicity: seat counting plus insert run in one transaction with
// the occurrence row locked, and check-in is a single conditional update
// guarded by the null checked_in_at column. Callers must never split
// these into separate read-then-write round trips.
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-booking/internal/booking"
	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- OCCURRENCES ----------------

// GetOccurrence fetches one occurrence with its parent session.
func (d *DB) GetOccurrence(ctx context.Context, id string) (*models.Occurrence, error) {
	var occ models.Occurrence
	err := d.Bun.NewSelect().
		Model(&occ).
		Relation("Session").
		Where("occurrence.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrOccurrenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &occ, nil
}

// SeatsLeft computes remaining capacity for an occurrence: capacity minus
// confirmed bookings and pending bookings younger than the hold window.
// Returns nil for unlimited occurrences. The count definition must stay
// identical to the one ReserveSeat applies inside its transaction, or
// read-side availability drifts from what is actually reservable.
func (d *DB) SeatsLeft(ctx context.Context, occurrenceID string, holdWindow time.Duration) (*int, error) {
	occ, err := d.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	if occ.Capacity == nil {
		return nil, nil
	}
	count, err := countActive(ctx, d.Bun, occurrenceID, holdWindow)
	if err != nil {
		return nil, err
	}
	left := *occ.Capacity - count
	if left < 0 {
		left = 0
	}
	return &left, nil
}

// countActive counts the bookings that occupy a seat right now: every
// confirmed booking, plus pending bookings created within the hold
// window. Aged-out pending rows stop counting without being transitioned.
func countActive(ctx context.Context, idb bun.IDB, occurrenceID string, holdWindow time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-holdWindow)
	return idb.NewSelect().
		Model((*models.Booking)(nil)).
		Where("occurrence_id = ?", occurrenceID).
		Where("(status = ? OR (status = ? AND created_at > ?))",
			models.BookingConfirmed, models.BookingPending, cutoff).
		Count(ctx)
}

// ---------------- BOOKINGS ----------------

// ReserveSeat atomically claims a seat on an occurrence for an athlete.
// It locks the occurrence row, re-checks the duplicate and capacity
// invariants inside the transaction, and inserts the pending booking.
// The partial unique index on (occurrence_id, athlete_id) for active
// rows backstops the duplicate check against concurrent writers; a
// unique violation is surfaced as ErrAlreadyBooked.
func (d *DB) ReserveSeat(ctx context.Context, occurrenceID, athleteID string, holdWindow time.Duration) (*models.Booking, error) {
	var created models.Booking

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var occ models.Occurrence
		q := tx.NewSelect().
			Model(&occ).
			Where("id = ?", occurrenceID).
			Limit(1)
		if d.Bun.Dialect().Name() == dialect.PG {
			// Serializes concurrent reservations per occurrence. SQLite
			// (tests) has a single writer and rejects the clause.
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return booking.ErrOccurrenceNotFound
			}
			return err
		}

		exists, err := tx.NewSelect().
			Model((*models.Booking)(nil)).
			Where("occurrence_id = ?", occurrenceID).
			Where("athlete_id = ?", athleteID).
			Where("status IN (?)", bun.In([]models.BookingStatus{models.BookingPending, models.BookingConfirmed})).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return booking.ErrAlreadyBooked
		}

		if occ.Capacity != nil {
			count, err := countActive(ctx, tx, occurrenceID, holdWindow)
			if err != nil {
				return err
			}
			if count >= *occ.Capacity {
				return booking.ErrNoSeatsLeft
			}
		}

		now := time.Now().UTC()
		created = models.Booking{
			ID:            uuid.NewString(),
			OccurrenceID:  occurrenceID,
			AthleteID:     athleteID,
			Status:        models.BookingPending,
			PaymentStatus: models.PaymentNone,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := tx.NewInsert().Model(&created).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return booking.ErrAlreadyBooked
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetBookingByID fetches one booking by its ID.
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetActiveBookingForAthlete finds the athlete's pending or confirmed
// booking on an occurrence, or ErrBookingNotFound.
func (d *DB) GetActiveBookingForAthlete(ctx context.Context, occurrenceID, athleteID string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("occurrence_id = ?", occurrenceID).
		Where("athlete_id = ?", athleteID).
		Where("status IN (?)", bun.In([]models.BookingStatus{models.BookingPending, models.BookingConfirmed})).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBooking transitions a booking to cancelled. The null check on
// checked_in_at rides inside the statement so a concurrent check-in
// cannot interleave between guard and write; zero rows affected means the
// booking was checked in since the caller last looked.
func (d *DB) CancelBooking(ctx context.Context, bookingID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingCancelled).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", bookingID).
		Where("checked_in_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkCheckedIn sets checked_in_at exactly once and confirms the booking.
// Zero rows affected means the timestamp was already set.
func (d *DB) MarkCheckedIn(ctx context.Context, bookingID string) (bool, error) {
	now := time.Now().UTC()
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("checked_in_at = ?", now).
		Set("status = ?", models.BookingConfirmed).
		Set("updated_at = ?", now).
		Where("id = ?", bookingID).
		Where("checked_in_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListBookingsByAthlete returns the athlete's bookings newest first,
// enriched with occurrence times and session title/price for list views.
func (d *DB) ListBookingsByAthlete(ctx context.Context, athleteID string) ([]models.BookingWithSession, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Relation("Occurrence").
		Relation("Occurrence.Session").
		Where("booking.athlete_id = ?", athleteID).
		Order("booking.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.BookingWithSession, 0, len(bookings))
	for _, b := range bookings {
		item := models.BookingWithSession{Booking: b}
		if b.Occurrence != nil {
			item.Occurrence = *b.Occurrence
			if b.Occurrence.Session != nil {
				item.SessionTitle = b.Occurrence.Session.Title
				item.Price = b.Occurrence.Session.Price
			}
		}
		item.Booking.Occurrence = nil
		out = append(out, item)
	}
	return out, nil
}

// UpdateBookingPayment records the Stripe intent and provider state.
func (d *DB) UpdateBookingPayment(ctx context.Context, bookingID string, status models.PaymentStatus, intentID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", status).
		Set("payment_intent_id = ?", intentID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", bookingID).
		Exec(ctx)
	return err
}

// isUniqueViolation recognizes duplicate-key failures from Postgres
// (class 23505) and from the SQLite shim used in tests.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

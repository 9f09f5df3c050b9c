// Package checkin implements the code-based attendance protocol: experts
// issue short-lived hashed codes for an occurrence, and athletes (or the
// operating expert) redeem them against a booking. Both entry paths share
// one validation order: booking active and not checked in, occurrence
// match, live code, then the single atomic attendance write.
package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

// BookingStore is the slice of the booking storage layer the protocol
// needs. MarkCheckedIn must be atomic on the null checked_in_at guard.
type BookingStore interface {
	GetOccurrence(ctx context.Context, id string) (*models.Occurrence, error)
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetActiveBookingForAthlete(ctx context.Context, occurrenceID, athleteID string) (*models.Booking, error)
	MarkCheckedIn(ctx context.Context, bookingID string) (bool, error)
}

type TokenStore interface {
	CreateToken(ctx context.Context, token models.CheckinToken) error
	HasValidToken(ctx context.Context, occurrenceID, codeHash string, now time.Time) (bool, error)
}

type EventPublisher interface {
	PublishBookingCheckedIn(booking models.Booking) error
}

// OccupancyNotifier lets the booking side refresh cached seat counts and
// live views after an attendance write.
type OccupancyNotifier interface {
	NotifyCheckedIn(ctx context.Context, occurrenceID string)
}

type Service struct {
	Bookings  BookingStore
	Tokens    TokenStore
	Kafka     EventPublisher
	Occupancy OccupancyNotifier
	CodeTTL   time.Duration
	CodeLen   int

	logger *logger.Logger
}

func NewService(bookings BookingStore, tokens TokenStore, kafka EventPublisher, occupancy OccupancyNotifier, codeTTL time.Duration, codeLen int, log *logger.Logger) *Service {
	return &Service{
		Bookings:  bookings,
		Tokens:    tokens,
		Kafka:     kafka,
		Occupancy: occupancy,
		CodeTTL:   codeTTL,
		CodeLen:   codeLen,
		logger:    log,
	}
}

// IssuedToken is returned once at issue time; the plaintext code is never
// recoverable afterwards.
type IssuedToken struct {
	Token models.CheckinToken
	Code  string
}

// IssueToken mints a check-in code for an occurrence. Only the session's
// expert may issue codes. A zero ttl uses the configured default.
func (s *Service) IssueToken(ctx context.Context, occurrenceID, expertID string, ttl time.Duration) (*IssuedToken, error) {
	if expertID == "" {
		return nil, booking.ErrUnauthenticated
	}
	occ, err := s.Bookings.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	if occ.Session == nil || occ.Session.ExpertID != expertID {
		return nil, booking.ErrForbidden
	}

	if ttl <= 0 {
		ttl = s.CodeTTL
	}
	code, err := utils.GenerateCheckinCode(s.CodeLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate check-in code: %w", err)
	}

	token := models.CheckinToken{
		ID:           uuid.NewString(),
		OccurrenceID: occurrenceID,
		CodeHash:     utils.HashCheckinCode(code),
		ExpiresAt:    time.Now().UTC().Add(ttl),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Tokens.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store check-in token: %w", err)
	}

	s.logger.LogCheckin("ISSUE", occurrenceID, fmt.Sprintf("token %s expires %s", token.ID, token.ExpiresAt.Format(time.RFC3339)))
	return &IssuedToken{Token: token, Code: code}, nil
}

// SelfCheckIn redeems a code against the caller's own active booking for
// the occurrence.
func (s *Service) SelfCheckIn(ctx context.Context, occurrenceID, athleteID, code string) (*models.Booking, error) {
	if athleteID == "" {
		return nil, booking.ErrUnauthenticated
	}
	b, err := s.Bookings.GetActiveBookingForAthlete(ctx, occurrenceID, athleteID)
	if err != nil {
		return nil, err
	}
	return s.checkIn(ctx, b, occurrenceID, code)
}

// OperatorCheckIn redeems a code against an explicit booking, scanned by
// the session operator from the athlete's device.
func (s *Service) OperatorCheckIn(ctx context.Context, occurrenceID, bookingID, code string) (*models.Booking, error) {
	b, err := s.Bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.checkIn(ctx, b, occurrenceID, code)
}

// checkIn applies the shared validation order and the atomic attendance
// write. The occurrence mismatch check runs before any code validation so
// a valid code for the wrong session still reports WrongSession.
func (s *Service) checkIn(ctx context.Context, b *models.Booking, occurrenceID, code string) (*models.Booking, error) {
	if !b.Status.Active() {
		return nil, booking.ErrBookingNotFound
	}
	if b.CheckedInAt != nil {
		return nil, booking.ErrAlreadyCheckedIn
	}
	if b.OccurrenceID != occurrenceID {
		return nil, booking.ErrWrongSession
	}

	ok, err := s.Tokens.HasValidToken(ctx, occurrenceID, utils.HashCheckinCode(code), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to validate check-in code: %w", err)
	}
	if !ok {
		return nil, booking.ErrInvalidOrExpiredCode
	}

	written, err := s.Bookings.MarkCheckedIn(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record check-in: %w", err)
	}
	if !written {
		// Another device won the race; checked_in_at was already set.
		return nil, booking.ErrAlreadyCheckedIn
	}

	updated, err := s.Bookings.GetBookingByID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	s.logger.LogCheckin("CHECKIN", occurrenceID, fmt.Sprintf("booking %s checked in", b.ID))

	if err := s.Kafka.PublishBookingCheckedIn(*updated); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("checked-in publish failed: %v", err))
	}
	s.Occupancy.NotifyCheckedIn(ctx, occurrenceID)

	return updated, nil
}

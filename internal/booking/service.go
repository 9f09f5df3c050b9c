package booking

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// DBLayer is the storage contract the service depends on. ReserveSeat is
// atomic: the capacity check and the insert happen in one transaction on
// the data side, never as separate round trips from here.
type DBLayer interface {
	GetOccurrence(ctx context.Context, id string) (*models.Occurrence, error)
	SeatsLeft(ctx context.Context, occurrenceID string, holdWindow time.Duration) (*int, error)
	ReserveSeat(ctx context.Context, occurrenceID, athleteID string, holdWindow time.Duration) (*models.Booking, error)
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) (bool, error)
	ListBookingsByAthlete(ctx context.Context, athleteID string) ([]models.BookingWithSession, error)
	UpdateBookingPayment(ctx context.Context, bookingID string, status models.PaymentStatus, intentID string) error
}

// OccupancyCache fronts seat counts with Redis and tracks pending-hold
// marker keys whose expiry drives live occupancy updates.
type OccupancyCache interface {
	GetSeatsLeft(ctx context.Context, occurrenceID string) (*int, bool, error)
	SetSeatsLeft(ctx context.Context, occurrenceID string, seats *int) error
	Invalidate(ctx context.Context, occurrenceID string) error
	SetHold(ctx context.Context, bookingID, occurrenceID string, ttl time.Duration) error
	ReleaseHold(ctx context.Context, bookingID string) error
}

type EventPublisher interface {
	PublishBookingCreated(booking models.Booking) error
	PublishBookingCancelled(booking models.Booking) error
	PublishOccupancyStatus(event models.OccupancyEvent) error
}

// OccupancyBroadcaster fans occupancy changes out to SSE subscribers.
type OccupancyBroadcaster interface {
	Broadcast(event models.OccupancyEvent)
}

type Service struct {
	DB         DBLayer
	Cache      OccupancyCache
	Kafka      EventPublisher
	SSE        OccupancyBroadcaster
	HoldWindow time.Duration

	logger *logger.Logger
}

func NewService(db DBLayer, cache OccupancyCache, kafka EventPublisher, sse OccupancyBroadcaster, holdWindow time.Duration, log *logger.Logger) *Service {
	return &Service{
		DB:         db,
		Cache:      cache,
		Kafka:      kafka,
		SSE:        sse,
		HoldWindow: holdWindow,
		logger:     log,
	}
}

// SeatsLeft returns remaining capacity for an occurrence, nil when the
// occurrence is unbounded. Served from the Redis cache when warm; every
// mutating operation invalidates the entry.
func (s *Service) SeatsLeft(ctx context.Context, occurrenceID string) (*int, error) {
	if seats, ok, err := s.Cache.GetSeatsLeft(ctx, occurrenceID); err == nil && ok {
		return seats, nil
	} else if err != nil {
		s.logger.Warn("CACHE", fmt.Sprintf("seats_left read failed for %s: %v", occurrenceID, err))
	}

	seats, err := s.DB.SeatsLeft(ctx, occurrenceID, s.HoldWindow)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.SetSeatsLeft(ctx, occurrenceID, seats); err != nil {
		s.logger.Warn("CACHE", fmt.Sprintf("seats_left write failed for %s: %v", occurrenceID, err))
	}
	return seats, nil
}

// Reserve claims a seat for the athlete using the configured hold window.
func (s *Service) Reserve(ctx context.Context, occurrenceID, athleteID string) (*models.Booking, error) {
	return s.ReserveWithHold(ctx, occurrenceID, athleteID, s.HoldWindow)
}

// ReserveWithHold claims a seat with an explicit hold window. Calling
// twice while the first booking is still active deterministically fails
// with ErrAlreadyBooked.
func (s *Service) ReserveWithHold(ctx context.Context, occurrenceID, athleteID string, holdWindow time.Duration) (*models.Booking, error) {
	if athleteID == "" {
		return nil, ErrUnauthenticated
	}

	created, err := s.DB.ReserveSeat(ctx, occurrenceID, athleteID, holdWindow)
	if err != nil {
		return nil, err
	}
	s.logger.LogBooking("RESERVE", created.ID, fmt.Sprintf("athlete %s reserved occurrence %s", athleteID, occurrenceID))

	// The hold marker mirrors the pending booking's grace period; its
	// expiry tells live views the seat stopped being blocked.
	if err := s.Cache.SetHold(ctx, created.ID, occurrenceID, holdWindow); err != nil {
		s.logger.Warn("CACHE", fmt.Sprintf("failed to set hold marker for booking %s: %v", created.ID, err))
	}

	if err := s.Kafka.PublishBookingCreated(*created); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("booking created publish failed: %v", err))
	}
	s.refreshOccupancy(ctx, occurrenceID, models.OccupancyReserved)

	return created, nil
}

// Cancel transitions the caller's booking to cancelled. The row is kept
// for the audit trail. Forbidden after check-in.
func (s *Service) Cancel(ctx context.Context, bookingID, callerID string) error {
	if callerID == "" {
		return ErrUnauthenticated
	}

	b, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.AthleteID != callerID {
		return ErrForbidden
	}
	if b.CheckedInAt != nil {
		return ErrAlreadyCheckedIn
	}

	ok, err := s.DB.CancelBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to cancel booking %s: %w", bookingID, err)
	}
	if !ok {
		// A check-in landed between our read and the update.
		return ErrAlreadyCheckedIn
	}
	s.logger.LogBooking("CANCEL", bookingID, "booking cancelled")

	if err := s.Cache.ReleaseHold(ctx, bookingID); err != nil {
		s.logger.Warn("CACHE", fmt.Sprintf("failed to release hold for booking %s: %v", bookingID, err))
	}

	b.Status = models.BookingCancelled
	if err := s.Kafka.PublishBookingCancelled(*b); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("booking cancelled publish failed: %v", err))
	}
	s.refreshOccupancy(ctx, b.OccurrenceID, models.OccupancyCancelled)

	return nil
}

// GetBooking returns one booking, restricted to its owner.
func (s *Service) GetBooking(ctx context.Context, bookingID, callerID string) (*models.Booking, error) {
	if callerID == "" {
		return nil, ErrUnauthenticated
	}
	b, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.AthleteID != callerID {
		return nil, ErrForbidden
	}
	return b, nil
}

// ListBookings returns the caller's bookings with session details.
func (s *Service) ListBookings(ctx context.Context, callerID string) ([]models.BookingWithSession, error) {
	if callerID == "" {
		return nil, ErrUnauthenticated
	}
	return s.DB.ListBookingsByAthlete(ctx, callerID)
}

// HandleHoldExpiry runs when a hold marker key lapses in Redis. The
// booking row is not transitioned: SeatsLeft already ignores pending rows
// older than the hold window, so this only refreshes live views. A
// booking that was confirmed or checked in meanwhile changes nothing.
func (s *Service) HandleHoldExpiry(ctx context.Context, occurrenceID, bookingID string) {
	b, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		s.logger.Warn("BOOKING", fmt.Sprintf("hold expired for unknown booking %s: %v", bookingID, err))
		return
	}
	if b.Status != models.BookingPending || b.CheckedInAt != nil {
		return
	}
	s.logger.LogBooking("HOLD_EXPIRED", bookingID, fmt.Sprintf("pending hold lapsed on occurrence %s", occurrenceID))
	s.refreshOccupancy(ctx, occurrenceID, models.OccupancyHoldExpired)
}

// NotifyCheckedIn refreshes cached seat counts and live views after an
// attendance write made by the checkin service.
func (s *Service) NotifyCheckedIn(ctx context.Context, occurrenceID string) {
	s.refreshOccupancy(ctx, occurrenceID, models.OccupancyCheckedIn)
}

// refreshOccupancy recomputes the seat count after a mutation and pushes
// it to the cache, Kafka, and SSE subscribers.
func (s *Service) refreshOccupancy(ctx context.Context, occurrenceID string, reason models.OccupancyReason) {
	if err := s.Cache.Invalidate(ctx, occurrenceID); err != nil {
		s.logger.Warn("CACHE", fmt.Sprintf("occupancy invalidate failed for %s: %v", occurrenceID, err))
	}

	seats, err := s.DB.SeatsLeft(ctx, occurrenceID, s.HoldWindow)
	if err != nil {
		s.logger.Error("BOOKING", fmt.Sprintf("occupancy recompute failed for %s: %v", occurrenceID, err))
		return
	}
	if err := s.Cache.SetSeatsLeft(ctx, occurrenceID, seats); err != nil {
		s.logger.Warn("CACHE", fmt.Sprintf("seats_left write failed for %s: %v", occurrenceID, err))
	}

	event := models.OccupancyEvent{
		OccurrenceID: occurrenceID,
		SeatsLeft:    seats,
		Reason:       reason,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.Kafka.PublishOccupancyStatus(event); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("occupancy publish failed: %v", err))
	}
	s.SSE.Broadcast(event)
}

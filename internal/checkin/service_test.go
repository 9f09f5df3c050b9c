package checkin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/booking"
	"ms-booking/internal/checkin"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

// ---------------- MOCKS ----------------

type MockBookingStore struct {
	mock.Mock
}

func (m *MockBookingStore) GetOccurrence(ctx context.Context, id string) (*models.Occurrence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Occurrence), args.Error(1)
}

func (m *MockBookingStore) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingStore) GetActiveBookingForAthlete(ctx context.Context, occurrenceID, athleteID string) (*models.Booking, error) {
	args := m.Called(ctx, occurrenceID, athleteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingStore) MarkCheckedIn(ctx context.Context, bookingID string) (bool, error) {
	args := m.Called(ctx, bookingID)
	return args.Bool(0), args.Error(1)
}

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) CreateToken(ctx context.Context, token models.CheckinToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenStore) HasValidToken(ctx context.Context, occurrenceID, codeHash string, now time.Time) (bool, error) {
	args := m.Called(ctx, occurrenceID, codeHash, now)
	return args.Bool(0), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishBookingCheckedIn(b models.Booking) error {
	args := m.Called(b)
	return args.Error(0)
}

type MockOccupancyNotifier struct {
	mock.Mock
}

func (m *MockOccupancyNotifier) NotifyCheckedIn(ctx context.Context, occurrenceID string) {
	m.Called(ctx, occurrenceID)
}

type checkinMocks struct {
	bookings  *MockBookingStore
	tokens    *MockTokenStore
	kafka     *MockEventPublisher
	occupancy *MockOccupancyNotifier
}

func newTestService(t *testing.T) (*checkin.Service, checkinMocks) {
	t.Helper()
	m := checkinMocks{
		bookings:  new(MockBookingStore),
		tokens:    new(MockTokenStore),
		kafka:     new(MockEventPublisher),
		occupancy: new(MockOccupancyNotifier),
	}
	svc := checkin.NewService(m.bookings, m.tokens, m.kafka, m.occupancy, 30*time.Minute, 6, logger.NewLogger())
	return svc, m
}

func occurrenceWithExpert(id, expertID string) *models.Occurrence {
	return &models.Occurrence{
		ID:      id,
		Session: &models.Session{ID: "session-1", ExpertID: expertID},
	}
}

// ---------------- ISSUE TOKEN ----------------

func TestIssueToken_OnlySessionExpert(t *testing.T) {
	svc, m := newTestService(t)

	m.bookings.On("GetOccurrence", mock.Anything, "occ-1").Return(occurrenceWithExpert("occ-1", "expert-1"), nil)

	_, err := svc.IssueToken(context.Background(), "occ-1", "expert-2", 0)
	assert.ErrorIs(t, err, booking.ErrForbidden)
	m.tokens.AssertNotCalled(t, "CreateToken", mock.Anything, mock.Anything)
}

func TestIssueToken_StoresHashNotCode(t *testing.T) {
	svc, m := newTestService(t)

	m.bookings.On("GetOccurrence", mock.Anything, "occ-1").Return(occurrenceWithExpert("occ-1", "expert-1"), nil)
	m.tokens.On("CreateToken", mock.Anything, mock.Anything).Return(nil)

	issued, err := svc.IssueToken(context.Background(), "occ-1", "expert-1", 10*time.Minute)
	require.NoError(t, err)

	assert.Len(t, issued.Code, 6)
	assert.Equal(t, utils.HashCheckinCode(issued.Code), issued.Token.CodeHash)
	assert.NotContains(t, issued.Token.CodeHash, issued.Code)
	assert.WithinDuration(t, time.Now().UTC().Add(10*time.Minute), issued.Token.ExpiresAt, 5*time.Second)
}

func TestIssueToken_ZeroTTLUsesDefault(t *testing.T) {
	svc, m := newTestService(t)

	m.bookings.On("GetOccurrence", mock.Anything, "occ-1").Return(occurrenceWithExpert("occ-1", "expert-1"), nil)
	m.tokens.On("CreateToken", mock.Anything, mock.Anything).Return(nil)

	issued, err := svc.IssueToken(context.Background(), "occ-1", "expert-1", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), issued.Token.ExpiresAt, 5*time.Second)
}

// ---------------- CHECK-IN ----------------

func TestSelfCheckIn_Success(t *testing.T) {
	svc, m := newTestService(t)

	pending := &models.Booking{
		ID:           "bk-1",
		OccurrenceID: "occ-1",
		AthleteID:    "athlete-1",
		Status:       models.BookingPending,
	}
	now := time.Now().UTC()
	confirmed := &models.Booking{
		ID:           "bk-1",
		OccurrenceID: "occ-1",
		AthleteID:    "athlete-1",
		Status:       models.BookingConfirmed,
		CheckedInAt:  &now,
	}

	m.bookings.On("GetActiveBookingForAthlete", mock.Anything, "occ-1", "athlete-1").Return(pending, nil)
	m.tokens.On("HasValidToken", mock.Anything, "occ-1", utils.HashCheckinCode("654321"), mock.Anything).Return(true, nil)
	m.bookings.On("MarkCheckedIn", mock.Anything, "bk-1").Return(true, nil)
	m.bookings.On("GetBookingByID", mock.Anything, "bk-1").Return(confirmed, nil)
	m.kafka.On("PublishBookingCheckedIn", *confirmed).Return(nil)
	m.occupancy.On("NotifyCheckedIn", mock.Anything, "occ-1").Return()

	got, err := svc.SelfCheckIn(context.Background(), "occ-1", "athlete-1", "654321")
	require.NoError(t, err)
	assert.NotNil(t, got.CheckedInAt)
	assert.Equal(t, models.BookingConfirmed, got.Status)

	m.bookings.AssertExpectations(t)
	m.kafka.AssertExpectations(t)
	m.occupancy.AssertExpectations(t)
}

func TestSelfCheckIn_RequiresIdentity(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SelfCheckIn(context.Background(), "occ-1", "", "654321")
	assert.ErrorIs(t, err, booking.ErrUnauthenticated)
}

func TestCheckIn_WrongSessionBeatsCodeValidation(t *testing.T) {
	svc, m := newTestService(t)

	// Booking belongs to occ-2; the code itself would be valid, but the
	// token store must never even be consulted.
	m.bookings.On("GetBookingByID", mock.Anything, "bk-1").Return(&models.Booking{
		ID:           "bk-1",
		OccurrenceID: "occ-2",
		AthleteID:    "athlete-1",
		Status:       models.BookingConfirmed,
	}, nil)

	_, err := svc.OperatorCheckIn(context.Background(), "occ-1", "bk-1", "654321")
	assert.ErrorIs(t, err, booking.ErrWrongSession)
	m.tokens.AssertNotCalled(t, "HasValidToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.bookings.AssertNotCalled(t, "MarkCheckedIn", mock.Anything, mock.Anything)
}

func TestCheckIn_InvalidOrExpiredCode(t *testing.T) {
	svc, m := newTestService(t)

	m.bookings.On("GetActiveBookingForAthlete", mock.Anything, "occ-1", "athlete-1").Return(&models.Booking{
		ID:           "bk-1",
		OccurrenceID: "occ-1",
		AthleteID:    "athlete-1",
		Status:       models.BookingPending,
	}, nil)
	m.tokens.On("HasValidToken", mock.Anything, "occ-1", mock.Anything, mock.Anything).Return(false, nil)

	_, err := svc.SelfCheckIn(context.Background(), "occ-1", "athlete-1", "000000")
	assert.ErrorIs(t, err, booking.ErrInvalidOrExpiredCode)
	m.bookings.AssertNotCalled(t, "MarkCheckedIn", mock.Anything, mock.Anything)
}

func TestCheckIn_AlreadyCheckedIn(t *testing.T) {
	svc, m := newTestService(t)

	stamp := time.Now().UTC()
	m.bookings.On("GetBookingByID", mock.Anything, "bk-1").Return(&models.Booking{
		ID:           "bk-1",
		OccurrenceID: "occ-1",
		Status:       models.BookingConfirmed,
		CheckedInAt:  &stamp,
	}, nil)

	_, err := svc.OperatorCheckIn(context.Background(), "occ-1", "bk-1", "654321")
	assert.ErrorIs(t, err, booking.ErrAlreadyCheckedIn)
	m.tokens.AssertNotCalled(t, "HasValidToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckIn_ConcurrentWriteLoses(t *testing.T) {
	svc, m := newTestService(t)

	// The read sees no check-in, but the conditional write affects zero
	// rows because another device got there first.
	m.bookings.On("GetActiveBookingForAthlete", mock.Anything, "occ-1", "athlete-1").Return(&models.Booking{
		ID:           "bk-1",
		OccurrenceID: "occ-1",
		AthleteID:    "athlete-1",
		Status:       models.BookingConfirmed,
	}, nil)
	m.tokens.On("HasValidToken", mock.Anything, "occ-1", mock.Anything, mock.Anything).Return(true, nil)
	m.bookings.On("MarkCheckedIn", mock.Anything, "bk-1").Return(false, nil)

	_, err := svc.SelfCheckIn(context.Background(), "occ-1", "athlete-1", "654321")
	assert.ErrorIs(t, err, booking.ErrAlreadyCheckedIn)
	m.kafka.AssertNotCalled(t, "PublishBookingCheckedIn", mock.Anything)
	m.occupancy.AssertNotCalled(t, "NotifyCheckedIn", mock.Anything, mock.Anything)
}

func TestCheckIn_CancelledBookingIsNotFound(t *testing.T) {
	svc, m := newTestService(t)

	m.bookings.On("GetBookingByID", mock.Anything, "bk-1").Return(&models.Booking{
		ID:           "bk-1",
		OccurrenceID: "occ-1",
		Status:       models.BookingCancelled,
	}, nil)

	_, err := svc.OperatorCheckIn(context.Background(), "occ-1", "bk-1", "654321")
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"ms-booking/internal/models"
)

// InitStripe initializes the Stripe API with the secret key
func InitStripe() {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
}

// Per-booking in-process locks so two concurrent requests cannot create
// duplicate intents for the same booking.
var paymentIntentLocks = make(map[string]bool)
var paymentIntentMutex = &sync.Mutex{}

// CreatePaymentIntent creates (or retrieves) a Stripe payment intent for
// a pending booking, priced from the parent session.
func (s *Service) CreatePaymentIntent(ctx context.Context, bookingID, callerID string) (*stripe.PaymentIntent, error) {
	s.logger.Info("PAYMENT", fmt.Sprintf("Creating payment intent for booking: %s", bookingID))

	paymentIntentMutex.Lock()
	if _, locked := paymentIntentLocks[bookingID]; locked {
		paymentIntentMutex.Unlock()
		s.logger.Warn("PAYMENT", fmt.Sprintf("Payment intent creation for booking %s is already in progress", bookingID))
		time.Sleep(500 * time.Millisecond)
		return s.CreatePaymentIntent(ctx, bookingID, callerID)
	}
	paymentIntentLocks[bookingID] = true
	paymentIntentMutex.Unlock()

	defer func() {
		paymentIntentMutex.Lock()
		delete(paymentIntentLocks, bookingID)
		paymentIntentMutex.Unlock()
	}()

	b, err := s.GetBooking(ctx, bookingID, callerID)
	if err != nil {
		return nil, err
	}

	if b.Status != models.BookingPending {
		s.logger.Warn("PAYMENT", fmt.Sprintf("Cannot create payment intent for booking %s with status %s", bookingID, b.Status))
		return nil, errors.New("cannot create payment intent for a booking that is not pending")
	}

	// Reuse a still-usable intent instead of minting a new one
	if b.PaymentIntentID != "" {
		intent, err := paymentintent.Get(b.PaymentIntentID, nil)
		if err != nil {
			s.logger.Error("PAYMENT", fmt.Sprintf("Failed to retrieve existing Stripe payment intent %s: %v", b.PaymentIntentID, err))
		} else if intent.Status != stripe.PaymentIntentStatusCanceled && intent.Status != stripe.PaymentIntentStatusSucceeded {
			s.logger.Info("PAYMENT", fmt.Sprintf("Reusing existing payment intent %s with status %s", intent.ID, intent.Status))
			return intent, nil
		}
	}

	occ, err := s.DB.GetOccurrence(ctx, b.OccurrenceID)
	if err != nil {
		return nil, err
	}
	if occ.Session == nil {
		return nil, fmt.Errorf("occurrence %s has no session attached", occ.ID)
	}

	amountInCents := int64(occ.Session.Price * 100)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("booking_id", b.ID)
	params.AddMetadata("occurrence_id", b.OccurrenceID)

	intent, err := paymentintent.New(params)
	if err != nil {
		s.logger.Error("PAYMENT", fmt.Sprintf("Failed to create Stripe payment intent for booking %s: %v", bookingID, err))
		if dbErr := s.DB.UpdateBookingPayment(ctx, b.ID, models.PaymentFailed, ""); dbErr != nil {
			s.logger.Error("PAYMENT", fmt.Sprintf("Failed to record payment failure for booking %s: %v", bookingID, dbErr))
		}
		return nil, err
	}

	if err := s.DB.UpdateBookingPayment(ctx, b.ID, paymentStatusFromIntent(intent.Status), intent.ID); err != nil {
		s.logger.Error("PAYMENT", fmt.Sprintf("Failed to store payment intent %s on booking %s: %v", intent.ID, bookingID, err))
		return nil, err
	}

	s.logger.Info("PAYMENT", fmt.Sprintf("Created payment intent %s for booking %s (%d cents)", intent.ID, bookingID, amountInCents))
	return intent, nil
}

// paymentStatusFromIntent maps Stripe's intent states onto the booking's
// payment status enumeration.
func paymentStatusFromIntent(status stripe.PaymentIntentStatus) models.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return models.PaymentProcessing
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentFailed
	default:
		return models.PaymentRequiresPayment
	}
}

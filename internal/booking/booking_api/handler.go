package booking_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/sse"
	"ms-booking/internal/utils"
)

type Handler struct {
	BookingService *booking.Service
	SSE            *sse.OccupancyEmitter
	Logger         *logger.Logger
}

// statusForError maps the booking error taxonomy onto HTTP statuses so
// the UI can render a specific message for each failure.
func statusForError(err error) int {
	switch {
	case errors.Is(err, booking.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrOccurrenceNotFound), errors.Is(err, booking.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrAlreadyBooked), errors.Is(err, booking.ErrNoSeatsLeft), errors.Is(err, booking.ErrAlreadyCheckedIn):
		return http.StatusConflict
	case errors.Is(err, booking.ErrWrongSession), errors.Is(err, booking.ErrInvalidOrExpiredCode), errors.Is(err, booking.ErrInvalidPayload):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, message string, err error) {
	writeJSON(w, statusForError(err), utils.ErrorResponse(message, err.Error()))
}

// Reserve handles POST /api/occurrences/{occurrenceId}/bookings.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	occurrenceID := chi.URLParam(r, "occurrenceId")
	athleteID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("Reserve: occurrence=%s athlete=%s", occurrenceID, athleteID))

	created, err := h.BookingService.Reserve(r.Context(), occurrenceID, athleteID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Reserve failed: %v", err))
		writeError(w, "Could not reserve seat", err)
		return
	}

	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Seat reserved", created))
}

// SeatsLeft handles GET /api/occurrences/{occurrenceId}/seats.
func (h *Handler) SeatsLeft(w http.ResponseWriter, r *http.Request) {
	occurrenceID := chi.URLParam(r, "occurrenceId")

	seats, err := h.BookingService.SeatsLeft(r.Context(), occurrenceID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("SeatsLeft failed for %s: %v", occurrenceID, err))
		writeError(w, "Could not read availability", err)
		return
	}

	payload := map[string]interface{}{
		"occurrence_id": occurrenceID,
		"seats_left":    seats,
		"unlimited":     seats == nil,
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Availability", payload))
}

// GetBooking handles GET /api/bookings/{bookingId}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	b, err := h.BookingService.GetBooking(r.Context(), bookingID, auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBooking failed for %s: %v", bookingID, err))
		writeError(w, "Could not load booking", err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking", b))
}

// ListBookings handles GET /api/bookings.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.BookingService.ListBookings(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListBookings failed: %v", err))
		writeError(w, "Could not load bookings", err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Bookings", bookings))
}

// Cancel handles DELETE /api/bookings/{bookingId}.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("Cancel: bookingId=%s", bookingID))

	err := h.BookingService.Cancel(r.Context(), bookingID, auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Cancel failed for %s: %v", bookingID, err))
		writeError(w, "Could not cancel booking", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreatePaymentIntent handles POST /api/bookings/{bookingId}/payment-intent.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	intent, err := h.BookingService.CreatePaymentIntent(r.Context(), bookingID, auth.UserID(r.Context()))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePaymentIntent failed for %s: %v", bookingID, err))
		writeError(w, "Could not create payment intent", err)
		return
	}

	payload := map[string]interface{}{
		"payment_intent_id": intent.ID,
		"client_secret":     intent.ClientSecret,
		"status":            intent.Status,
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Payment intent created", payload))
}

// StreamOccupancy handles GET /api/occurrences/{occurrenceId}/occupancy/stream.
// It pushes seat count changes over SSE until the client disconnects.
// The stream sits outside the OIDC middleware because EventSource cannot
// set headers; the token rides in the `token` query parameter instead and
// identifies the subscriber.
func (h *Handler) StreamOccupancy(w http.ResponseWriter, r *http.Request) {
	occurrenceID := chi.URLParam(r, "occurrenceId")

	token, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Authentication required", err.Error()))
		return
	}
	subscriberID, err := auth.ExtractUserIDFromJWT(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Authentication required", err.Error()))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.SSE.Subscribe(r.Context(), occurrenceID)
	h.Logger.Info("SSE", fmt.Sprintf("User %s subscribed to occupancy of %s", subscriberID, occurrenceID))

	// Send the current count immediately so the client never starts blind
	if seats, err := h.BookingService.SeatsLeft(r.Context(), occurrenceID); err == nil {
		initial, _ := json.Marshal(map[string]interface{}{"occurrence_id": occurrenceID, "seats_left": seats})
		fmt.Fprintf(w, "data: %s\n\n", initial)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			h.Logger.Info("SSE", fmt.Sprintf("Client left occupancy stream of %s", occurrenceID))
			return
		case event, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

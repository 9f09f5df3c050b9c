package checkin_api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/checkin"
	"ms-booking/internal/checkin/qr"
	"ms-booking/internal/logger"
	"ms-booking/internal/utils"
)

type Handler struct {
	CheckinService *checkin.Service
	PublicURL      string
	Logger         *logger.Logger
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, booking.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrOccurrenceNotFound), errors.Is(err, booking.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrAlreadyCheckedIn):
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

type selfCheckinRequest struct {
	// Code is the typed plaintext code; Payload is raw scanned QR text.
	// Exactly one is expected, Payload wins when both are present.
	Code    string `json:"code"`
	Payload string `json:"payload"`
}

type operatorCheckinRequest struct {
	BookingID string `json:"booking_id"`
	Code      string `json:"code"`
	Payload   string `json:"payload"`
}

type issueTokenRequest struct {
	TTLMinutes int `json:"ttl_minutes"`
}

// SelfCheckin handles POST /api/occurrences/{occurrenceId}/checkin.
// The body carries either a typed code or a scanned payload; a scanned
// URL naming a different occurrence than the route fails with
// WrongSession before any code validation.
func (h *Handler) SelfCheckin(w http.ResponseWriter, r *http.Request) {
	occurrenceID := chi.URLParam(r, "occurrenceId")
	athleteID := auth.UserID(r.Context())

	var req selfCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	code := req.Code
	if req.Payload != "" {
		decoded, err := qr.Decode(req.Payload)
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("SelfCheckin: payload decode failed: %v", err))
			writeError(w, "Unreadable check-in payload", err)
			return
		}
		if decoded.OccurrenceID != "" && decoded.OccurrenceID != occurrenceID {
			h.Logger.Warn("API", fmt.Sprintf("SelfCheckin: scanned occurrence %s does not match %s", decoded.OccurrenceID, occurrenceID))
			writeError(w, "Code belongs to a different session", booking.ErrWrongSession)
			return
		}
		code = decoded.Code
	}

	b, err := h.CheckinService.SelfCheckIn(r.Context(), occurrenceID, athleteID, code)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("SelfCheckin failed for occurrence %s: %v", occurrenceID, err))
		writeError(w, checkinFailureMessage(err), err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Checked in", b))
}

// OperatorCheckin handles POST /api/occurrences/{occurrenceId}/checkin/operator.
func (h *Handler) OperatorCheckin(w http.ResponseWriter, r *http.Request) {
	occurrenceID := chi.URLParam(r, "occurrenceId")

	var req operatorCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	bookingID, code := req.BookingID, req.Code
	if req.Payload != "" {
		decoded, err := qr.Decode(req.Payload)
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("OperatorCheckin: payload decode failed: %v", err))
			writeError(w, "Unreadable check-in payload", err)
			return
		}
		if decoded.BookingID != "" {
			bookingID = decoded.BookingID
		}
		code = decoded.Code
	}
	if bookingID == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing booking id", "booking_id is required"))
		return
	}

	b, err := h.CheckinService.OperatorCheckIn(r.Context(), occurrenceID, bookingID, code)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("OperatorCheckin failed for booking %s: %v", bookingID, err))
		writeError(w, checkinFailureMessage(err), err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Checked in", b))
}

// IssueToken handles POST /api/occurrences/{occurrenceId}/checkin-tokens.
// Returns the plaintext code once, together with a QR PNG of the
// self-check-in URL.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	occurrenceID := chi.URLParam(r, "occurrenceId")
	expertID := auth.UserID(r.Context())

	var req issueTokenRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body → defaults
	}

	issued, err := h.CheckinService.IssueToken(r.Context(), occurrenceID, expertID, time.Duration(req.TTLMinutes)*time.Minute)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("IssueToken failed for occurrence %s: %v", occurrenceID, err))
		writeError(w, "Could not issue check-in code", err)
		return
	}

	selfURL := qr.EncodeSelfURL(h.PublicURL, occurrenceID, issued.Code)
	png, err := qr.RenderPNG(selfURL, 256)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("IssueToken: QR render failed: %v", err))
		writeError(w, "Could not render QR code", err)
		return
	}

	payload := map[string]interface{}{
		"token_id":   issued.Token.ID,
		"code":       issued.Code,
		"expires_at": issued.Token.ExpiresAt,
		"url":        selfURL,
		"qr_png":     base64.StdEncoding.EncodeToString(png),
	}
	writeJSON(w, http.StatusCreated, utils.SuccessResponse("Check-in code issued", payload))
}

// checkinFailureMessage keeps the user-facing text specific for the known
// failure modes; the generic line is the fallback only.
func checkinFailureMessage(err error) string {
	switch {
	case errors.Is(err, booking.ErrInvalidOrExpiredCode):
		return "Invalid or expired code"
	case errors.Is(err, booking.ErrWrongSession):
		return "Code belongs to a different session"
	case errors.Is(err, booking.ErrAlreadyCheckedIn):
		return "Already checked in"
	case errors.Is(err, booking.ErrBookingNotFound):
		return "No active booking found"
	default:
		return "Check-in failed"
	}
}

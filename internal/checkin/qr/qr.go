// Package qr is the pure codec for check-in payloads. It never touches
// the network or the database and never performs the check-in itself; it
// only produces scannable payloads and extracts fields from scanned text
// for the checkin service to validate.
package qr

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/skip2/go-qrcode"

	"ms-booking/internal/booking"
)

// Payload carries the fields extracted from a scanned check-in code.
// OccurrenceID and BookingID are empty when the payload shape does not
// carry them (a bare code only has Code set).
type Payload struct {
	OccurrenceID string `json:"occurrence_id,omitempty"`
	BookingID    string `json:"booking_id,omitempty"`
	Code         string `json:"code"`
}

// operatorPayload is the compact JSON shape shown on an athlete's device
// for the operator-scans-athlete flow.
type operatorPayload struct {
	BookingID string `json:"booking_id"`
	Code      string `json:"code"`
}

var bareCodePattern = regexp.MustCompile(`^[0-9]{4,10}$`)

// EncodeSelfURL builds the self-check-in URL embedded in the QR posted at
// the studio: the occurrence rides in the path, the plaintext code in the
// query.
func EncodeSelfURL(baseURL, occurrenceID, code string) string {
	return fmt.Sprintf("%s/occurrences/%s/checkin?code=%s",
		strings.TrimRight(baseURL, "/"), url.PathEscape(occurrenceID), url.QueryEscape(code))
}

// EncodeOperatorPayload builds the JSON payload for operator-initiated
// check-in, binding a specific booking to the code.
func EncodeOperatorPayload(bookingID, code string) (string, error) {
	data, err := json.Marshal(operatorPayload{BookingID: bookingID, Code: code})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RenderPNG renders any encoded payload as a QR PNG.
func RenderPNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

// Decode parses scanned text into a Payload. Three shapes are accepted:
// a self-check-in URL, the operator JSON payload, and a bare numeric
// code. Anything else fails with ErrInvalidPayload — decoding never
// guesses.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, booking.ErrInvalidPayload
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return decodeURL(raw)
	}

	if strings.HasPrefix(raw, "{") {
		var op operatorPayload
		if err := json.Unmarshal([]byte(raw), &op); err != nil || op.Code == "" {
			return Payload{}, booking.ErrInvalidPayload
		}
		return Payload{BookingID: op.BookingID, Code: op.Code}, nil
	}

	if bareCodePattern.MatchString(raw) {
		return Payload{Code: raw}, nil
	}

	return Payload{}, booking.ErrInvalidPayload
}

func decodeURL(raw string) (Payload, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Payload{}, booking.ErrInvalidPayload
	}

	code := u.Query().Get("code")
	if code == "" {
		return Payload{}, booking.ErrInvalidPayload
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	occurrenceID := ""
	for i, seg := range segments {
		if (seg == "occurrences" || seg == "occ") && i+1 < len(segments) {
			occurrenceID = segments[i+1]
			break
		}
	}
	if occurrenceID == "" {
		// Fall back to the last meaningful path segment
		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i] != "" && segments[i] != "checkin" {
				occurrenceID = segments[i]
				break
			}
		}
	}
	if occurrenceID == "" {
		return Payload{}, booking.ErrInvalidPayload
	}

	return Payload{OccurrenceID: occurrenceID, Code: code}, nil
}

package qr_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/booking"
	"ms-booking/internal/checkin/qr"
)

func TestDecode_SelfCheckinURL(t *testing.T) {
	payload, err := qr.Decode("https://app.example.com/x/occ/O1?code=654321")
	require.NoError(t, err)
	assert.Equal(t, "O1", payload.OccurrenceID)
	assert.Equal(t, "654321", payload.Code)
	assert.Empty(t, payload.BookingID)
}

func TestDecode_SelfURLRoundTrip(t *testing.T) {
	raw := qr.EncodeSelfURL("https://app.example.com/", "occ-42", "123456")
	assert.Equal(t, "https://app.example.com/occurrences/occ-42/checkin?code=123456", raw)

	payload, err := qr.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "occ-42", payload.OccurrenceID)
	assert.Equal(t, "123456", payload.Code)
}

func TestDecode_URLWithoutMarkerSegment(t *testing.T) {
	// No "occurrences"/"occ" segment: the occurrence is the last
	// meaningful path element before "checkin".
	payload, err := qr.Decode("https://app.example.com/studio/O7/checkin?code=987654")
	require.NoError(t, err)
	assert.Equal(t, "O7", payload.OccurrenceID)
	assert.Equal(t, "987654", payload.Code)
}

func TestDecode_URLWithoutCodeRejected(t *testing.T) {
	_, err := qr.Decode("https://app.example.com/occurrences/O1/checkin")
	assert.ErrorIs(t, err, booking.ErrInvalidPayload)
}

func TestDecode_OperatorJSON(t *testing.T) {
	raw, err := qr.EncodeOperatorPayload("bk-9", "654321")
	require.NoError(t, err)

	payload, err := qr.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "bk-9", payload.BookingID)
	assert.Equal(t, "654321", payload.Code)
	assert.Empty(t, payload.OccurrenceID)
}

func TestDecode_OperatorJSONWithoutCodeRejected(t *testing.T) {
	_, err := qr.Decode(`{"booking_id":"bk-9"}`)
	assert.ErrorIs(t, err, booking.ErrInvalidPayload)
}

func TestDecode_BareCode(t *testing.T) {
	payload, err := qr.Decode("  654321 ")
	require.NoError(t, err)
	assert.Equal(t, "654321", payload.Code)
	assert.Empty(t, payload.OccurrenceID)
	assert.Empty(t, payload.BookingID)
}

func TestDecode_RejectsUnrecognizedShapes(t *testing.T) {
	for _, raw := range []string{
		"",
		"abc123",
		"12",               // too short for a bare code
		"123456789012345",  // too long
		"not json {code}",
		"ftp://example.com/occ/O1?code=654321",
		`{"code": 654321}`, // code must be a string
	} {
		_, err := qr.Decode(raw)
		assert.ErrorIs(t, err, booking.ErrInvalidPayload, "payload %q must be rejected", raw)
	}
}

func TestRenderPNG(t *testing.T) {
	png, err := qr.RenderPNG("https://app.example.com/occurrences/O1/checkin?code=654321", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "output must be a PNG image")
}

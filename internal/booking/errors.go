// Package booking implements seat reservation and cancellation for
// occurrences. The sentinel errors below are shared with the checkin
// package so handlers can translate every failure into a specific HTTP
// status and a distinct user-facing message instead of a generic
// "booking failed".
package booking

import "errors"

// ErrUnauthenticated is returned when no caller identity could be
// resolved. Handlers translate this into HTTP 401.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when the caller attempts an operation on a
// booking they do not own. Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrOccurrenceNotFound is returned when the referenced occurrence does
// not exist. It is distinct from a zero seat count.
var ErrOccurrenceNotFound = errors.New("occurrence not found")

// ErrBookingNotFound is returned when the referenced booking does not
// exist.
var ErrBookingNotFound = errors.New("booking not found")

// ErrAlreadyBooked is returned when the athlete already holds an active
// (pending or confirmed) booking for the occurrence. The database backs
// this with a partial unique index, so concurrent duplicates surface the
// same error.
var ErrAlreadyBooked = errors.New("already booked for this occurrence")

// ErrNoSeatsLeft is returned when the occurrence has no remaining
// capacity once active bookings and unexpired holds are counted.
var ErrNoSeatsLeft = errors.New("no seats left")

// ErrAlreadyCheckedIn is returned both when cancelling a checked-in
// booking and when checking in a booking a second time. Attendance is a
// terminal state for cancellation.
var ErrAlreadyCheckedIn = errors.New("booking already checked in")

// ErrWrongSession is returned when a check-in targets a booking that
// belongs to a different occurrence than the one supplied.
var ErrWrongSession = errors.New("booking belongs to a different session")

// ErrInvalidOrExpiredCode is returned when no live check-in token for the
// occurrence matches the supplied code's hash.
var ErrInvalidOrExpiredCode = errors.New("invalid or expired check-in code")

// ErrInvalidPayload is returned by the QR codec when a scanned payload
// matches neither the URL nor the operator shape.
var ErrInvalidPayload = errors.New("unrecognized check-in payload")

package models

import "time"

// OccupancyReason says which transition changed an occurrence's seat count.
type OccupancyReason string

const (
	OccupancyReserved    OccupancyReason = "reserved"
	OccupancyCancelled   OccupancyReason = "cancelled"
	OccupancyCheckedIn   OccupancyReason = "checked_in"
	OccupancyHoldExpired OccupancyReason = "hold_expired"
)

// OccupancyEvent is published to Kafka and fanned out over SSE whenever a
// reserve, cancel, check-in, or hold expiry changes an occurrence's
// remaining seats. SeatsLeft is nil for unlimited occurrences.
type OccupancyEvent struct {
	OccurrenceID string          `json:"occurrence_id"`
	SeatsLeft    *int            `json:"seats_left"`
	Reason       OccupancyReason `json:"reason"`
	Timestamp    time.Time       `json:"timestamp"`
}

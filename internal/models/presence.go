package models

import "time"

// ProfileSnapshot is the minimal profile captured at registration. It is
// immutable for the lifetime of the session; nothing in a location report
// can change it.
type ProfileSnapshot struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Age         int    `json:"age"`
	Gender      string `json:"gender"`
}

// UserPosition is the current position of a live user. ReportedAt is the
// client-supplied timestamp used to order reports; out-of-order reports
// are rejected, never applied.
type UserPosition struct {
	UserID         string    `json:"user_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	ReportedAt     time.Time `json:"reported_at"`
}

// PresenceEntry pairs a snapshot with its position and liveness state.
// State moves PENDING -> ACTIVE on the first report, ACTIVE -> EXPIRED
// when no report arrives within the TTL, and the entry is purged after
// the grace period.
type PresenceEntry struct {
	Snapshot ProfileSnapshot `json:"snapshot"`
	Position UserPosition    `json:"position"`
	LastSeen time.Time       `json:"last_seen"`
	State    string          `json:"state"`
}

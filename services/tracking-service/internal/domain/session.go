package domain

import (
	"errors"
	"time"
)

// EntityKind identifies which domain object a session tracks: the assigned
// technician of a service booking or the vehicle of a rental booking.
type EntityKind string

const (
	KindTechnician EntityKind = "technician"
	KindVehicle    EntityKind = "vehicle"
)

// SessionKey names one tracking session. Comparable, used directly as a map key.
type SessionKey struct {
	Kind      EntityKind
	BookingID string
}

func (k SessionKey) String() string { return string(k.Kind) + "_" + k.BookingID }

var (
	ErrSessionNotFound   = errors.New("tracking_session_not_found")
	ErrInvalidCoordinate = errors.New("invalid_coordinate")
)

// LocationSample is one position report. Immutable once created.
type LocationSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	RecordedAt time.Time `json:"timestamp"`
}

func (s LocationSample) Validate() error {
	if s.Latitude < -90 || s.Latitude > 90 {
		return ErrInvalidCoordinate
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// Snapshot is an immutable read of a session's current location and ETA at
// one instant.
type Snapshot struct {
	Current    *LocationSample `json:"current_location"`
	ETAMinutes *int            `json:"eta_minutes"`
}

// SessionStatus summarizes one active session for monitoring.
type SessionStatus struct {
	Key          SessionKey      `json:"-"`
	BookingID    string          `json:"booking_id"`
	Kind         EntityKind      `json:"tracker_type"`
	StartedAt    time.Time       `json:"started_at"`
	Current      *LocationSample `json:"current_location"`
	ETAMinutes   *int            `json:"eta_minutes"`
	ETAUpdatedAt *time.Time      `json:"eta_updated_at,omitempty"`
}

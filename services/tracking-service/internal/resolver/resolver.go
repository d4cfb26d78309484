package resolver

import (
	"context"
	"errors"

	"github.com/zipplatformofficial/zip-platform/pkg/geo"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/domain"
)

var ErrBookingNotFound = errors.New("booking_not_found")

// ResolvedBooking is what the booking domain contributes to tracking: which
// entity kind the booking tracks, who owns and who reports it, and the
// destination used for ETA when one is known.
type ResolvedBooking struct {
	Key         domain.SessionKey
	CustomerID  string
	ReporterID  string
	Destination *geo.Point
}

// Directory resolves a booking id against the booking domain. The tracking
// core only ever sees the resolved result.
type Directory interface {
	Resolve(ctx context.Context, bookingID string) (*ResolvedBooking, error)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/zipplatformofficial/zip-platform/pkg/auth"
	"github.com/zipplatformofficial/zip-platform/pkg/geo"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/domain"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/registry"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/resolver"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/store"
)

var ErrNotAuthorized = errors.New("not_authorized")

// Actor is the authenticated caller, taken from the JWT claims.
type Actor struct {
	ID   string
	Role string
}

// EventPublisher is satisfied by *mq.Publisher; tests use an in-memory fake.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type ReportInput struct {
	Latitude  float64
	Longitude float64
	Heading   *float64
	Speed     *float64
}

// ETAInfo mirrors the estimate the platform has always broadcast alongside a
// location update.
type ETAInfo struct {
	DistanceKm   float64   `json:"distance_km"`
	ETAMinutes   int       `json:"eta_minutes"`
	CalculatedAt time.Time `json:"calculated_at"`
}

type ReportResult struct {
	Location domain.LocationSample `json:"location"`
	ETA      *ETAInfo              `json:"eta,omitempty"`
}

// TrackingInfo is the poll response.
type TrackingInfo struct {
	BookingID  string                 `json:"booking_id"`
	Kind       domain.EntityKind      `json:"tracker_type"`
	IsActive   bool                   `json:"is_active"`
	Current    *domain.LocationSample `json:"current_location"`
	ETAMinutes *int                   `json:"eta_minutes"`
	StartedAt  *time.Time             `json:"started_at"`
}

type HistoryResult struct {
	BookingID string                  `json:"booking_id"`
	Kind      domain.EntityKind       `json:"tracker_type"`
	History   []domain.LocationSample `json:"history"`
	Count     int                     `json:"count"`
}

// wsMessage is the frame pushed to watchers.
type wsMessage struct {
	Type      string                 `json:"type"`
	BookingID string                 `json:"booking_id,omitempty"`
	Location  *domain.LocationSample `json:"location,omitempty"`
	Current   *domain.LocationSample `json:"current_location,omitempty"`
	ETA       *ETAInfo               `json:"eta,omitempty"`
}

type TrackingSvc struct {
	store           store.SessionStore
	reg             *registry.Registry
	dir             resolver.Directory
	pub             EventPublisher
	defaultSpeedKmh float64
}

func NewTrackingSvc(st store.SessionStore, reg *registry.Registry, dir resolver.Directory, pub EventPublisher, defaultSpeedKmh float64) *TrackingSvc {
	if defaultSpeedKmh <= 0 {
		defaultSpeedKmh = 40
	}
	return &TrackingSvc{store: st, reg: reg, dir: dir, pub: pub, defaultSpeedKmh: defaultSpeedKmh}
}

func isOperator(role string) bool {
	return role == auth.RoleAdmin || role == auth.RoleOpsManager
}

// canWatch: the booking's customer, or an operator console.
func canWatch(actor Actor, rb *resolver.ResolvedBooking) bool {
	return actor.ID == rb.CustomerID || isOperator(actor.Role)
}

// canReport: the assigned technician for service bookings; vehicle positions
// come from the vendor's GPS feed or an admin.
func canReport(actor Actor, rb *resolver.ResolvedBooking) bool {
	switch rb.Key.Kind {
	case domain.KindTechnician:
		return actor.Role == auth.RoleTechnician && actor.ID == rb.ReporterID
	case domain.KindVehicle:
		return actor.Role == auth.RoleAdmin || actor.Role == auth.RoleVendor
	}
	return false
}

func canControl(actor Actor, rb *resolver.ResolvedBooking) bool {
	if isOperator(actor.Role) {
		return true
	}
	return actor.Role == auth.RoleTechnician && actor.ID == rb.ReporterID
}

// Report ingests one position report: record it, refresh the ETA when a
// destination is known, and fan the update out to every watcher. The
// broadcast happens even when no ETA could be computed.
func (s *TrackingSvc) Report(ctx context.Context, actor Actor, bookingID string, kind domain.EntityKind, in ReportInput) (*ReportResult, error) {
	rb, err := s.dir.Resolve(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if rb.Key.Kind != kind {
		return nil, resolver.ErrBookingNotFound
	}
	if !canReport(actor, rb) {
		return nil, ErrNotAuthorized
	}

	sample := domain.LocationSample{
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Heading:    in.Heading,
		Speed:      in.Speed,
		RecordedAt: time.Now().UTC(),
	}
	if _, err := s.store.RecordLocation(rb.Key, sample); err != nil {
		return nil, err
	}

	var eta *ETAInfo
	if rb.Destination != nil {
		speed := s.defaultSpeedKmh
		if in.Speed != nil && *in.Speed > 0 {
			speed = *in.Speed
		}
		dist := geo.Distance(geo.Point{Lat: in.Latitude, Lon: in.Longitude}, *rb.Destination)
		if minutes, ok := geo.EstimateETA(dist, speed); ok {
			eta = &ETAInfo{DistanceKm: dist, ETAMinutes: minutes, CalculatedAt: time.Now().UTC()}
			_ = s.store.SetETA(rb.Key, minutes)
		}
	}

	payload, _ := json.Marshal(wsMessage{Type: "location_update", Location: &sample, ETA: eta})
	s.reg.Broadcast(rb.Key, payload)

	if s.pub != nil {
		_ = s.pub.PublishJSON(ctx, "tracking.location", map[string]any{
			"booking_id": bookingID, "tracker_type": rb.Key.Kind,
			"latitude": in.Latitude, "longitude": in.Longitude,
		})
	}
	return &ReportResult{Location: sample, ETA: eta}, nil
}

// Subscribe authorizes the watcher, registers it and builds the initial
// "connected" frame so a late joiner sees the last known position at once.
func (s *TrackingSvc) Subscribe(ctx context.Context, actor Actor, bookingID string) (domain.SessionKey, *registry.Subscription, []byte, error) {
	rb, err := s.dir.Resolve(ctx, bookingID)
	if err != nil {
		return domain.SessionKey{}, nil, nil, err
	}
	if !canWatch(actor, rb) {
		return domain.SessionKey{}, nil, nil, ErrNotAuthorized
	}

	// register before reading the snapshot so an update landing in between
	// is queued rather than lost
	sub := s.reg.Subscribe(rb.Key)

	var current *domain.LocationSample
	if cur, err := s.store.CurrentLocation(rb.Key); err == nil {
		current = cur
	}
	initial, _ := json.Marshal(wsMessage{Type: "connected", BookingID: bookingID, Current: current})
	return rb.Key, sub, initial, nil
}

func (s *TrackingSvc) Unsubscribe(key domain.SessionKey, sub *registry.Subscription) {
	s.reg.Unsubscribe(key, sub)
}

// Watchers reports how many watchers are connected for a key.
func (s *TrackingSvc) Watchers(key domain.SessionKey) int {
	return s.reg.Watchers(key)
}

// SnapshotMessage re-sends the current snapshot, for a watcher's refresh
// request.
func (s *TrackingSvc) SnapshotMessage(key domain.SessionKey) []byte {
	var current *domain.LocationSample
	if cur, err := s.store.CurrentLocation(key); err == nil {
		current = cur
	}
	payload, _ := json.Marshal(wsMessage{Type: "location_update", Location: current})
	return payload
}

// Info is the non-streaming poll alternative.
func (s *TrackingSvc) Info(ctx context.Context, actor Actor, bookingID string) (*TrackingInfo, error) {
	rb, err := s.dir.Resolve(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canWatch(actor, rb) {
		return nil, ErrNotAuthorized
	}

	info := &TrackingInfo{BookingID: bookingID, Kind: rb.Key.Kind}
	snap, startedAt, err := s.store.Snapshot(rb.Key)
	if err != nil {
		// booking resolved but no live session: tracking simply not active
		return info, nil
	}
	info.IsActive = true
	info.Current = snap.Current
	info.ETAMinutes = snap.ETAMinutes
	info.StartedAt = &startedAt
	return info, nil
}

// History returns the bounded trail, oldest first.
func (s *TrackingSvc) History(ctx context.Context, actor Actor, bookingID string, limit int) (*HistoryResult, error) {
	rb, err := s.dir.Resolve(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canWatch(actor, rb) {
		return nil, ErrNotAuthorized
	}

	trail, err := s.store.History(rb.Key, limit)
	if err != nil {
		trail = []domain.LocationSample{}
	}
	return &HistoryResult{BookingID: bookingID, Kind: rb.Key.Kind, History: trail, Count: len(trail)}, nil
}

// Start opens the session explicitly. Idempotent.
func (s *TrackingSvc) Start(ctx context.Context, actor Actor, bookingID string) (domain.SessionKey, time.Time, error) {
	rb, err := s.dir.Resolve(ctx, bookingID)
	if err != nil {
		return domain.SessionKey{}, time.Time{}, err
	}
	if !canControl(actor, rb) {
		return domain.SessionKey{}, time.Time{}, ErrNotAuthorized
	}

	startedAt, created := s.store.Start(rb.Key)
	if created && s.pub != nil {
		_ = s.pub.PublishJSON(ctx, "tracking.started", map[string]any{
			"booking_id": bookingID, "tracker_type": rb.Key.Kind,
		})
	}
	return rb.Key, startedAt, nil
}

// Stop tears the session down. Idempotent: stopping twice is not an error.
func (s *TrackingSvc) Stop(ctx context.Context, actor Actor, bookingID string) error {
	rb, err := s.dir.Resolve(ctx, bookingID)
	if err != nil {
		return err
	}
	if !canControl(actor, rb) {
		return ErrNotAuthorized
	}

	if s.store.IsActive(rb.Key) {
		s.store.Stop(rb.Key)
		if s.pub != nil {
			_ = s.pub.PublishJSON(ctx, "tracking.stopped", map[string]any{
				"booking_id": bookingID, "tracker_type": rb.Key.Kind,
			})
		}
	}
	return nil
}

// ActiveSessions lists every live session, for the operations console.
func (s *TrackingSvc) ActiveSessions(actor Actor) ([]domain.SessionStatus, error) {
	if !isOperator(actor.Role) {
		return nil, ErrNotAuthorized
	}
	return s.store.ActiveSessions(), nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/zipplatformofficial/zip-platform/pkg/auth"
	"github.com/zipplatformofficial/zip-platform/pkg/geo"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/domain"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/registry"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/resolver"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/store"
)

type memDirectory struct {
	m map[string]*resolver.ResolvedBooking
}

func (d *memDirectory) Resolve(ctx context.Context, bookingID string) (*resolver.ResolvedBooking, error) {
	if rb, ok := d.m[bookingID]; ok {
		return rb, nil
	}
	return nil, resolver.ErrBookingNotFound
}

type memPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *memPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *memPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

var (
	technician = Actor{ID: "tech-1", Role: auth.RoleTechnician}
	customer   = Actor{ID: "cust-1", Role: auth.RoleCustomer}
	admin      = Actor{ID: "admin-1", Role: auth.RoleAdmin}
)

func newTestSvc() (*TrackingSvc, *memPublisher) {
	dest := geo.Point{Lat: 5.61, Lon: -0.19}
	dir := &memDirectory{m: map[string]*resolver.ResolvedBooking{
		"BK-1": {
			Key:         domain.SessionKey{Kind: domain.KindTechnician, BookingID: "BK-1"},
			CustomerID:  "cust-1",
			ReporterID:  "tech-1",
			Destination: &dest,
		},
		"BK-2": {
			Key:        domain.SessionKey{Kind: domain.KindVehicle, BookingID: "BK-2"},
			CustomerID: "cust-2",
			ReporterID: "veh-9",
		},
	}}
	pub := &memPublisher{}
	svc := NewTrackingSvc(store.NewMemoryStore(100), registry.New(8), dir, pub, 40)
	return svc, pub
}

func TestReportComputesETAAndBroadcasts(t *testing.T) {
	svc, pub := newTestSvc()
	ctx := context.Background()

	if _, _, err := svc.Start(ctx, technician, "BK-1"); err != nil {
		t.Fatal(err)
	}
	key, sub, _, err := svc.Subscribe(ctx, customer, "BK-1")
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Unsubscribe(key, sub)

	speed := 40.0
	res, err := svc.Report(ctx, technician, "BK-1", domain.KindTechnician, ReportInput{
		Latitude: 5.60, Longitude: -0.18, Speed: &speed,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ETA == nil {
		t.Fatal("expected an ETA with a known destination")
	}
	dist := geo.Distance(geo.Point{Lat: 5.60, Lon: -0.18}, geo.Point{Lat: 5.61, Lon: -0.19})
	want := int(math.Round(dist / 40 * 60))
	if res.ETA.ETAMinutes != want || res.ETA.ETAMinutes <= 0 {
		t.Fatalf("eta %d minutes, want %d (distance %.3f km)", res.ETA.ETAMinutes, want, dist)
	}

	// the subscribed watcher receives exactly one matching update
	var msg struct {
		Type     string                 `json:"type"`
		Location *domain.LocationSample `json:"location"`
		ETA      *ETAInfo               `json:"eta"`
	}
	select {
	case payload := <-sub.C():
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher never received the update")
	}
	if msg.Type != "location_update" {
		t.Fatalf("unexpected frame type %q", msg.Type)
	}
	if msg.Location == nil || msg.Location.Latitude != 5.60 || msg.Location.Longitude != -0.18 {
		t.Fatalf("unexpected location %+v", msg.Location)
	}
	if msg.ETA == nil || msg.ETA.ETAMinutes != want {
		t.Fatalf("unexpected eta %+v", msg.ETA)
	}
	select {
	case payload := <-sub.C():
		t.Fatalf("unexpected extra frame %s", payload)
	default:
	}

	events := pub.published()
	found := false
	for _, k := range events {
		if k == "tracking.location" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tracking.location event not published: %v", events)
	}
}

func TestReportWithoutDestinationStillBroadcasts(t *testing.T) {
	svc, _ := newTestSvc()
	ctx := context.Background()

	key, sub, _, err := svc.Subscribe(ctx, admin, "BK-2")
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Unsubscribe(key, sub)

	res, err := svc.Report(ctx, admin, "BK-2", domain.KindVehicle, ReportInput{Latitude: 5.55, Longitude: -0.20})
	if err != nil {
		t.Fatal(err)
	}
	if res.ETA != nil {
		t.Fatalf("expected no ETA without destination, got %+v", res.ETA)
	}

	select {
	case payload := <-sub.C():
		var msg struct {
			Type string   `json:"type"`
			ETA  *ETAInfo `json:"eta"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != "location_update" || msg.ETA != nil {
			t.Fatalf("unexpected frame: %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher never received the update")
	}
}

func TestReportAuthorization(t *testing.T) {
	svc, _ := newTestSvc()
	ctx := context.Background()

	cases := []struct {
		name  string
		actor Actor
		id    string
		kind  domain.EntityKind
		want  error
	}{
		{"unknown booking", technician, "BK-404", domain.KindTechnician, resolver.ErrBookingNotFound},
		{"kind mismatch", technician, "BK-2", domain.KindTechnician, resolver.ErrBookingNotFound},
		{"other technician", Actor{ID: "tech-2", Role: auth.RoleTechnician}, "BK-1", domain.KindTechnician, ErrNotAuthorized},
		{"customer reporting", customer, "BK-1", domain.KindTechnician, ErrNotAuthorized},
		{"customer reporting vehicle", customer, "BK-2", domain.KindVehicle, ErrNotAuthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Report(ctx, tc.actor, tc.id, tc.kind, ReportInput{Latitude: 1, Longitude: 1})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestReportRejectsInvalidCoordinates(t *testing.T) {
	svc, _ := newTestSvc()

	_, err := svc.Report(context.Background(), technician, "BK-1", domain.KindTechnician, ReportInput{Latitude: 95, Longitude: 0})
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestSubscribeAuthorization(t *testing.T) {
	svc, _ := newTestSvc()
	ctx := context.Background()

	if _, _, _, err := svc.Subscribe(ctx, Actor{ID: "stranger", Role: auth.RoleCustomer}, "BK-1"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, _, _, err := svc.Subscribe(ctx, customer, "BK-404"); !errors.Is(err, resolver.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}

	key, sub, initial, err := svc.Subscribe(ctx, customer, "BK-1")
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Unsubscribe(key, sub)

	var msg struct {
		Type      string `json:"type"`
		BookingID string `json:"booking_id"`
	}
	if err := json.Unmarshal(initial, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "connected" || msg.BookingID != "BK-1" {
		t.Fatalf("unexpected initial frame: %s", initial)
	}
}

func TestInfoLifecycle(t *testing.T) {
	svc, pub := newTestSvc()
	ctx := context.Background()

	info, err := svc.Info(ctx, customer, "BK-1")
	if err != nil {
		t.Fatal(err)
	}
	if info.IsActive || info.Current != nil || info.StartedAt != nil {
		t.Fatalf("expected inactive info, got %+v", info)
	}

	if _, _, err := svc.Start(ctx, technician, "BK-1"); err != nil {
		t.Fatal(err)
	}
	// second start is a no-op and publishes nothing new
	if _, _, err := svc.Start(ctx, technician, "BK-1"); err != nil {
		t.Fatal(err)
	}

	speed := 30.0
	if _, err := svc.Report(ctx, technician, "BK-1", domain.KindTechnician, ReportInput{Latitude: 5.6, Longitude: -0.18, Speed: &speed}); err != nil {
		t.Fatal(err)
	}

	info, err = svc.Info(ctx, customer, "BK-1")
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsActive || info.Current == nil || info.ETAMinutes == nil || info.StartedAt == nil {
		t.Fatalf("expected live info, got %+v", info)
	}

	if err := svc.Stop(ctx, technician, "BK-1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(ctx, technician, "BK-1"); err != nil {
		t.Fatal(err)
	}

	started, stopped := 0, 0
	for _, k := range pub.published() {
		switch k {
		case "tracking.started":
			started++
		case "tracking.stopped":
			stopped++
		}
	}
	if started != 1 || stopped != 1 {
		t.Fatalf("expected 1 started / 1 stopped event, got %d / %d", started, stopped)
	}
}

func TestHistoryResult(t *testing.T) {
	svc, _ := newTestSvc()
	ctx := context.Background()

	// no session yet: resolved booking yields an empty trail, not an error
	res, err := svc.History(ctx, customer, "BK-1", 50)
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 0 || len(res.History) != 0 {
		t.Fatalf("expected empty history, got %+v", res)
	}

	for i := 0; i < 5; i++ {
		if _, err := svc.Report(ctx, technician, "BK-1", domain.KindTechnician, ReportInput{
			Latitude: 5.6 + float64(i)*0.001, Longitude: -0.18,
		}); err != nil {
			t.Fatal(err)
		}
	}

	res, err = svc.History(ctx, customer, "BK-1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 3 || res.Kind != domain.KindTechnician {
		t.Fatalf("unexpected history result: %+v", res)
	}
	if res.History[0].Latitude >= res.History[2].Latitude {
		t.Fatal("history not oldest-first")
	}
}

func TestActiveSessionsRequiresOperator(t *testing.T) {
	svc, _ := newTestSvc()
	ctx := context.Background()

	if _, err := svc.ActiveSessions(customer); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}

	if _, err := svc.Report(ctx, technician, "BK-1", domain.KindTechnician, ReportInput{Latitude: 5.6, Longitude: -0.18}); err != nil {
		t.Fatal(err)
	}
	sessions, err := svc.ActiveSessions(admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].BookingID != "BK-1" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

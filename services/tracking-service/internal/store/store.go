package store

import (
	"sync"
	"time"

	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/domain"
)

// SessionStore owns the authoritative state of all active tracking sessions.
// It is an interface so that a shared backing store (e.g. Redis, when the
// platform runs more than one instance) can replace the in-memory
// implementation without touching the service layer.
type SessionStore interface {
	// Start creates the session if absent and reports whether it did.
	// Idempotent: an existing session is returned unchanged.
	Start(key domain.SessionKey) (startedAt time.Time, created bool)

	// RecordLocation validates and appends a sample, creating the session if
	// absent (create-on-write), and returns the resulting snapshot. Atomic
	// with respect to concurrent calls on the same key.
	RecordLocation(key domain.SessionKey, sample domain.LocationSample) (domain.Snapshot, error)

	// SetETA updates the last computed estimate. A stopped or unknown session
	// is not resurrected: ErrSessionNotFound.
	SetETA(key domain.SessionKey, minutes int) error

	CurrentLocation(key domain.SessionKey) (*domain.LocationSample, error)

	// History returns the most recent limit samples, oldest first.
	History(key domain.SessionKey, limit int) ([]domain.LocationSample, error)

	// Snapshot returns the current location, ETA and start time in one read.
	Snapshot(key domain.SessionKey) (domain.Snapshot, time.Time, error)

	IsActive(key domain.SessionKey) bool

	// ActiveSessions lists every live session, for the monitoring endpoint.
	ActiveSessions() []domain.SessionStatus

	// Stop removes the session and its history. Idempotent.
	Stop(key domain.SessionKey)
}

// session holds the mutable state behind one key. Its mutex serializes all
// mutations so append/evict/set-ETA never interleave; sessions under
// different keys share nothing but the store's outer map.
type session struct {
	mu           sync.Mutex
	startedAt    time.Time
	buf          []domain.LocationSample // FIFO ring, len(buf) == cap
	start, count int
	eta          *int
	etaUpdatedAt *time.Time
}

func (s *session) append(sample domain.LocationSample) {
	if s.count < len(s.buf) {
		s.buf[(s.start+s.count)%len(s.buf)] = sample
		s.count++
		return
	}
	// full: overwrite the oldest slot
	s.buf[s.start] = sample
	s.start = (s.start + 1) % len(s.buf)
}

func (s *session) at(i int) domain.LocationSample {
	return s.buf[(s.start+i)%len(s.buf)]
}

func (s *session) current() *domain.LocationSample {
	if s.count == 0 {
		return nil
	}
	c := s.at(s.count - 1)
	return &c
}

func (s *session) snapshot() domain.Snapshot {
	snap := domain.Snapshot{Current: s.current()}
	if s.eta != nil {
		v := *s.eta
		snap.ETAMinutes = &v
	}
	return snap
}

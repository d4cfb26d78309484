package store

import (
	"sort"
	"sync"
	"time"

	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/domain"
)

const DefaultHistoryLimit = 100

// MemoryStore is the process-local SessionStore. The outer RWMutex guards
// only the key→session map; each session carries its own lock, so reports
// for different bookings never contend.
type MemoryStore struct {
	historyCap int
	mu         sync.RWMutex
	sessions   map[domain.SessionKey]*session
}

func NewMemoryStore(historyCap int) *MemoryStore {
	if historyCap <= 0 {
		historyCap = DefaultHistoryLimit
	}
	return &MemoryStore{
		historyCap: historyCap,
		sessions:   make(map[domain.SessionKey]*session),
	}
}

func (m *MemoryStore) get(key domain.SessionKey) (*session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	return s, ok
}

func (m *MemoryStore) getOrCreate(key domain.SessionKey) (*session, bool) {
	if s, ok := m.get(key); ok {
		return s, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, false
	}
	s := &session{
		startedAt: time.Now().UTC(),
		buf:       make([]domain.LocationSample, m.historyCap),
	}
	m.sessions[key] = s
	return s, true
}

func (m *MemoryStore) Start(key domain.SessionKey) (time.Time, bool) {
	s, created := m.getOrCreate(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt, created
}

func (m *MemoryStore) RecordLocation(key domain.SessionKey, sample domain.LocationSample) (domain.Snapshot, error) {
	if err := sample.Validate(); err != nil {
		return domain.Snapshot{}, err
	}
	s, _ := m.getOrCreate(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(sample)
	return s.snapshot(), nil
}

func (m *MemoryStore) SetETA(key domain.SessionKey, minutes int) error {
	s, ok := m.get(key)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.eta = &minutes
	s.etaUpdatedAt = &now
	return nil
}

func (m *MemoryStore) CurrentLocation(key domain.SessionKey) (*domain.LocationSample, error) {
	s, ok := m.get(key)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(), nil
}

func (m *MemoryStore) History(key domain.SessionKey, limit int) ([]domain.LocationSample, error) {
	s, ok := m.get(key)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.LocationSample, 0, n)
	for i := s.count - n; i < s.count; i++ {
		out = append(out, s.at(i))
	}
	return out, nil
}

func (m *MemoryStore) Snapshot(key domain.SessionKey) (domain.Snapshot, time.Time, error) {
	s, ok := m.get(key)
	if !ok {
		return domain.Snapshot{}, time.Time{}, domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), s.startedAt, nil
}

func (m *MemoryStore) IsActive(key domain.SessionKey) bool {
	_, ok := m.get(key)
	return ok
}

func (m *MemoryStore) ActiveSessions() []domain.SessionStatus {
	m.mu.RLock()
	keys := make([]domain.SessionKey, 0, len(m.sessions))
	entries := make([]*session, 0, len(m.sessions))
	for k, s := range m.sessions {
		keys = append(keys, k)
		entries = append(entries, s)
	}
	m.mu.RUnlock()

	out := make([]domain.SessionStatus, 0, len(keys))
	for i, s := range entries {
		s.mu.Lock()
		snap := s.snapshot()
		status := domain.SessionStatus{
			Key:        keys[i],
			BookingID:  keys[i].BookingID,
			Kind:       keys[i].Kind,
			StartedAt:  s.startedAt,
			Current:    snap.Current,
			ETAMinutes: snap.ETAMinutes,
		}
		if s.etaUpdatedAt != nil {
			at := *s.etaUpdatedAt
			status.ETAUpdatedAt = &at
		}
		out = append(out, status)
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (m *MemoryStore) Stop(key domain.SessionKey) {
	m.mu.Lock()
	delete(m.sessions, key)
	m.mu.Unlock()
}

package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/domain"
)

const DefaultQueueSize = 16

// Registry tracks, per session key, the set of currently-connected watchers
// and fans broadcast payloads out to them. Delivery to one watcher never
// blocks the broadcaster: each subscription owns a bounded queue, and a
// watcher whose queue is full is dropped the same way a failed send is.
type Registry struct {
	queueSize int
	mu        sync.RWMutex
	keys      map[domain.SessionKey]*keyEntry
}

// keyEntry's mutex guards the watcher set and serializes broadcasts for its
// key, so every watcher observes updates in the order they were recorded.
type keyEntry struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

// Subscription is the handle for one watcher connection.
type Subscription struct {
	id  string
	key domain.SessionKey

	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func (s *Subscription) ID() string { return s.id }

// C delivers queued payloads in order. It is closed when the watcher is
// unsubscribed or dropped.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Send queues one payload for this watcher only (used for refresh requests).
// Returns false if the watcher is gone or cannot keep up.
func (s *Subscription) Send(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func New(queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Registry{
		queueSize: queueSize,
		keys:      make(map[domain.SessionKey]*keyEntry),
	}
}

// Subscribe registers a new watcher under key. Any number of watchers may
// subscribe to the same key.
func (r *Registry) Subscribe(key domain.SessionKey) *Subscription {
	sub := &Subscription{
		id:  uuid.NewString(),
		key: key,
		ch:  make(chan []byte, r.queueSize),
	}
	// add while holding the outer lock so a concurrent prune cannot orphan
	// the entry between lookup and insert
	r.mu.Lock()
	e, ok := r.keys[key]
	if !ok {
		e = &keyEntry{subs: make(map[string]*Subscription)}
		r.keys[key] = e
	}
	e.mu.Lock()
	e.subs[sub.id] = sub
	e.mu.Unlock()
	r.mu.Unlock()
	return sub
}

// Unsubscribe removes the watcher and closes its queue. No-op if the watcher
// was already removed; safe to call concurrently with Broadcast.
func (r *Registry) Unsubscribe(key domain.SessionKey, sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.RLock()
	e, ok := r.keys[key]
	r.mu.RUnlock()
	if ok {
		e.mu.Lock()
		delete(e.subs, sub.id)
		empty := len(e.subs) == 0
		e.mu.Unlock()
		if empty {
			r.prune(key)
		}
	}
	sub.close()
}

// Broadcast queues payload for every watcher under key, in order. A watcher
// that cannot accept the payload is removed; the rest still receive it.
// Returns the number of watchers reached.
func (r *Registry) Broadcast(key domain.SessionKey, payload []byte) int {
	r.mu.RLock()
	e, ok := r.keys[key]
	r.mu.RUnlock()
	if !ok {
		return 0
	}

	var stale []*Subscription
	delivered := 0
	e.mu.Lock()
	for _, sub := range e.subs {
		if sub.Send(payload) {
			delivered++
		} else {
			stale = append(stale, sub)
		}
	}
	for _, sub := range stale {
		delete(e.subs, sub.id)
		sub.close()
	}
	empty := len(e.subs) == 0
	e.mu.Unlock()

	if empty {
		r.prune(key)
	}
	return delivered
}

// Watchers reports how many watchers are registered under key.
func (r *Registry) Watchers(key domain.SessionKey) int {
	r.mu.RLock()
	e, ok := r.keys[key]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Keys reports how many session keys currently hold at least one watcher.
func (r *Registry) Keys() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// prune drops the key's entry once its watcher set is empty, so completed
// bookings do not accumulate registry garbage.
func (r *Registry) prune(key domain.SessionKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.keys[key]; ok {
		e.mu.Lock()
		if len(e.subs) == 0 {
			delete(r.keys, key)
		}
		e.mu.Unlock()
	}
}

// Package tokenstore maps opaque session IDs to credential payloads.
//
// IDs are handed out when a client registers a session over HTTP and are
// referenced from bearer tokens on subsequent requests, so the credential
// payload itself never travels with every call.
package tokenstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	payload string
	expires time.Time
}

// Store is an in-memory session registry with per-entry expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]entry
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]entry),
		now:      time.Now,
	}
}

// Put registers a credential payload and returns its session ID. A zero ttl
// means the entry never expires.
func (s *Store) Put(payload string, ttl time.Duration) string {
	id := uuid.New().String()

	var expires time.Time
	if ttl > 0 {
		expires = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.sessions[id] = entry{payload: payload, expires: expires}
	s.mu.Unlock()

	return id
}

// Get returns the payload for a session ID. Expired entries are treated as
// absent and removed.
func (s *Store) Get(id string) (string, bool) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}

	if !e.expires.IsZero() && s.now().After(e.expires) {
		s.Delete(id)
		return "", false
	}
	return e.payload, true
}

// Delete removes a session ID from the store.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Count returns the number of stored sessions, expired or not. Used for
// monitoring.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

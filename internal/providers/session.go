package providers

import (
	"sync"
	"time"
)

// Session is a short-lived conversation context for image generation: the
// illustrations already produced for a story, replayed to the provider so
// later pages keep the same characters. A session guards its own mutable
// state, so concurrent jobs for different pages of the same story may share
// one handle safely.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	lastUsed time.Time
	images   []ContextImage
}

// Touch marks the session as used at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = now
}

// LastUsed returns the time of the most recent Touch.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// AddImage appends an illustration, keeping at most limit entries (oldest
// dropped first). A non-positive limit keeps everything.
func (s *Session) AddImage(img ContextImage, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, img)
	if limit > 0 && len(s.images) > limit {
		s.images = s.images[len(s.images)-limit:]
	}
}

// Snapshot returns a copy of the session's images, oldest first. Callers
// get a stable slice that later AddImage calls cannot mutate.
func (s *Session) Snapshot() []ContextImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.images) == 0 {
		return nil
	}
	out := make([]ContextImage, len(s.images))
	copy(out, s.images)
	return out
}

// Expired reports whether a session last used at lastUsed is stale at now.
// Pure function of its inputs; the store calls it on every access instead
// of running a background timer.
func Expired(lastUsed, now time.Time, ttl time.Duration) bool {
	return now.Sub(lastUsed) >= ttl
}

// SessionStore holds image-generation sessions keyed by ID, typically the
// story ID. It is injected into the services that need conversation
// continuity; expiry is enforced on access and by explicit sweeps.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionStore creates an empty store with the given idle TTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// GetOrCreate returns the live session for id, replacing it with a fresh
// one when missing or expired.
func (st *SessionStore) GetOrCreate(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	if s, ok := st.sessions[id]; ok && !Expired(s.LastUsed(), now, st.ttl) {
		s.Touch(now)
		return s
	}

	s := &Session{ID: id, CreatedAt: now, lastUsed: now}
	st.sessions[id] = s
	return s
}

// Delete removes the session for id, if any.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// SweepExpired drops all stale sessions and returns how many were removed.
// Callers decide when to sweep (e.g. after each batch run); nothing runs
// in the background.
func (st *SessionStore) SweepExpired() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	removed := 0
	for id, s := range st.sessions {
		if Expired(s.LastUsed(), now, st.ttl) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, expired or not.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

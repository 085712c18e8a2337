// Package memory provides in-memory session and user stores for tests and
// single-instance deployments. Data is lost when the process restarts.
// Optional LRU eviction bounds the number of sessions kept.
package memory

import (
	"container/list"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rhuss/warden/pkg/storage"
)

// entry holds a stored session and its position in the LRU list.
type entry struct {
	session *storage.Session
	lruElem *list.Element
}

// Store is an in-memory SessionStore and UserStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	lruList  *list.List // front = most recently used, back = least recently used
	maxSize  int        // 0 = unlimited
	users    map[string]*storage.User
}

var (
	_ storage.SessionStore = (*Store)(nil)
	_ storage.UserStore    = (*Store)(nil)
)

// New creates a new in-memory store. If maxSessions is 0, sessions grow
// without limit. Otherwise the least recently used session is evicted when
// the limit is reached.
func New(maxSessions int) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		lruList:  list.New(),
		maxSize:  maxSessions,
		users:    make(map[string]*storage.User),
	}
}

// CreateSession stores a session.
func (s *Store) CreateSession(_ context.Context, sess *storage.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.sessions) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(sess.ID)
	s.sessions[sess.ID] = &entry{session: copySession(sess), lruElem: elem}
	return nil
}

// GetSession returns a copy of the session and marks it recently used.
func (s *Store) GetSession(_ context.Context, id string) (*storage.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)

	return copySession(e.session), nil
}

// copySession returns a copy of sess sharing no scopes or metadata with it.
func copySession(sess *storage.Session) *storage.Session {
	cp := *sess
	cp.Identity.Scopes = slices.Clone(sess.Identity.Scopes)
	cp.Identity.Metadata = maps.Clone(sess.Identity.Metadata)
	return &cp
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.sessions, id)
	return nil
}

// DeleteExpiredSessions removes every session expired at now.
func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if e.session.Expired(now) {
			s.lruList.Remove(e.lruElem)
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// GetUser returns a copy of the user.
func (s *Store) GetUser(_ context.Context, username string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	cp.Scopes = slices.Clone(u.Scopes)
	return &cp, nil
}

// PutUser creates or replaces a user.
func (s *Store) PutUser(_ context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	cp.Scopes = slices.Clone(u.Scopes)
	s.users[u.Username] = &cp
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of sessions currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// evictOldest removes the least recently used session. Must be called
// with the write lock held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.sessions, id)
}

package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store manages session lifecycle in memory.
//
// Store is safe for concurrent use by multiple goroutines. Access to a
// given session is serialized by the store mutex; the critical sections
// are short and never span external I/O.
type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewStore creates a session store whose sessions expire after ttl of
// inactivity. A nil logger falls back to slog.Default().
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// New creates a session and returns its id.
func (s *Store) New() uuid.UUID {
	now := s.now()
	sess := &Session{
		ID:           uuid.New(),
		CreatedAt:    now,
		LastAccessed: now,
		TTL:          s.ttl,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Debug("created session", "id", sess.ID)
	return sess.ID
}

// Get returns a copy of the session and refreshes its last-accessed
// time. An expired session is removed and reported as ErrNotFound.
func (s *Store) Get(id uuid.UUID) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}

	now := s.now()
	if sess.Expired(now) {
		delete(s.sessions, id)
		s.logger.Debug("session expired", "id", id)
		return Session{}, ErrNotFound
	}

	sess.LastAccessed = now
	return *sess, nil
}

// SetCurrentBin updates the session's bin context.
// Returns ErrNotFound when the session is absent or expired.
func (s *Store) SetCurrentBin(id uuid.UUID, bin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}

	now := s.now()
	if sess.Expired(now) {
		delete(s.sessions, id)
		return ErrNotFound
	}

	sess.CurrentBin = bin
	sess.LastAccessed = now
	s.logger.Debug("set current bin", "id", id, "bin", bin)
	return nil
}

// End removes a session explicitly. Ending an unknown session returns
// ErrNotFound.
func (s *Store) End(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	s.logger.Debug("ended session", "id", id)
	return nil
}

// CleanupExpired purges every expired session and returns the removed
// ids so callers can discard dependent state.
func (s *Store) CleanupExpired() []uuid.UUID {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []uuid.UUID
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		s.logger.Debug("cleaned up expired sessions", "removed", len(removed))
	}
	return removed
}

// Count returns the number of live sessions after purging expired ones.
func (s *Store) Count() int {
	s.CleanupExpired()

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// All returns copies of every live session, for operational tooling.
func (s *Store) All() []Session {
	s.CleanupExpired()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out
}

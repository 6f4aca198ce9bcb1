// Package session provides the in-memory session store that carries
// per-user conversational context across turns.
//
// A session records when it was created, when it was last touched and
// which bin the user is currently working with, so that follow-up
// commands like "also add nuts" resolve against the right bin. Sessions
// expire after a TTL of inactivity; expiry is enforced both lazily on
// access and by a periodic sweep.
//
// The store is an explicit, injected dependency with its own internal
// synchronization. Running a single process-wide instance is a
// deployment choice, not a requirement of this package.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Session is the mutable per-user context for a conversation.
// All fields are owned by the Store; callers receive copies.
type Session struct {
	ID           uuid.UUID
	CurrentBin   string // bin referenced by the most recent mutation, "" if none
	CreatedAt    time.Time
	LastAccessed time.Time
	TTL          time.Duration
}

// Expired reports whether the session has been idle longer than its TTL.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.LastAccessed) > s.TTL
}

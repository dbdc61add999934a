// Package session owns the state of one in-progress claim attempt: the
// recorded path, the lifecycle state tag, and the most recent warning level.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/landloop/territory-engine/internal/config"
	"github.com/landloop/territory-engine/model"
)

// State is the session lifecycle tag.
type State string

const (
	// StateTracking is the only live state; every other state is terminal.
	StateTracking  State = "tracking"
	StateValidated State = "validated"
	StateRejected  State = "rejected"
	StateAborted   State = "aborted"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool { return s != StateTracking }

// Session is one user's in-progress claim attempt. Fix ingestion and monitor
// ticks both touch the path and are serialized through the session's lock,
// giving the single-writer discipline the engine requires: one logical owner
// at a time, never concurrent mutation. Sessions are not persisted; they are
// lost on process restart.
type Session struct {
	ID        string
	OwnerID   string
	StartedAt time.Time

	mu         sync.Mutex
	rec        *Recorder
	state      State
	lastResult model.CollisionResult
}

// New creates a tracking session for the owner.
func New(ownerID string, ingest config.Ingest, startedAt time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		StartedAt: startedAt,
		rec:       NewRecorder(ingest),
		state:     StateTracking,
	}
}

// Do runs fn with exclusive access to the session's recorder and state.
// All path reads and mutations go through here.
func (s *Session) Do(fn func(rec *Recorder)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.rec)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to a terminal state. Once terminal, the state
// never changes again; the first terminal transition wins. It reports
// whether the transition was applied.
func (s *Session) Transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = to
	return true
}

// SetLastResult records the most recent proximity evaluation.
func (s *Session) SetLastResult(r model.CollisionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResult = r
}

// LastResult returns the most recent proximity evaluation.
func (s *Session) LastResult() model.CollisionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

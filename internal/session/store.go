// Package session implements the session store: creation, lookup,
// append-only message/trace mutation, and atomic summary replacement, with
// a mutual-exclusion region per session so unrelated sessions never
// contend.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/agentgate/internal/models"
)

// MaxTraceSteps bounds per-session trace growth; overflow drops the oldest
// step and emits a one-shot trace_truncated event.
const MaxTraceSteps = 10000

// ErrNotFound is returned by Get when session_id is unknown.
type ErrNotFound struct{ SessionID string }

func (e *ErrNotFound) Error() string { return "session not found: " + e.SessionID }

type entry struct {
	mu      sync.Mutex
	session *models.Session
	// truncatedOnce guards the one-shot trace_truncated emission.
	truncatedOnce bool
}

// Store is the in-memory, per-session-locked session store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// New constructs an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

// Create mints a unique session for agentID and stores it.
func (s *Store) Create(agentID string) *models.Session {
	now := time.Now()
	sess := &models.Session{
		SessionID: uuid.NewString(),
		AgentID:   agentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e := &entry{session: sess}
	s.mu.Lock()
	s.sessions[sess.SessionID] = e
	s.mu.Unlock()
	return sess.Clone()
}

func (s *Store) lookup(sessionID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	return e, ok
}

// Get returns a copy of the session made by Session.Clone, or ErrNotFound.
func (s *Store) Get(sessionID string) (*models.Session, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return nil, &ErrNotFound{SessionID: sessionID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// AppendMessage appends msg to the session's history, atomically with
// respect to other callers on the same session.
func (s *Store) AppendMessage(sessionID string, msg models.Message) error {
	e, ok := s.lookup(sessionID)
	if !ok {
		return &ErrNotFound{SessionID: sessionID}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Messages = append(e.session.Messages, msg)
	e.session.MessageCount = len(e.session.Messages) + e.session.SummaryCount
	e.session.UpdatedAt = time.Now()
	return nil
}

// AppendTraceStep appends step to the session's trace, enforcing
// MaxTraceSteps. It never fails the caller — a full store records the
// overflow and moves on.
func (s *Store) AppendTraceStep(sessionID string, step models.TraceStep) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Trace = append(e.session.Trace, step)
	if len(e.session.Trace) > MaxTraceSteps {
		overflow := len(e.session.Trace) - MaxTraceSteps
		e.session.Trace = e.session.Trace[overflow:]
		if !e.truncatedOnce {
			e.truncatedOnce = true
			e.session.Trace = append(e.session.Trace, models.TraceStep{
				Timestamp: time.Now(),
				Component: "session",
				Event:     "trace_truncated",
				Details:   map[string]any{"dropped": overflow},
			})
		}
	}
	e.session.UpdatedAt = time.Now()
}

// ReplaceSummary atomically replaces the prefix covered by newSummary with
// a single summary string plus the retained tail history. Used by the
// history summarizer.
func (s *Store) ReplaceSummary(sessionID, newSummary string, retainedHistory []models.Message, coveredCount int) error {
	e, ok := s.lookup(sessionID)
	if !ok {
		return &ErrNotFound{SessionID: sessionID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Summary = newSummary
	e.session.SummaryCount += coveredCount
	e.session.Messages = retainedHistory
	e.session.MessageCount = len(e.session.Messages) + e.session.SummaryCount
	e.session.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted flags the session as completed (the session_completed
// trace event's companion state change).
func (s *Store) MarkCompleted(sessionID string) error {
	e, ok := s.lookup(sessionID)
	if !ok {
		return &ErrNotFound{SessionID: sessionID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Completed = true
	e.session.UpdatedAt = time.Now()
	return nil
}

// Package session tracks the per-conversation confirmation state
// machine: at most one proposed action is in flight per session, and
// every attempted action leaves an audit record in the session history.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peti12352/sentinel-verifier/internal/model"
)

// Status is the disposition of an attempted action. All statuses are
// terminal except StatusAwaitingConfirmation.
type Status string

const (
	StatusAwaitingConfirmation Status = "AWAITING_CONFIRMATION"
	StatusExecuted             Status = "EXECUTED"
	StatusBlocked              Status = "BLOCKED"
	StatusCancelled            Status = "CANCELLED"
	StatusSkipped              Status = "SKIPPED"
	StatusFailed               Status = "FAILED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusAwaitingConfirmation
}

var (
	// ErrActionPending is returned when a new proposal arrives while
	// another action is still awaiting confirmation or executing.
	ErrActionPending = errors.New("an action is already awaiting confirmation")

	// ErrNothingPending is returned when a confirmation signal arrives
	// with no action in flight.
	ErrNothingPending = errors.New("no action is awaiting confirmation")
)

// HistoryEntry is one record in the session's append-only history.
// A transient entry is mutated exactly once, to its terminal status;
// terminal entries are immutable.
type HistoryEntry struct {
	Tool   string         `json:"tool_name"`
	Args   map[string]any `json:"args"`
	Status Status         `json:"status"`
	Reason string         `json:"reason"`
	Result string         `json:"result,omitempty"`
}

// Record renders the entry as a flat key-value map for logging and UI.
func (e HistoryEntry) Record() map[string]any {
	m := map[string]any{
		"tool_name": e.Tool,
		"status":    string(e.Status),
		"reason":    e.Reason,
	}
	for k, v := range e.Args {
		m["arg_"+k] = v
	}
	if e.Result != "" {
		m["result"] = e.Result
	}
	return m
}

// Session holds the confirmation state for one conversation thread.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	pending      *model.ProposedAction
	pendingSince time.Time
	executing    bool
	history      []HistoryEntry
}

// New creates a session. An empty id gets a generated one.
func New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{ID: id, CreatedAt: time.Now().UTC()}
}

// Pending returns the in-flight action, its proposal time, and whether
// one exists.
func (s *Session) Pending() (*model.ProposedAction, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.pendingSince, s.pending != nil
}

// SetPending stores an approved action as awaiting confirmation and
// appends its transient history entry. Fails if another action is
// still in flight: a second proposal must never overwrite a pending
// one.
func (s *Session) SetPending(action *model.ProposedAction, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil || s.executing {
		return ErrActionPending
	}

	s.pending = action
	s.pendingSince = time.Now().UTC()
	s.history = append(s.history, HistoryEntry{
		Tool:   string(action.Kind),
		Args:   action.ArgsMap(),
		Status: StatusAwaitingConfirmation,
		Reason: reason,
	})
	return nil
}

// AppendTerminal records an action that reached a terminal disposition
// without ever being pending (blocked, skipped, or rejected proposals).
func (s *Session) AppendTerminal(action *model.ProposedAction, status Status, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, HistoryEntry{
		Tool:   string(action.Kind),
		Args:   action.ArgsMap(),
		Status: status,
		Reason: reason,
	})
}

// TakePending claims the in-flight action for resolution. The session
// stays busy (rejecting new proposals) until FinishPending runs.
func (s *Session) TakePending() (*model.ProposedAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, ErrNothingPending
	}

	action := s.pending
	s.pending = nil
	s.executing = true
	return action, nil
}

// FinishPending mutates the transient history entry to its terminal
// status. This is the single allowed mutation of a history entry.
func (s *Session) FinishPending(status Status, reason, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executing = false
	for i := len(s.history) - 1; i >= 0; i-- {
		if !s.history[i].Status.Terminal() {
			s.history[i].Status = status
			s.history[i].Reason = reason
			s.history[i].Result = result
			return nil
		}
	}
	return ErrNothingPending
}

// History returns a copy of the session history, oldest first.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Manager hands out sessions by id. Sessions are independent and may
// proceed concurrently.
type Manager struct {
	sessions sync.Map // id → *Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{}
}

// Get returns the session with the given id, creating it on first use.
// An empty id creates a session with a generated id.
func (m *Manager) Get(id string) *Session {
	if id == "" {
		s := New("")
		m.sessions.Store(s.ID, s)
		return s
	}
	if v, ok := m.sessions.Load(id); ok {
		return v.(*Session)
	}
	s := New(id)
	actual, _ := m.sessions.LoadOrStore(id, s)
	return actual.(*Session)
}

// Lookup returns the session with the given id, if it exists.
func (m *Manager) Lookup(id string) (*Session, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import "sync"

// StatusKind classifies what a session is doing right now.
type StatusKind string

const (
	// StatusIdle means no turn is in flight. Unknown sessions are idle.
	StatusIdle StatusKind = "idle"
	// StatusBusy means the assistant is working on a turn.
	StatusBusy StatusKind = "busy"
	// StatusRetry means the server hit a transient provider error and
	// will retry the turn.
	StatusRetry StatusKind = "retry"
)

// Status is one session's projected activity. The retry fields are
// meaningful only when Kind is StatusRetry; consumers render the
// countdown by subtracting the current time from Next.
type Status struct {
	Kind StatusKind

	// Attempt is the upcoming retry attempt number.
	Attempt int
	// Message is the provider error that caused the retry.
	Message string
	// Next is when the retry fires, unix milliseconds.
	Next int64
}

// StatusStore projects per-session activity from the event flow.
//
// There are exactly three transitions and no timers: busy (skipped
// while a retry is pending, retry details would be lost), retry
// (always recorded), and idle (unconditional). Nothing expires on its
// own; a session's last known status stands until an event replaces
// it. Sessions never seen are idle.
type StatusStore struct {
	onChange func(sessionID string, status Status)

	mu       sync.RWMutex
	statuses map[string]Status
}

// NewStatusStore creates a StatusStore. onChange, when non-nil, fires
// after every actual change, outside the store's lock. Callbacks for
// different sessions may interleave; callbacks for one session arrive
// in transition order.
func NewStatusStore(onChange func(sessionID string, status Status)) *StatusStore {
	return &StatusStore{
		onChange: onChange,
		statuses: make(map[string]Status),
	}
}

// Get returns the session's current status.
func (s *StatusStore) Get(sessionID string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status, ok := s.statuses[sessionID]; ok {
		return status
	}
	return Status{Kind: StatusIdle}
}

// MarkBusy records that the assistant is working, unless a retry is
// pending. The retry keeps precedence until the session goes idle: the
// server keeps streaming message updates while counting down, and busy
// would erase the countdown.
func (s *StatusStore) MarkBusy(sessionID string) {
	s.mu.Lock()
	current := s.statuses[sessionID]
	if current.Kind == StatusRetry {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(sessionID, current, Status{Kind: StatusBusy})
}

// MarkRetry records a pending retry.
func (s *StatusStore) MarkRetry(sessionID string, attempt int, message string, next int64) {
	s.mu.Lock()
	s.transitionLocked(sessionID, s.statuses[sessionID], Status{
		Kind:    StatusRetry,
		Attempt: attempt,
		Message: message,
		Next:    next,
	})
}

// MarkIdle records that the session finished its turn. Unconditional:
// idle is the server's word that nothing is in flight, and it clears a
// pending retry.
func (s *StatusStore) MarkIdle(sessionID string) {
	s.mu.Lock()
	s.transitionLocked(sessionID, s.statuses[sessionID], Status{Kind: StatusIdle})
}

// Forget drops a deleted session's status.
func (s *StatusStore) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.statuses, sessionID)
}

// transitionLocked stores next if it differs from current and fires
// the change callback. It is entered holding s.mu and unlocks before
// the callback so the callback may read the store.
func (s *StatusStore) transitionLocked(sessionID string, current, next Status) {
	if current.Kind == "" {
		current = Status{Kind: StatusIdle}
	}
	if next == current {
		s.mu.Unlock()
		return
	}
	s.statuses[sessionID] = next
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(sessionID, next)
	}
}

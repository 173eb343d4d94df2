// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"sync"

	cpr "github.com/Zeeeepa/CPR"
)

// Registry is the process-wide table of active sessions, keyed by task ID.
// Insertion happens synchronously at task creation; removal happens from
// within the owning session's teardown path. All operations are safe under
// concurrent access from sessions and inbound stream-attach requests.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register adds a session. A duplicate task ID is fatal to the create-task
// operation and never silently overwrites the existing session.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID()]; exists {
		return cpr.DuplicateTaskError{TaskID: s.ID()}
	}
	r.sessions[s.ID()] = s
	return nil
}

// Unregister removes a session by task ID. Idempotent: removing an absent
// ID is not an error.
func (r *Registry) Unregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, taskID)
}

// Get returns the session for a task ID, if present.
func (r *Registry) Get(taskID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[taskID]
	return s, ok
}

// Sessions returns a snapshot of all active sessions. No ordering
// guarantee.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

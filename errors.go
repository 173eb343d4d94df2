// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package cpr

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned when events are consumed from or produced to
// a session whose stream has already ended.
var ErrSessionClosed = errors.New("cpr: session closed")

// TaskNotFoundError is returned when a task ID is not present in the
// registry.
type TaskNotFoundError struct {
	TaskID string
}

// Error implements the error interface.
func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %q not found", e.TaskID)
}

// DuplicateTaskError is returned when registering a task ID that is already
// present. Registration conflicts are fatal to the create-task operation and
// never silently overwrite the existing session.
type DuplicateTaskError struct {
	TaskID string
}

// Error implements the error interface.
func (e DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q already registered", e.TaskID)
}

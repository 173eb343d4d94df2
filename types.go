// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package cpr

import (
	"bytes"
	"time"

	"github.com/go-json-experiment/json"
)

// Phase is the engine's classification of a task's progress, distinct from
// the raw vendor status string.
type Phase string

const (
	// PhasePending indicates the remote task has been accepted but not started.
	PhasePending Phase = "pending"

	// PhaseRunning indicates the remote task is in flight.
	PhaseRunning Phase = "running"

	// PhaseCompleted indicates the remote task finished with a result.
	PhaseCompleted Phase = "completed"

	// PhaseFailed indicates the remote task reported failure.
	PhaseFailed Phase = "failed"

	// PhaseUnknown indicates the snapshot carried no usable status. It is
	// treated like PhaseRunning for polling purposes but logged distinctly.
	PhaseUnknown Phase = "unknown"
)

// Terminal reports whether the phase ends a task's lifecycle.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// EventKind identifies the type of a lifecycle event.
type EventKind string

const (
	EventStatus    EventKind = "status"
	EventStep      EventKind = "step"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventError     EventKind = "error"
	EventTimeout   EventKind = "timeout"
	EventHeartbeat EventKind = "heartbeat"
)

// Event is one entry in a session's ordered event sequence. The JSON field
// names are the stable contract between the engine and any transport-layer
// serialization.
type Event struct {
	Kind        EventKind `json:"kind"`
	TaskID      string    `json:"task_id"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status,omitempty"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	WebURL      string    `json:"web_url,omitempty"`
	CurrentStep string    `json:"current_step,omitempty"`
	ThreadID    string    `json:"thread_id,omitempty"`
}

// Terminal reports whether the event ends a session's event sequence.
// Exactly one terminal event is emitted per session, and it is always the
// last non-heartbeat event.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventCompleted, EventFailed, EventTimeout:
		return true
	default:
		return false
	}
}

// SnapshotMessage is one entry of a snapshot's message history.
type SnapshotMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Snapshot is the state of a remote task as observed by a single refresh.
//
// The remote representation is duck-typed: fields may appear, disappear, or
// change type between polls. String-or-map fields are modeled as Value so
// every extraction step performs an explicit presence check instead of
// reflective probing.
type Snapshot struct {
	Status        string            `json:"status"`
	Result        Value             `json:"result,omitzero"`
	Summary       Value             `json:"summary,omitzero"`
	Output        string            `json:"output,omitempty"`
	Error         string            `json:"error,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	WebURL        string            `json:"web_url,omitempty"`
	Messages      []SnapshotMessage `json:"messages,omitempty"`
}

// HasResultData reports whether any result-bearing field is non-empty.
// This is the trigger for the defensive-completion heuristic.
func (s Snapshot) HasResultData() bool {
	return !s.Result.IsZero() || s.Output != "" || s.WebURL != ""
}

// Value holds a snapshot field that the remote service serializes either as
// a plain string or as a structured map, or omits entirely. Any other shape
// is ignored rather than rejected: a malformed field must degrade to
// absence, never to an error.
type Value struct {
	str string
	obj map[string]any
}

// StringValue returns a Value holding a plain string.
func StringValue(s string) Value {
	return Value{str: s}
}

// MapValue returns a Value holding a structured map.
func MapValue(m map[string]any) Value {
	return Value{obj: m}
}

// IsZero reports whether the field was absent, empty, or of an
// unrecognized shape.
func (v Value) IsZero() bool {
	return v.str == "" && len(v.obj) == 0
}

// AsString returns the plain-string form of the value, if it has one.
func (v Value) AsString() (string, bool) {
	if v.str == "" {
		return "", false
	}
	return v.str, true
}

// AsMap returns the structured form of the value, if it has one.
func (v Value) AsMap() (map[string]any, bool) {
	if len(v.obj) == 0 {
		return nil, false
	}
	return v.obj, true
}

var jsonNull = []byte("null")

// UnmarshalJSON accepts a JSON string, a JSON object, or null. Every other
// kind decodes to the zero Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil
	}

	switch data[0] {
	case '"':
		return json.Unmarshal(data, &v.str)
	case '{':
		return json.Unmarshal(data, &v.obj)
	default:
		// Numbers, booleans, and arrays carry no extractable result.
		return nil
	}
}

// MarshalJSON emits the value in its original shape, or null when zero.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.str != "":
		return json.Marshal(v.str)
	case len(v.obj) > 0:
		return json.Marshal(v.obj)
	default:
		return jsonNull, nil
	}
}

// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cpr "github.com/Zeeeepa/CPR"
)

// DefaultHeartbeatInterval is the keepalive cadence used when none is
// configured. It is independent of the polling cadence on purpose: an idle
// transport must not be mistaken for a stalled one.
const DefaultHeartbeatInterval = 15 * time.Second

// Emitter turns one session's lifecycle transitions into the externally
// visible Event sequence.
type Emitter struct {
	queue     *Queue
	taskID    string
	threadID  string
	heartbeat time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	terminal bool
}

// EmitterOption configures an [Emitter].
type EmitterOption func(*Emitter)

// WithThreadID stamps every emitted event with a thread identifier.
func WithThreadID(threadID string) EmitterOption {
	return func(e *Emitter) {
		e.threadID = threadID
	}
}

// WithHeartbeatInterval overrides the keepalive cadence.
func WithHeartbeatInterval(interval time.Duration) EmitterOption {
	return func(e *Emitter) {
		if interval > 0 {
			e.heartbeat = interval
		}
	}
}

// WithLogger sets the [*slog.Logger] for the emitter.
func WithLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// withClock overrides the time source. Test hook.
func withClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		e.now = now
	}
}

// NewEmitter creates an emitter writing to queue on behalf of taskID.
func NewEmitter(queue *Queue, taskID string, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		queue:     queue,
		taskID:    taskID,
		heartbeat: DefaultHeartbeatInterval,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status emits a status event for a phase transition.
func (e *Emitter) Status(ctx context.Context, phase cpr.Phase, snap cpr.Snapshot) error {
	return e.emit(ctx, cpr.Event{
		Kind:   cpr.EventStatus,
		Status: string(phase),
		WebURL: snap.WebURL,
	})
}

// Step emits a step event for a changed current-step marker.
func (e *Emitter) Step(ctx context.Context, step string) error {
	return e.emit(ctx, cpr.Event{
		Kind:        cpr.EventStep,
		CurrentStep: step,
	})
}

// PollError emits a non-terminal error event for a transient refresh
// failure. Polling continues after it.
func (e *Emitter) PollError(ctx context.Context, err error) error {
	return e.emit(ctx, cpr.Event{
		Kind:   cpr.EventError,
		Status: string(cpr.EventError),
		Error:  fmt.Sprintf("Failed to refresh task: %v", err),
	})
}

// Completed emits the terminal completed event with the extracted result.
func (e *Emitter) Completed(ctx context.Context, snap cpr.Snapshot) error {
	return e.emitTerminal(ctx, cpr.Event{
		Kind:   cpr.EventCompleted,
		Status: string(cpr.EventCompleted),
		Result: cpr.ExtractResult(snap),
		WebURL: snap.WebURL,
	})
}

// Failed emits the terminal failed event with the extracted failure message.
func (e *Emitter) Failed(ctx context.Context, snap cpr.Snapshot) error {
	return e.emitTerminal(ctx, cpr.Event{
		Kind:   cpr.EventFailed,
		Status: string(cpr.EventFailed),
		Error:  cpr.ExtractFailure(snap),
		WebURL: snap.WebURL,
	})
}

// Expire is the timeout governor: called when the tick budget is exhausted
// without a terminal phase. A snapshot that already carries result data is
// salvaged as a forced completion; otherwise the session times out. Returns
// the kind of the terminal event emitted.
func (e *Emitter) Expire(ctx context.Context, snap cpr.Snapshot) (cpr.EventKind, error) {
	if snap.HasResultData() {
		return cpr.EventCompleted, e.Completed(ctx, snap)
	}
	return cpr.EventTimeout, e.emitTerminal(ctx, cpr.Event{
		Kind:   cpr.EventTimeout,
		Status: string(cpr.EventTimeout),
		Error:  "Task polling timeout. Task may still be running.",
		WebURL: snap.WebURL,
	})
}

// Terminal reports whether the terminal event has been emitted.
func (e *Emitter) Terminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

// StartHeartbeat begins emitting heartbeat events on an independent timer
// until the context is cancelled, the queue closes, or the terminal event
// has been emitted.
func (e *Emitter) StartHeartbeat(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.Terminal() {
					return
				}
				if err := e.emit(ctx, cpr.Event{Kind: cpr.EventHeartbeat}); err != nil {
					return
				}
			}
		}
	}()
}

func (e *Emitter) emit(ctx context.Context, ev cpr.Event) error {
	ev.TaskID = e.taskID
	ev.Timestamp = e.now()
	if ev.ThreadID == "" {
		ev.ThreadID = e.threadID
	}
	return e.queue.Enqueue(ctx, ev)
}

func (e *Emitter) emitTerminal(ctx context.Context, ev cpr.Event) error {
	e.mu.Lock()
	if e.terminal {
		e.mu.Unlock()
		panic(fmt.Sprintf("event: second terminal event %q for task %s", ev.Kind, e.taskID))
	}
	e.terminal = true
	e.mu.Unlock()

	if err := e.emit(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "terminal event not delivered",
			"task_id", e.taskID, "kind", ev.Kind, "error", err)
		return err
	}
	return nil
}

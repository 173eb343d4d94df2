// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cpr "github.com/Zeeeepa/CPR"
	"github.com/Zeeeepa/CPR/server/event"
)

// State is a session's lifecycle state. Unlike cpr.Phase it includes the
// session-level terminal states reached without the remote task finishing.
type State string

const (
	StateInitiated State = "initiated"
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is absorbing: once entered, no further
// polling occurs and the session is eligible for removal.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// Config holds the engine-wide knobs shared by all sessions. The polling
// cadence is deliberately per-engine, not per-task.
type Config struct {
	PollInterval      time.Duration
	MaxTicks          int
	HeartbeatInterval time.Duration
	QueueSize         int

	// Classifier overrides the default status vocabularies, in particular
	// the defensive-completion trigger set. Nil uses the defaults.
	Classifier *cpr.Classifier
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxTicks <= 0 {
		c.MaxTicks = 120
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = event.DefaultHeartbeatInterval
	}
	if c.Classifier == nil {
		c.Classifier = &cpr.Classifier{}
	}
	return c
}

// Session owns one task's polling loop. It is created in StateInitiated,
// transitions on each poll tick, and tears itself down (registry removal,
// queue close) on every exit path.
type Session struct {
	id        string
	threadID  string
	metadata  map[string]any
	handle    cpr.TaskHandle
	registry  *Registry
	queue     *event.Queue
	emitter   *event.Emitter
	config    Config
	logger    *slog.Logger
	tracer    trace.Tracer
	createdAt time.Time

	cancel       context.CancelFunc
	cancelOnce   sync.Once
	startOnce    sync.Once
	teardownOnce sync.Once
	done         chan struct{}

	mu       sync.RWMutex
	state    State
	lastSnap cpr.Snapshot
	lastStep string
}

// Option configures a [Session].
type Option func(*Session)

// WithLogger sets the [*slog.Logger] for the session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the [trace.Tracer] for the session.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithThreadID associates the session with a conversation thread. The
// thread ID is stamped on every emitted event.
func WithThreadID(threadID string) Option {
	return func(s *Session) {
		s.threadID = threadID
	}
}

// WithMetadata attaches opaque client metadata, passed through untouched.
func WithMetadata(metadata map[string]any) Option {
	return func(s *Session) {
		s.metadata = metadata
	}
}

// New creates a session for the given task handle. The caller registers it
// and then calls Start.
func New(id string, handle cpr.TaskHandle, registry *Registry, config Config, opts ...Option) *Session {
	config = config.withDefaults()

	s := &Session{
		id:        id,
		handle:    handle,
		registry:  registry,
		config:    config,
		logger:    slog.Default(),
		tracer:    otel.GetTracerProvider().Tracer("github.com/Zeeeepa/CPR/server/task"),
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
		state:     StateInitiated,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = event.NewQueue(config.QueueSize)
	s.emitter = event.NewEmitter(s.queue, id,
		event.WithThreadID(s.threadID),
		event.WithHeartbeatInterval(config.HeartbeatInterval),
		event.WithLogger(s.logger),
	)
	return s
}

// ID returns the task identifier.
func (s *Session) ID() string { return s.id }

// ThreadID returns the associated thread identifier, if any.
func (s *Session) ThreadID() string { return s.threadID }

// Metadata returns the opaque client metadata.
func (s *Session) Metadata() map[string]any { return s.metadata }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Queue returns the session's event queue. The stream gateway consumes it.
func (s *Session) Queue() *event.Queue { return s.queue }

// Done is closed when the polling loop has exited and teardown has run.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastSnapshot returns the most recently observed remote snapshot.
func (s *Session) LastSnapshot() cpr.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSnap
}

// Start launches the polling goroutine. Subsequent calls, and calls after
// Cancel, are no-ops. The cancel function is published under s.mu so a
// concurrent Cancel either observes it or marks the session cancelled
// before the loop can launch; either way the loop never outlives Cancel
// by more than one polling interval.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		if s.state.Terminal() {
			s.mu.Unlock()
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.mu.Unlock()
		go s.run(ctx)
	})
}

// Cancel requests cooperative teardown. The polling loop observes the
// signal at the top of its next iteration and exits within one polling
// interval. Safe to call multiple times, before Start, and concurrently
// with Start.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		if cancel == nil && !s.state.Terminal() {
			s.state = StateCancelled
		}
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			return
		}
		// Never started, and the cancelled state now blocks a late Start:
		// nothing polls, but the registry entry and the queue must still
		// go away.
		s.teardown()
	})
}

// run is the polling loop, the only place a session blocks.
func (s *Session) run(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "cpr.session.run",
		trace.WithAttributes(attribute.String("cpr.task_id", s.id)))
	defer span.End()
	defer s.teardown()

	s.emitter.StartHeartbeat(ctx)

	var prev cpr.Phase
	first := true

	for tick := 0; tick < s.config.MaxTicks; tick++ {
		if ctx.Err() != nil {
			s.setState(StateCancelled)
			return
		}

		if err := s.handle.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				s.setState(StateCancelled)
				return
			}
			// Transient poll error: surface it and keep polling within the
			// same tick budget.
			s.logger.WarnContext(ctx, "task refresh failed",
				"task_id", s.id, "tick", tick, "error", err)
			_ = s.emitter.PollError(ctx, err)
			if !s.sleep(ctx) {
				s.setState(StateCancelled)
				return
			}
			continue
		}

		snap := s.handle.Snapshot()
		phase := s.config.Classifier.Classify(snap)
		s.observe(snap, phase)

		if phase == cpr.PhaseUnknown {
			s.logger.WarnContext(ctx, "unknown task status",
				"task_id", s.id, "status", snap.Status)
		}

		if first || phase != prev {
			_ = s.emitter.Status(ctx, phase, snap)
		}
		first = false
		prev = phase

		if step := cpr.ExtractStep(snap); step != "" && step != s.currentStep() {
			s.setStep(step)
			_ = s.emitter.Step(ctx, step)
		}

		switch phase {
		case cpr.PhaseCompleted:
			_ = s.emitter.Completed(ctx, snap)
			s.setState(StateCompleted)
			s.logger.InfoContext(ctx, "task completed", "task_id", s.id, "ticks", tick+1)
			return
		case cpr.PhaseFailed:
			_ = s.emitter.Failed(ctx, snap)
			s.setState(StateFailed)
			s.logger.InfoContext(ctx, "task failed", "task_id", s.id, "ticks", tick+1)
			return
		}

		if !s.sleep(ctx) {
			s.setState(StateCancelled)
			return
		}
	}

	s.expire(ctx)
}

// expire handles tick-budget exhaustion. One final refresh may still
// salvage a completed result before the session is declared timed out.
func (s *Session) expire(ctx context.Context) {
	if err := s.handle.Refresh(ctx); err == nil {
		snap := s.handle.Snapshot()
		phase := s.config.Classifier.Classify(snap)
		s.observe(snap, phase)
		if phase == cpr.PhaseCompleted {
			_ = s.emitter.Completed(ctx, snap)
			s.setState(StateCompleted)
			s.logger.InfoContext(ctx, "task completed on final refresh", "task_id", s.id)
			return
		}
	} else if ctx.Err() != nil {
		s.setState(StateCancelled)
		return
	}

	kind, _ := s.emitter.Expire(ctx, s.LastSnapshot())
	if kind == cpr.EventCompleted {
		s.setState(StateCompleted)
		s.logger.InfoContext(ctx, "task force-completed at tick budget", "task_id", s.id)
		return
	}
	s.setState(StateTimedOut)
	s.logger.WarnContext(ctx, "task polling timed out", "task_id", s.id)
}

// teardown runs on every exit path: normal, timeout, error, cancellation.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.mu.RLock()
		cancel := s.cancel
		s.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
		s.queue.Close()
		s.registry.Unregister(s.id)
		close(s.done)
	})
}

func (s *Session) sleep(ctx context.Context) bool {
	select {
	case <-time.After(s.config.PollInterval):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) observe(snap cpr.Snapshot, phase cpr.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSnap = snap
	if s.state.Terminal() {
		return
	}
	switch phase {
	case cpr.PhasePending:
		s.state = StatePending
	default:
		s.state = StateRunning
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = state
}

func (s *Session) currentStep() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStep
}

func (s *Session) setStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStep = step
}

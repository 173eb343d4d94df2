// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"context"
	"fmt"
	"sync"

	cpr "github.com/Zeeeepa/CPR"
)

// DefaultQueueSize is the default queue capacity.
const DefaultQueueSize = 256

var (
	// ErrQueueClosed is returned when enqueueing to, or dequeueing a drained
	// queue after, Close. It wraps cpr.ErrSessionClosed so callers outside
	// this package can match without importing it.
	ErrQueueClosed = fmt.Errorf("event: queue closed: %w", cpr.ErrSessionClosed)
)

// Queue is a bounded event channel owned by a single task session. Its
// primary consumer dequeues directly; additional consumers attach through
// Tap and receive copies of subsequent events. Writers block when the
// primary consumer falls behind; Close wakes all parties.
type Queue struct {
	events    chan cpr.Event
	size      int
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	taps []*Queue
}

// NewQueue creates a queue with the given capacity. Zero or negative uses
// DefaultQueueSize.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		events: make(chan cpr.Event, size),
		size:   size,
		done:   make(chan struct{}),
	}
}

// Enqueue adds an event to the queue and a copy to every tap, blocking
// while the queue is full. Returns ErrQueueClosed after Close, or the
// context error on cancellation.
func (q *Queue) Enqueue(ctx context.Context, e cpr.Event) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	case q.events <- e:
		q.propagate(e)
		return nil
	}
}

// propagate copies an event to every attached tap without blocking. A tap
// whose buffer is full is closed and detached: taps observe at the
// session's pace or not at all, and must never stall the polling loop.
func (q *Queue) propagate(e cpr.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.taps[:0]
	for _, tap := range q.taps {
		if tap.Closed() {
			continue
		}
		select {
		case tap.events <- e:
			kept = append(kept, tap)
		default:
			tap.Close()
		}
	}
	q.taps = kept
}

// Tap returns a new queue that receives a copy of every event enqueued
// from this point on. Taps are closed with the parent; a consumer that
// detaches early should close its tap itself. Returns ErrQueueClosed once
// the parent is closed: nothing further will arrive.
func (q *Queue) Tap() (*Queue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.done:
		return nil, ErrQueueClosed
	default:
	}

	tap := NewQueue(q.size)
	q.taps = append(q.taps, tap)
	return tap, nil
}

// Dequeue removes the next event, blocking until one is available. After
// Close, buffered events are still drained in order before ErrQueueClosed
// is returned.
func (q *Queue) Dequeue(ctx context.Context) (cpr.Event, error) {
	select {
	case e := <-q.events:
		return e, nil
	default:
	}

	select {
	case <-ctx.Done():
		return cpr.Event{}, ctx.Err()
	case e := <-q.events:
		return e, nil
	case <-q.done:
		select {
		case e := <-q.events:
			return e, nil
		default:
			return cpr.Event{}, ErrQueueClosed
		}
	}
}

// Close marks the queue and all of its taps closed. Idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		close(q.done)
		taps := q.taps
		q.taps = nil
		q.mu.Unlock()

		for _, tap := range taps {
			tap.Close()
		}
	})
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

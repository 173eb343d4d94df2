// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	cpr "github.com/Zeeeepa/CPR"
	"github.com/Zeeeepa/CPR/server/event"
	"github.com/Zeeeepa/CPR/server/task"
)

// doneSentinel terminates every SSE stream, regardless of how it ended.
const doneSentinel = "data: [DONE]\n\n"

// handleTaskStream attaches an additional SSE consumer to an already
// running session through a queue tap, so the session's primary consumer
// keeps its own copy of every event.
func (s *Server) handleTaskStream(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	sess, ok := s.registry.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, cpr.TaskNotFoundError{TaskID: taskID}.Error())
		return
	}

	tap, err := sess.Queue().Tap()
	if err != nil {
		// Session already torn down; end the stream immediately.
		if flusher, ok := w.(http.Flusher); ok {
			writeStreamHeaders(w, flusher)
			fmt.Fprint(w, doneSentinel)
			flusher.Flush()
			return
		}
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	defer tap.Close()
	s.streamQueue(w, r, sess, tap, false)
}

// streamSession streams the session's own queue to the creating request.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request, sess *task.Session) {
	s.streamQueue(w, r, sess, sess.Queue(), true)
}

func writeStreamHeaders(w http.ResponseWriter, flusher http.Flusher) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
}

// streamQueue writes a queue's events to the client as SSE until the
// terminal event, the queue closes, or the client goes away. When owned is
// set the caller created the session, and a client disconnect cancels it:
// an unconsumed poll loop has no reason to keep running. A detached tap
// consumer leaves the session alone.
func (s *Server) streamQueue(w http.ResponseWriter, r *http.Request, sess *task.Session, q *event.Queue, owned bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	writeStreamHeaders(w, flusher)

	ctx := r.Context()
	for {
		ev, err := q.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, event.ErrQueueClosed) {
				// Session torn down with no terminal event (cancelled); the
				// stream still ends with the sentinel.
				fmt.Fprint(w, doneSentinel)
				flusher.Flush()
				return
			}
			// Client disconnected.
			if owned {
				sess.Cancel()
			}
			return
		}

		if ev.Kind == cpr.EventHeartbeat {
			// Heartbeats are SSE comments: they keep the connection alive
			// without reaching the client's event handler.
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
			continue
		}

		data, err := sonic.Marshal(ev)
		if err != nil {
			s.logger.ErrorContext(ctx, "encode event",
				"task_id", sess.ID(), "kind", ev.Kind, "error", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
		flusher.Flush()

		if ev.Terminal() {
			fmt.Fprint(w, doneSentinel)
			flusher.Flush()
			return
		}
	}
}

// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	cpr "github.com/Zeeeepa/CPR"
	"github.com/Zeeeepa/CPR/server/event"
)

const wsWriteTimeout = 10 * time.Second

// upgrader accepts any origin; origin policy is already enforced by the
// CORS middleware for the rest of the API, and the WS endpoint carries no
// credentials of its own.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleTaskWebSocket attaches a WebSocket consumer to a running session
// through a queue tap, leaving the session's primary consumer undisturbed.
// Events are sent as JSON text messages; heartbeats become ping control
// frames.
func (s *Server) handleTaskWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	sess, ok := s.registry.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, cpr.TaskNotFoundError{TaskID: taskID}.Error())
		return
	}

	tap, err := sess.Queue().Tap()
	if err != nil {
		writeError(w, http.StatusGone, "Task stream already closed")
		return
	}
	defer tap.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.WarnContext(r.Context(), "websocket upgrade failed",
			"task_id", taskID, "error", err)
		return
	}
	defer conn.Close()

	// The request context does not reliably end for hijacked connections;
	// the read pump surfaces disconnects instead.
	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	go func() {
		defer stop()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		ev, err := tap.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, event.ErrQueueClosed) {
				deadline := time.Now().Add(wsWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			// Observer went away; the session keeps running for its
			// primary consumer.
			return
		}

		if ev.Kind == cpr.EventHeartbeat {
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
			continue
		}

		data, err := sonic.Marshal(ev)
		if err != nil {
			s.logger.ErrorContext(ctx, "encode event",
				"task_id", sess.ID(), "kind", ev.Kind, "error", err)
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}

		if ev.Terminal() {
			deadline := time.Now().Add(wsWriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

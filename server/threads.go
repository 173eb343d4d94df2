// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"

	cpr "github.com/Zeeeepa/CPR"
	"github.com/Zeeeepa/CPR/server/task"
	"github.com/Zeeeepa/CPR/server/thread"
)

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req ThreadCreateRequest
	if r.ContentLength != 0 {
		if err := json.UnmarshalRead(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
	}

	t, err := s.store.CreateThread(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create thread: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list threads: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, ThreadListResponse{Threads: threads})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetThread(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, thread.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, "Thread not found")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get thread: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleCreateMessage stores a message and kicks off its task in the
// background. The response carries the pending message; clients follow up
// by polling the message or streaming the task.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	if _, err := s.store.GetThread(r.Context(), threadID); err != nil {
		if errors.Is(err, thread.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, "Thread not found")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get thread: %v", err))
		return
	}

	var req MessageCreateRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "Content cannot be empty")
		return
	}

	orgID, token, baseURL, err := s.credentials(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	msg, err := s.store.CreateMessage(r.Context(), threadID, req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create message: %v", err))
		return
	}

	go s.processMessage(s.baseCtx, msg, orgID, token, baseURL)

	writeJSON(w, http.StatusAccepted, msg)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	if _, err := s.store.GetThread(r.Context(), threadID); err != nil {
		if errors.Is(err, thread.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, "Thread not found")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get thread: %v", err))
		return
	}

	messages, err := s.store.ListMessages(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list messages: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, MessageListResponse{Messages: messages})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.store.GetMessage(r.Context(), r.PathValue("id"), r.PathValue("mid"))
	if err != nil {
		switch {
		case errors.Is(err, thread.ErrThreadNotFound):
			writeError(w, http.StatusNotFound, "Thread not found")
		case errors.Is(err, thread.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "Message not found")
		default:
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get message: %v", err))
		}
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// processMessage runs a thread message through the engine: create the
// remote task, poll it through a session, and record the terminal outcome
// on the message.
func (s *Server) processMessage(ctx context.Context, msg *thread.Message, orgID, token, baseURL string) {
	finish := func(status thread.MessageStatus, response, taskID string) {
		now := time.Now().UTC()
		msg.Status = status
		msg.Response = response
		msg.TaskID = taskID
		msg.CompletedAt = &now
		if err := s.store.UpdateMessage(ctx, msg); err != nil {
			s.logger.ErrorContext(ctx, "update message",
				"message_id", msg.ID, "status", status, "error", err)
		}
	}

	msg.Status = thread.MessageProcessing
	if err := s.store.UpdateMessage(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "update message",
			"message_id", msg.ID, "status", thread.MessageProcessing, "error", err)
	}

	agent := s.agentFor(orgID, token, baseURL)
	remote, err := agent.CreateTask(ctx, msg.Content)
	if err != nil {
		finish(thread.MessageFailed, fmt.Sprintf("Failed to create task: %v", err), "")
		return
	}

	taskID := remote.ID()
	if taskID == "" {
		taskID = fmt.Sprintf("task_%d", time.Now().UnixNano())
	}

	sess := task.New(taskID, remote, s.registry, s.engineConfig(),
		task.WithLogger(s.logger),
		task.WithTracer(s.tracer),
		task.WithThreadID(msg.ThreadID),
	)
	if err := s.registry.Register(sess); err != nil {
		finish(thread.MessageFailed, err.Error(), taskID)
		return
	}
	sess.Start(ctx)

	// The message processor is this session's primary consumer; stream
	// attachments observe through queue taps and cannot steal its events.
	for {
		ev, err := sess.Queue().Dequeue(ctx)
		if err != nil {
			finish(thread.MessageFailed, "Task ended without result", taskID)
			return
		}
		if !ev.Terminal() {
			continue
		}

		switch ev.Kind {
		case cpr.EventCompleted:
			finish(thread.MessageCompleted, ev.Result, taskID)
		case cpr.EventFailed:
			finish(thread.MessageFailed, ev.Error, taskID)
		case cpr.EventTimeout:
			finish(thread.MessageTimeout, ev.Error, taskID)
		}
		return
	}
}

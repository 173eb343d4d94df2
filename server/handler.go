// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"

	cpr "github.com/Zeeeepa/CPR"
	"github.com/Zeeeepa/CPR/server/task"
)

// Per-request credential headers. Each one overrides the corresponding
// configured default; the values are passed through to the remote service
// untouched.
const (
	headerOrgID   = "X-Org-ID"
	headerToken   = "X-Token"
	headerBaseURL = "X-Base-URL"
)

// credentials resolves the remote service credentials for one request.
func (s *Server) credentials(r *http.Request) (orgID, token, baseURL string, err error) {
	orgID = r.Header.Get(headerOrgID)
	if orgID == "" {
		orgID = s.cfg.Agent.OrgID
	}
	token = r.Header.Get(headerToken)
	if token == "" {
		token = s.cfg.Agent.Token
	}
	baseURL = r.Header.Get(headerBaseURL)
	if baseURL == "" {
		baseURL = s.cfg.Agent.BaseURL
	}

	if orgID == "" || token == "" {
		return "", "", "", fmt.Errorf(
			"missing credentials: set %s and %s headers or configure defaults",
			headerOrgID, headerToken)
	}
	return orgID, token, baseURL, nil
}

// startSession creates a remote task and a polling session for it. The
// session is registered and started before this returns; the caller owns
// the queue.
func (s *Server) startSession(r *http.Request, req TaskRequest) (*task.Session, error) {
	orgID, token, baseURL, err := s.credentials(r)
	if err != nil {
		return nil, &httpError{status: http.StatusUnauthorized, detail: err.Error()}
	}

	agent := s.agentFor(orgID, token, baseURL)
	remote, err := agent.CreateTask(r.Context(), req.Prompt)
	if err != nil {
		return nil, &httpError{
			status: http.StatusBadGateway,
			detail: fmt.Sprintf("Failed to create task: %v", err),
		}
	}

	taskID := remote.ID()
	if taskID == "" {
		// Some responses omit the identifier; synthesize one so the session
		// is still addressable.
		taskID = fmt.Sprintf("task_%d", time.Now().UnixNano())
	}

	sess := task.New(taskID, remote, s.registry, s.engineConfig(),
		task.WithLogger(s.logger),
		task.WithTracer(s.tracer),
		task.WithThreadID(req.ThreadID),
	)
	if err := s.registry.Register(sess); err != nil {
		return nil, &httpError{status: http.StatusConflict, detail: err.Error()}
	}

	// Sessions run on the server's base context, not the request context:
	// polling continues after the creating request ends.
	sess.Start(s.baseCtx)

	s.logger.InfoContext(r.Context(), "session started",
		"task_id", taskID, "thread_id", req.ThreadID, "stream", req.streaming())
	return sess, nil
}

// handleRunTask creates a task and either streams its lifecycle events or
// waits synchronously for the terminal event.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Prompt cannot be empty")
		return
	}

	sess, err := s.startSession(r, req)
	if err != nil {
		writeHTTPError(w, err)
		return
	}

	if req.streaming() {
		s.streamSession(w, r, sess)
		return
	}
	s.waitSession(w, r, sess)
}

// waitSession drains the session queue until the terminal event and
// answers with a single JSON body.
func (s *Server) waitSession(w http.ResponseWriter, r *http.Request, sess *task.Session) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Engine.SyncWait())
	defer cancel()

	for {
		ev, err := sess.Queue().Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				sess.Cancel()
				writeError(w, http.StatusRequestTimeout,
					"Timed out waiting for task completion")
				return
			}
			// Queue closed without a terminal event: the session was torn
			// down from elsewhere.
			writeError(w, http.StatusInternalServerError, "Task ended without result")
			return
		}
		if !ev.Terminal() {
			continue
		}

		resp := TaskResponse{
			Status:   string(ev.Kind),
			TaskID:   ev.TaskID,
			Result:   ev.Result,
			WebURL:   ev.WebURL,
			ThreadID: ev.ThreadID,
		}
		status := http.StatusOK
		if ev.Kind == cpr.EventFailed {
			status = http.StatusInternalServerError
			resp.Result = ev.Error
		}
		writeJSON(w, status, resp)
		return
	}
}

// handleTaskStatus reports the live session state for one task.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	sess, ok := s.registry.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, cpr.TaskNotFoundError{TaskID: taskID}.Error())
		return
	}

	snap := sess.LastSnapshot()
	resp := TaskStatusResponse{
		Status: string(sess.State()),
		TaskID: sess.ID(),
		WebURL: snap.WebURL,
		Progress: &TaskProgress{
			CreatedAt: sess.CreatedAt(),
			ThreadID:  sess.ThreadID(),
			Metadata:  sess.Metadata(),
		},
	}
	if sess.State() == task.StateCompleted {
		resp.Result = cpr.ExtractResult(snap)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTaskDebug dumps the raw last snapshot and session internals for
// one task. Meant for diagnosing tasks whose remote status vocabulary the
// classifier does not recognize.
func (s *Server) handleTaskDebug(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	sess, ok := s.registry.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, cpr.TaskNotFoundError{TaskID: taskID}.Error())
		return
	}

	snap := sess.LastSnapshot()
	writeJSON(w, http.StatusOK, TaskDebugResponse{
		TaskID:    sess.ID(),
		State:     string(sess.State()),
		ThreadID:  sess.ThreadID(),
		CreatedAt: sess.CreatedAt(),
		Snapshot:  snap,
		HasResult: snap.HasResultData(),
		WebURL:    snap.WebURL,
		QueueLen:  sess.Queue().Len(),
	})
}

// handleListTasks lists all registered sessions.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.Sessions()
	summaries := make([]TaskSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, TaskSummary{
			TaskID:    sess.ID(),
			Status:    string(sess.State()),
			CreatedAt: sess.CreatedAt(),
			ThreadID:  sess.ThreadID(),
			WebURL:    sess.LastSnapshot().WebURL,
		})
	}
	writeJSON(w, http.StatusOK, ActiveTasksResponse{
		ActiveTasks: summaries,
		TotalCount:  len(summaries),
	})
}

// handleCancelTask cancels the session for one task. Cancellation is
// cooperative: the poll loop exits within one polling interval.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	sess, ok := s.registry.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, cpr.TaskNotFoundError{TaskID: taskID}.Error())
		return
	}

	createdAt := sess.CreatedAt()
	sess.Cancel()

	s.logger.InfoContext(r.Context(), "session cancelled", "task_id", taskID)
	writeJSON(w, http.StatusOK, CancelResponse{
		Message:   "Task cancelled",
		TaskID:    taskID,
		CreatedAt: createdAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ConfigResponse{
		DefaultOrgID:     s.cfg.Agent.OrgID,
		Host:             s.cfg.Server.Host,
		Port:             s.cfg.Server.Port,
		CORSOrigins:      s.cfg.Server.CORSOrigins,
		ActiveTasksCount: s.registry.Len(),
	})
}

// httpError carries a status code alongside the detail message.
type httpError struct {
	status int
	detail string
}

func (e *httpError) Error() string { return e.detail }

func writeHTTPError(w http.ResponseWriter, err error) {
	var he *httpError
	if errors.As(err, &he) {
		writeError(w, he.status, he.detail)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.MarshalWrite(w, body); err != nil {
		slog.Default().Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

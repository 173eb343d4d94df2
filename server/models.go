// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"time"

	cpr "github.com/Zeeeepa/CPR"
	"github.com/Zeeeepa/CPR/server/thread"
)

// TaskRequest is the body of POST /api/v1/run-task.
type TaskRequest struct {
	Prompt string `json:"prompt"`

	// Stream selects SSE streaming (the default) or a synchronous wait.
	Stream *bool `json:"stream,omitempty"`

	// ThreadID associates the task with a conversation thread; passed
	// through untouched.
	ThreadID string `json:"thread_id,omitempty"`
}

// streaming reports whether the request asked for a streamed response.
func (r TaskRequest) streaming() bool {
	return r.Stream == nil || *r.Stream
}

// TaskResponse is the synchronous response of POST /api/v1/run-task.
type TaskResponse struct {
	Result   string `json:"result,omitempty"`
	Status   string `json:"status"`
	TaskID   string `json:"task_id,omitempty"`
	WebURL   string `json:"web_url,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// TaskProgress carries session bookkeeping in status responses.
type TaskProgress struct {
	CreatedAt time.Time      `json:"created_at"`
	ThreadID  string         `json:"thread_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskStatusResponse is the body of GET /api/v1/task/{id}/status.
type TaskStatusResponse struct {
	Status   string        `json:"status"`
	Result   string        `json:"result,omitempty"`
	TaskID   string        `json:"task_id"`
	WebURL   string        `json:"web_url,omitempty"`
	Progress *TaskProgress `json:"progress,omitempty"`
}

// TaskDebugResponse is the body of GET /api/v1/task/{id}/debug. It exposes
// the raw last-observed snapshot and the session's internal state for
// troubleshooting tasks whose completion signals are off.
type TaskDebugResponse struct {
	TaskID    string       `json:"task_id"`
	State     string       `json:"state"`
	ThreadID  string       `json:"thread_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Snapshot  cpr.Snapshot `json:"snapshot"`
	HasResult bool         `json:"has_result"`
	WebURL    string       `json:"web_url,omitempty"`
	QueueLen  int          `json:"queue_len"`
}

// TaskSummary is one entry of the active-task listing.
type TaskSummary struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ThreadID  string    `json:"thread_id,omitempty"`
	WebURL    string    `json:"web_url,omitempty"`
}

// ActiveTasksResponse is the body of GET /api/v1/tasks.
type ActiveTasksResponse struct {
	ActiveTasks []TaskSummary `json:"active_tasks"`
	TotalCount  int           `json:"total_count"`
}

// CancelResponse is the body of DELETE /api/v1/task/{id}.
type CancelResponse struct {
	Message   string    `json:"message"`
	TaskID    string    `json:"task_id"`
	CreatedAt time.Time `json:"was_created_at"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// ConfigResponse is the body of GET /api/v1/config. Credentials are never
// included.
type ConfigResponse struct {
	DefaultOrgID     string   `json:"default_org_id,omitempty"`
	Host             string   `json:"host"`
	Port             int      `json:"port"`
	CORSOrigins      []string `json:"cors_origins"`
	ActiveTasksCount int      `json:"active_tasks_count"`
}

// ThreadCreateRequest is the body of POST /api/v1/threads.
type ThreadCreateRequest struct {
	Name string `json:"name,omitempty"`
}

// ThreadListResponse is the body of GET /api/v1/threads.
type ThreadListResponse struct {
	Threads []*thread.Thread `json:"threads"`
}

// MessageCreateRequest is the body of POST /api/v1/threads/{id}/messages.
type MessageCreateRequest struct {
	Content string `json:"content"`
}

// MessageListResponse is the body of GET /api/v1/threads/{id}/messages.
type MessageListResponse struct {
	Messages []*thread.Message `json:"messages"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Detail string `json:"detail"`
}

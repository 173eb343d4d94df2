// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is an HTTP client for the remote agent service. It exposes
// the two calls the streaming engine consumes: task creation and task
// refresh. The remote task representation is loosely typed; everything the
// service returns is surfaced as a cpr.Snapshot and interpreted elsewhere.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-json-experiment/json"

	cpr "github.com/Zeeeepa/CPR"
)

// DefaultBaseURL is the default endpoint of the remote agent service.
const DefaultBaseURL = "https://api.codegen.com"

// Client calls the remote agent service on behalf of one organization.
type Client struct {
	baseURL    string
	orgID      string
	token      string
	httpClient *http.Client
	retry      *RetryConfig
	logger     *slog.Logger
}

// New creates a Client for the given organization credentials.
func New(orgID, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		orgID:      orgID,
		token:      token,
		httpClient: http.DefaultClient,
		retry:      DefaultRetryConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimSuffix(c.baseURL, "/")
	return c
}

// taskPayload is the remote task representation: an identifier of
// inconsistent type plus the loosely-typed snapshot fields.
type taskPayload struct {
	ID looseID `json:"id,omitzero"`
	cpr.Snapshot
}

// CreateTask submits a prompt to the remote agent service and returns a
// handle for the created task.
func (c *Client) CreateTask(ctx context.Context, prompt string) (*AgentTask, error) {
	if prompt == "" {
		return nil, fmt.Errorf("client: prompt cannot be empty")
	}

	var payload taskPayload
	body := map[string]string{"prompt": prompt}
	if err := c.do(ctx, http.MethodPost, c.runPath(""), body, &payload); err != nil {
		return nil, fmt.Errorf("client: create task: %w", err)
	}

	c.logger.InfoContext(ctx, "task created",
		"task_id", string(payload.ID), "status", payload.Snapshot.Status)

	return &AgentTask{
		client: c,
		id:     string(payload.ID),
		snap:   payload.Snapshot,
	}, nil
}

// AgentTask is a handle on one in-flight remote task. It implements
// cpr.TaskHandle: Refresh pulls the latest remote state, Snapshot returns
// the most recently observed state.
type AgentTask struct {
	client *Client
	id     string

	mu   sync.RWMutex
	snap cpr.Snapshot
}

var _ cpr.TaskHandle = (*AgentTask)(nil)

// ID returns the remote task identifier, which may be empty when the
// service did not assign one.
func (t *AgentTask) ID() string {
	return t.id
}

// Refresh pulls the latest remote state into the handle. Tasks without a
// remote identifier cannot be refreshed and keep their creation snapshot.
func (t *AgentTask) Refresh(ctx context.Context) error {
	if t.id == "" {
		return nil
	}

	var payload taskPayload
	if err := t.client.do(ctx, http.MethodGet, t.client.runPath(t.id), nil, &payload); err != nil {
		return fmt.Errorf("client: refresh task %s: %w", t.id, err)
	}

	t.mu.Lock()
	t.snap = payload.Snapshot
	t.mu.Unlock()
	return nil
}

// Snapshot returns the state observed by the most recent Refresh.
func (t *AgentTask) Snapshot() cpr.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

func (c *Client) runPath(taskID string) string {
	if taskID == "" {
		return fmt.Sprintf("%s/v1/organizations/%s/agent/run", c.baseURL, c.orgID)
	}
	return fmt.Sprintf("%s/v1/organizations/%s/agent/run/%s", c.baseURL, c.orgID, taskID)
}

// do executes one HTTP call with retry, decoding the response body into out.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	return withRetry(ctx, c.retry, method+" "+url, func(ctx context.Context) error {
		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &statusError{code: resp.StatusCode, retryable: true}
		}
		if resp.StatusCode >= 400 {
			return &statusError{code: resp.StatusCode}
		}

		if out == nil {
			return nil
		}
		if err := json.UnmarshalRead(resp.Body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

// statusError is an HTTP status reported by the remote service.
type statusError struct {
	code      int
	retryable bool
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, http.StatusText(e.code))
}

// looseID accepts string or numeric task identifiers.
type looseID string

func (id *looseID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = looseID(s)
		return nil
	}
	*id = looseID(data)
	return nil
}

func (id looseID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got, want := r.URL.Path, "/v1/organizations/org-1/agent/run"; got != want {
			t.Errorf("path = %q, want %q", got, want)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}

		var body map[string]string
		if err := json.UnmarshalRead(r.Body, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["prompt"] != "do the thing" {
			t.Errorf("prompt = %q", body["prompt"])
		}

		fmt.Fprint(w, `{"id": 7241, "status": "pending", "web_url": "https://example.com/t/7241"}`)
	}))
	defer srv.Close()

	c := New("org-1", "tok-1", WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	task, err := c.CreateTask(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	// Numeric identifiers are normalized to strings.
	if task.ID() != "7241" {
		t.Errorf("ID() = %q, want 7241", task.ID())
	}
	snap := task.Snapshot()
	if snap.Status != "pending" || snap.WebURL != "https://example.com/t/7241" {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestCreateTaskEmptyPrompt(t *testing.T) {
	t.Parallel()

	c := New("org-1", "tok-1")
	if _, err := c.CreateTask(context.Background(), ""); err == nil {
		t.Error("CreateTask(\"\") error = nil, want error")
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"id": "t-1", "status": "pending"}`)
			return
		}
		if got, want := r.URL.Path, "/v1/organizations/org-1/agent/run/t-1"; got != want {
			t.Errorf("path = %q, want %q", got, want)
		}
		calls.Add(1)
		fmt.Fprint(w, `{"id": "t-1", "status": "completed", "result": "finished"}`)
	}))
	defer srv.Close()

	c := New("org-1", "tok-1", WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	task, err := c.CreateTask(context.Background(), "go")
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	if err := task.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("refresh calls = %d, want 1", calls.Load())
	}

	snap := task.Snapshot()
	if snap.Status != "completed" {
		t.Errorf("Status = %q, want completed", snap.Status)
	}
	if got, ok := snap.Result.AsString(); !ok || got != "finished" {
		t.Errorf("Result = %q, %v", got, ok)
	}
}

func TestRefreshWithoutID(t *testing.T) {
	t.Parallel()

	// No remote identifier means nothing to poll; Refresh keeps the
	// creation snapshot instead of failing.
	task := &AgentTask{client: New("org-1", "tok-1")}
	if err := task.Refresh(context.Background()); err != nil {
		t.Errorf("Refresh() error = %v", err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id": "t-1", "status": "pending"}`)
	}))
	defer srv.Close()

	c := New("org-1", "tok-1", WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	if _, err := c.CreateTask(context.Background(), "go"); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("org-1", "tok-1", WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	if _, err := c.CreateTask(context.Background(), "go"); err == nil {
		t.Fatal("CreateTask() error = nil, want error")
	}
	if calls.Load() != 1 {
		t.Errorf("attempts = %d, want 1", calls.Load())
	}
}

func TestRetryExhaustion(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New("org-1", "tok-1", WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	if _, err := c.CreateTask(context.Background(), "go"); err == nil {
		t.Fatal("CreateTask() error = nil, want error")
	}
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}
}

func TestLooseIDShapes(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input string
		want  string
	}{
		"string":  {input: `"abc-123"`, want: "abc-123"},
		"integer": {input: `42`, want: "42"},
		"null":    {input: `null`, want: ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var id looseID
			if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if string(id) != tt.want {
				t.Errorf("looseID = %q, want %q", id, tt.want)
			}
		})
	}
}

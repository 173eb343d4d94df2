// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cpr "github.com/Zeeeepa/CPR"
	"github.com/Zeeeepa/CPR/internal/sse"
	"github.com/Zeeeepa/CPR/server/task"
)

// readEvents decodes SSE events until the [DONE] sentinel or stream end.
func readEvents(t *testing.T, body io.Reader) []cpr.Event {
	t.Helper()

	d := sse.NewDecoder(body)
	var events []cpr.Event
	for {
		var ev cpr.Event
		if err := d.DecodeJSON(&ev); err != nil {
			require.True(t, errors.Is(err, io.EOF), "decode error = %v", err)
			return events
		}
		events = append(events, ev)
	}
}

func TestRunTaskStream(t *testing.T) {
	agent := &fakeAgent{task: &fakeTask{
		id: "task-1",
		snaps: []cpr.Snapshot{
			{Status: "completed", Result: cpr.StringValue("streamed result")},
		},
	}}
	_, ts, _ := newTestServer(t, agent)

	resp := postJSON(t, ts.URL+"/api/v1/run-task",
		TaskRequest{Prompt: "go"}, authHeaders())
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp.Body)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, cpr.EventCompleted, last.Kind)
	assert.Equal(t, "streamed result", last.Result)
	assert.Equal(t, "task-1", last.TaskID)

	// Exactly one terminal event, and nothing after it.
	for _, ev := range events[:len(events)-1] {
		assert.False(t, ev.Terminal(), "non-final event %q is terminal", ev.Kind)
	}
}

func TestStreamReattach(t *testing.T) {
	srv, ts, _ := newTestServer(t, completingAgent("x"))

	handle := &gatedTask{result: "caught up"}
	cfg := srv.engineConfig()
	cfg.PollInterval = time.Millisecond
	sess := task.New("task-r", handle, srv.registry, cfg)
	require.NoError(t, srv.registry.Register(sess))
	sess.Start(t.Context())

	// Headers arrive once the attachment is in place; only then let the
	// task finish, since an attached stream sees events from that point on.
	resp, err := http.Get(ts.URL + "/api/v1/task/task-r/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	handle.Release()

	events := readEvents(t, resp.Body)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, cpr.EventCompleted, last.Kind)
	assert.Equal(t, "caught up", last.Result)
}

func TestStreamAttachKeepsPrimaryEvents(t *testing.T) {
	srv, ts, _ := newTestServer(t, completingAgent("x"))

	handle := &gatedTask{result: "shared result"}
	cfg := srv.engineConfig()
	cfg.PollInterval = time.Millisecond
	sess := task.New("task-shared", handle, srv.registry, cfg)
	require.NoError(t, srv.registry.Register(sess))
	sess.Start(t.Context())

	// A primary consumer drains the session queue, the way the message
	// processor does for thread-driven tasks.
	terminal := make(chan cpr.Event, 1)
	go func() {
		defer close(terminal)
		for {
			ev, err := sess.Queue().Dequeue(context.Background())
			if err != nil {
				return
			}
			if ev.Terminal() {
				terminal <- ev
				return
			}
		}
	}()

	resp, err := http.Get(ts.URL + "/api/v1/task/task-shared/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	handle.Release()

	// The attached stream ends with its own copy of the terminal event.
	events := readEvents(t, resp.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, cpr.EventCompleted, events[len(events)-1].Kind)

	// The attachment did not steal the primary consumer's terminal event.
	select {
	case ev, ok := <-terminal:
		require.True(t, ok, "primary consumer saw the queue close without a terminal event")
		assert.Equal(t, cpr.EventCompleted, ev.Kind)
		assert.Equal(t, "shared result", ev.Result)
	case <-time.After(5 * time.Second):
		t.Fatal("primary consumer never received the terminal event")
	}
}

func TestStreamNotFound(t *testing.T) {
	_, ts, _ := newTestServer(t, completingAgent("x"))

	resp, err := http.Get(ts.URL + "/api/v1/task/nope/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamFailureEvent(t *testing.T) {
	agent := &fakeAgent{task: &fakeTask{
		id: "task-f",
		snaps: []cpr.Snapshot{
			{Status: "failed", Error: "exploded"},
		},
	}}
	_, ts, _ := newTestServer(t, agent)

	resp := postJSON(t, ts.URL+"/api/v1/run-task",
		TaskRequest{Prompt: "go"}, authHeaders())
	defer resp.Body.Close()

	events := readEvents(t, resp.Body)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, cpr.EventFailed, last.Kind)
	assert.Equal(t, "exploded", last.Error)
}

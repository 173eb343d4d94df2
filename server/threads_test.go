// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cpr "github.com/Zeeeepa/CPR"
	"github.com/Zeeeepa/CPR/server/thread"
)

func TestThreadLifecycle(t *testing.T) {
	_, ts, _ := newTestServer(t, completingAgent("x"))

	resp := postJSON(t, ts.URL+"/api/v1/threads", ThreadCreateRequest{Name: "research"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[thread.Thread](t, resp)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "research", created.Name)

	resp, err := http.Get(ts.URL + "/api/v1/threads/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[thread.Thread](t, resp)
	assert.Equal(t, created.ID, got.ID)

	resp, err = http.Get(ts.URL + "/api/v1/threads")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[ThreadListResponse](t, resp)
	require.Len(t, list.Threads, 1)
	assert.Equal(t, created.ID, list.Threads[0].ID)
}

func TestThreadNotFound(t *testing.T) {
	_, ts, _ := newTestServer(t, completingAgent("x"))

	resp, err := http.Get(ts.URL + "/api/v1/threads/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessageProcessing(t *testing.T) {
	agent := completingAgent("assistant reply")
	_, ts, _ := newTestServer(t, agent)

	resp := postJSON(t, ts.URL+"/api/v1/threads", ThreadCreateRequest{}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	th := decodeBody[thread.Thread](t, resp)

	resp = postJSON(t, ts.URL+"/api/v1/threads/"+th.ID+"/messages",
		MessageCreateRequest{Content: "summarize the repo"}, authHeaders())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	msg := decodeBody[thread.Message](t, resp)
	assert.Equal(t, thread.MessagePending, msg.Status)

	// The background processor drives the message to completion.
	msgURL := ts.URL + "/api/v1/threads/" + th.ID + "/messages/" + msg.ID
	require.Eventually(t, func() bool {
		resp, err := http.Get(msgURL)
		if err != nil {
			return false
		}
		got := decodeBody[thread.Message](t, resp)
		return got.Status == thread.MessageCompleted
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(msgURL)
	require.NoError(t, err)
	final := decodeBody[thread.Message](t, resp)
	assert.Equal(t, "assistant reply", final.Response)
	assert.NotEmpty(t, final.TaskID)
	assert.NotNil(t, final.CompletedAt)
	assert.Equal(t, []string{"summarize the repo"}, agent.prompts)
}

func TestMessageProcessingFailure(t *testing.T) {
	agent := &fakeAgent{task: &fakeTask{
		id: "task-f",
		snaps: []cpr.Snapshot{
			{Status: "failed", Error: "agent crashed"},
		},
	}}
	_, ts, _ := newTestServer(t, agent)

	resp := postJSON(t, ts.URL+"/api/v1/threads", ThreadCreateRequest{}, nil)
	th := decodeBody[thread.Thread](t, resp)

	resp = postJSON(t, ts.URL+"/api/v1/threads/"+th.ID+"/messages",
		MessageCreateRequest{Content: "doomed"}, authHeaders())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	msg := decodeBody[thread.Message](t, resp)

	msgURL := ts.URL + "/api/v1/threads/" + th.ID + "/messages/" + msg.ID
	require.Eventually(t, func() bool {
		resp, err := http.Get(msgURL)
		if err != nil {
			return false
		}
		got := decodeBody[thread.Message](t, resp)
		return got.Status == thread.MessageFailed && got.Response == "agent crashed"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMessageValidation(t *testing.T) {
	_, ts, _ := newTestServer(t, completingAgent("x"))

	resp := postJSON(t, ts.URL+"/api/v1/threads", ThreadCreateRequest{}, nil)
	th := decodeBody[thread.Thread](t, resp)

	// Empty content is rejected before anything is stored.
	resp = postJSON(t, ts.URL+"/api/v1/threads/"+th.ID+"/messages",
		MessageCreateRequest{}, authHeaders())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Unknown thread.
	resp = postJSON(t, ts.URL+"/api/v1/threads/missing/messages",
		MessageCreateRequest{Content: "x"}, authHeaders())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Messages need credentials: a task will be created for them.
	resp = postJSON(t, ts.URL+"/api/v1/threads/"+th.ID+"/messages",
		MessageCreateRequest{Content: "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

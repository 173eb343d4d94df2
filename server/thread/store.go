// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

// Package thread stores conversation threads and the messages that drive
// agent tasks on their behalf.
package thread

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrThreadNotFound is returned for unknown thread IDs.
	ErrThreadNotFound = errors.New("thread: thread not found")

	// ErrMessageNotFound is returned for unknown message IDs, including a
	// message looked up under the wrong thread.
	ErrMessageNotFound = errors.New("thread: message not found")
)

// Thread is one conversation context.
type Thread struct {
	ID        string    `json:"thread_id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStatus tracks a message through its background task.
type MessageStatus string

const (
	MessagePending    MessageStatus = "pending"
	MessageProcessing MessageStatus = "processing"
	MessageCompleted  MessageStatus = "completed"
	MessageFailed     MessageStatus = "failed"
	MessageTimeout    MessageStatus = "timeout"
)

// Message is one user prompt plus the outcome of the agent task it spawned.
type Message struct {
	ID          string        `json:"message_id"`
	ThreadID    string        `json:"thread_id"`
	TaskID      string        `json:"task_id,omitempty"`
	Status      MessageStatus `json:"status"`
	Content     string        `json:"content"`
	Response    string        `json:"response,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Store persists threads and messages. Implementations must be safe for
// concurrent use; message updates come from background task goroutines.
type Store interface {
	CreateThread(ctx context.Context, name string) (*Thread, error)
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	ListThreads(ctx context.Context) ([]*Thread, error)

	CreateMessage(ctx context.Context, threadID, content string) (*Message, error)
	GetMessage(ctx context.Context, threadID, messageID string) (*Message, error)
	ListMessages(ctx context.Context, threadID string) ([]*Message, error)
	UpdateMessage(ctx context.Context, message *Message) error
}

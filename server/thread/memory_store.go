// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package thread

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of Store. Thread data is
// lost when the process stops. All operations are thread-safe using
// sync.RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]*Thread
	messages map[string]*Message
	// order preserves message insertion order per thread.
	order map[string][]string
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads:  make(map[string]*Thread),
		messages: make(map[string]*Message),
		order:    make(map[string][]string),
	}
}

// CreateThread creates a thread with a generated ID. An empty name gets a
// short default derived from the ID.
func (s *InMemoryStore) CreateThread(ctx context.Context, name string) (*Thread, error) {
	id := uuid.NewString()
	if name == "" {
		name = fmt.Sprintf("Thread %s", id[:8])
	}

	t := &Thread{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[id] = t

	return copyThread(t), nil
}

// GetThread retrieves a thread by ID.
func (s *InMemoryStore) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return nil, ErrThreadNotFound
	}
	return copyThread(t), nil
}

// ListThreads returns all threads ordered by creation time.
func (s *InMemoryStore) ListThreads(ctx context.Context) ([]*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, copyThread(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CreateMessage appends a pending message to a thread.
func (s *InMemoryStore) CreateMessage(ctx context.Context, threadID, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return nil, ErrThreadNotFound
	}

	m := &Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Status:    MessagePending,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.messages[m.ID] = m
	s.order[threadID] = append(s.order[threadID], m.ID)

	return copyMessage(m), nil
}

// GetMessage retrieves a message, checking thread membership.
func (s *InMemoryStore) GetMessage(ctx context.Context, threadID, messageID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.threads[threadID]; !ok {
		return nil, ErrThreadNotFound
	}
	m, ok := s.messages[messageID]
	if !ok || m.ThreadID != threadID {
		return nil, ErrMessageNotFound
	}
	return copyMessage(m), nil
}

// ListMessages returns a thread's messages in insertion order.
func (s *InMemoryStore) ListMessages(ctx context.Context, threadID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.threads[threadID]; !ok {
		return nil, ErrThreadNotFound
	}

	ids := s.order[threadID]
	out := make([]*Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out = append(out, copyMessage(m))
		}
	}
	return out, nil
}

// UpdateMessage overwrites a stored message's mutable fields.
func (s *InMemoryStore) UpdateMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("thread: message cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.messages[message.ID]
	if !ok || stored.ThreadID != message.ThreadID {
		return ErrMessageNotFound
	}
	s.messages[message.ID] = copyMessage(message)
	return nil
}

func copyThread(t *Thread) *Thread {
	c := *t
	return &c
}

func copyMessage(m *Message) *Message {
	c := *m
	if m.CompletedAt != nil {
		at := *m.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

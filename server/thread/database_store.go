// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package thread

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ThreadModel is the GORM persistence model for threads.
type ThreadModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName implements the GORM table-name convention.
func (ThreadModel) TableName() string { return "threads" }

// MessageModel is the GORM persistence model for messages.
type MessageModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	ThreadID    string `gorm:"index;size:64"`
	TaskID      string `gorm:"size:64"`
	Status      string `gorm:"size:32"`
	Content     string
	Response    string
	CreatedAt   time.Time `gorm:"index"`
	CompletedAt *time.Time
}

// TableName implements the GORM table-name convention.
func (MessageModel) TableName() string { return "messages" }

// DatabaseStore is a database implementation of Store using GORM. The
// *gorm.DB is injected so the caller chooses the driver.
type DatabaseStore struct {
	db *gorm.DB
}

var _ Store = (*DatabaseStore)(nil)

// DatabaseStoreConfig holds configuration for DatabaseStore.
type DatabaseStoreConfig struct {
	DB *gorm.DB

	// Migrate creates the thread and message tables if absent.
	Migrate bool
}

// NewDatabaseStore creates a new DatabaseStore.
func NewDatabaseStore(config DatabaseStoreConfig) (*DatabaseStore, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("thread: database connection cannot be nil")
	}
	if config.Migrate {
		if err := config.DB.AutoMigrate(&ThreadModel{}, &MessageModel{}); err != nil {
			return nil, fmt.Errorf("thread: migrate: %w", err)
		}
	}
	return &DatabaseStore{db: config.DB}, nil
}

// CreateThread persists a new thread.
func (s *DatabaseStore) CreateThread(ctx context.Context, name string) (*Thread, error) {
	id := uuid.NewString()
	if name == "" {
		name = fmt.Sprintf("Thread %s", id[:8])
	}

	model := ThreadModel{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("thread: create thread: %w", err)
	}
	return threadFromModel(model), nil
}

// GetThread retrieves a thread by ID.
func (s *DatabaseStore) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	var model ThreadModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", threadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("thread: get thread: %w", err)
	}
	return threadFromModel(model), nil
}

// ListThreads returns all threads ordered by creation time.
func (s *DatabaseStore) ListThreads(ctx context.Context) ([]*Thread, error) {
	var models []ThreadModel
	if err := s.db.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("thread: list threads: %w", err)
	}

	out := make([]*Thread, 0, len(models))
	for _, m := range models {
		out = append(out, threadFromModel(m))
	}
	return out, nil
}

// CreateMessage appends a pending message to a thread.
func (s *DatabaseStore) CreateMessage(ctx context.Context, threadID, content string) (*Message, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}

	model := MessageModel{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Status:    string(MessagePending),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("thread: create message: %w", err)
	}
	return messageFromModel(model), nil
}

// GetMessage retrieves a message, checking thread membership.
func (s *DatabaseStore) GetMessage(ctx context.Context, threadID, messageID string) (*Message, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}

	var model MessageModel
	err := s.db.WithContext(ctx).
		First(&model, "id = ? AND thread_id = ?", messageID, threadID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("thread: get message: %w", err)
	}
	return messageFromModel(model), nil
}

// ListMessages returns a thread's messages in creation order.
func (s *DatabaseStore) ListMessages(ctx context.Context, threadID string) ([]*Message, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}

	var models []MessageModel
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("thread: list messages: %w", err)
	}

	out := make([]*Message, 0, len(models))
	for _, m := range models {
		out = append(out, messageFromModel(m))
	}
	return out, nil
}

// UpdateMessage overwrites a stored message's mutable fields.
func (s *DatabaseStore) UpdateMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("thread: message cannot be nil")
	}

	result := s.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND thread_id = ?", message.ID, message.ThreadID).
		Updates(map[string]any{
			"task_id":      message.TaskID,
			"status":       string(message.Status),
			"response":     message.Response,
			"completed_at": message.CompletedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("thread: update message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func threadFromModel(m ThreadModel) *Thread {
	return &Thread{
		ID:        m.ID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
	}
}

func messageFromModel(m MessageModel) *Message {
	return &Message{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		TaskID:      m.TaskID,
		Status:      MessageStatus(m.Status),
		Content:     m.Content,
		Response:    m.Response,
		CreatedAt:   m.CreatedAt,
		CompletedAt: m.CompletedAt,
	}
}

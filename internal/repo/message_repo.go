// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

// CreateMessage inserts a new message row with a server timestamp.
func CreateMessage(ctx context.Context, db *gorm.DB, threadID, senderID, recipientID, text string) (*domain.Message, error) {
	now := time.Now().UTC()
	m := &domain.Message{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// CountThreadMessages uses a raw COUNT so a missing table surfaces as an error.
func CountThreadMessages(ctx context.Context, db *gorm.DB, threadID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE thread_id = ?", threadID).
		Scan(&total).Error
	return total, err
}

// ListThreadMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListThreadMessagesPage(ctx context.Context, db *gorm.DB, threadID string, offset, limit int) ([]domain.Message, error) {
	out := []domain.Message{}
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// pairScope restricts messages to those exchanged between a and b in either
// direction.
func pairScope(a, b string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", a, b, b, a)
	}
}

// CountConversation counts messages between the unordered pair (a, b).
func CountConversation(ctx context.Context, db *gorm.DB, a, b string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Scopes(pairScope(a, b)).
		Count(&total).Error
	return total, err
}

// ListConversationPage returns a page of the pair's messages across all jobs,
// ordered (CreatedAt ASC, ID ASC).
func ListConversationPage(ctx context.Context, db *gorm.DB, a, b string, offset, limit int) ([]domain.Message, error) {
	out := []domain.Message{}
	err := db.WithContext(ctx).
		Scopes(pairScope(a, b)).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

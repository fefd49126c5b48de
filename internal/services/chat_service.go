// Package services – ChatService
//
// This file implements the Chat Session Router. Messages belong to a job's
// thread and may only be exchanged between the job's customer and the
// provider whose bid was accepted. Reads are served per thread from an
// indexed partition, never by scanning every message.
//
// The legacy pair view (Conversation) is kept: it returns every message
// between two users across all their jobs, filtered in the query.
package services

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/repo"
)

// whitespaceRE matches runs of whitespace in job titles.
var whitespaceRE = regexp.MustCompile(`\s+`)

// SessionKey derives the deterministic chat session key for a
// (customer, provider, job title) triple. Whitespace runs in the title become
// a single underscore.
func SessionKey(customerID, providerID, jobTitle string) string {
	return customerID + "_" + providerID + "_" + whitespaceRE.ReplaceAllString(jobTitle, "_")
}

// Pair is an unordered pair of user IDs.
type Pair struct {
	A, B string
}

// Includes reports whether m was exchanged between the pair, in either
// direction.
func (p Pair) Includes(m domain.Message) bool {
	return (m.SenderID == p.A && m.RecipientID == p.B) ||
		(m.SenderID == p.B && m.RecipientID == p.A)
}

// ChatService provides job-scoped messaging.
type ChatService struct {
	DB     *gorm.DB
	Events Publisher

	// MaxRunes caps message length.
	MaxRunes int
}

// NewChatService constructs a ChatService with a 2000-rune message cap.
func NewChatService(db *gorm.DB, pub Publisher) *ChatService {
	return &ChatService{DB: db, Events: pub, MaxRunes: 2000}
}

// Send appends text to the job's thread from the session user to the other
// participant. Blank text is rejected before any store access.
func (s *ChatService) Send(ctx context.Context, sess Session, jobID, text string) (*domain.Message, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("user.id", sess.UserID),
		),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "is required")
	}
	if s.MaxRunes > 0 && utf8.RuneCountInString(text) > s.MaxRunes {
		return nil, invalid("text", "is too long")
	}

	db := s.DB.WithContext(ctx)
	job, bid, role, err := participants(ctx, db, sess.UserID, jobID)
	if err != nil {
		return nil, readFailed("chat participants", err)
	}
	recipient := bid.ProviderID
	if role == domain.RoleProvider {
		recipient = job.CustomerID
	}

	m, err := repo.CreateMessage(ctx, db, job.ID, sess.UserID, recipient, text)
	if err != nil {
		return nil, writeFailed("create message", err)
	}
	publish(s.Events, events.Event{
		Topic:    events.TopicMessageCreated,
		Change:   events.Added,
		Key:      m.ID,
		Data:     m,
		Audience: []string{m.SenderID, m.RecipientID},
	})
	return m, nil
}

// Thread returns a page of the job's messages in ascending time order.
func (s *ChatService) Thread(ctx context.Context, sess Session, jobID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Thread",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	db := s.DB.WithContext(ctx)
	if _, _, _, err := participants(ctx, db, sess.UserID, jobID); err != nil {
		return nil, 0, readFailed("chat participants", err)
	}
	offset, pageSize := pageBounds(page, pageSize)

	total, err := repo.CountThreadMessages(ctx, db, jobID)
	if err != nil {
		return nil, 0, readFailed("count messages", err)
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListThreadMessagesPage(ctx, db, jobID, offset, pageSize)
	if err != nil {
		return nil, 0, readFailed("list messages", err)
	}
	return items, total, nil
}

// Conversation returns a page of every message between the session user and
// peerID across all jobs, in ascending time order.
func (s *ChatService) Conversation(ctx context.Context, sess Session, peerID string, page, pageSize int) ([]domain.Message, int64, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" || peerID == sess.UserID {
		return nil, 0, invalid("peer", "must be another user")
	}
	offset, pageSize := pageBounds(page, pageSize)

	db := s.DB.WithContext(ctx)
	total, err := repo.CountConversation(ctx, db, sess.UserID, peerID)
	if err != nil {
		return nil, 0, readFailed("count conversation", err)
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListConversationPage(ctx, db, sess.UserID, peerID, offset, pageSize)
	if err != nil {
		return nil, 0, readFailed("list conversation", err)
	}
	return items, total, nil
}

// pageBounds applies defaults for invalid page/pageSize and returns the
// offset and effective page size.
func pageBounds(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}

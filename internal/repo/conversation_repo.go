// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the dual-row
// Conversation model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// ConversationKey returns the shared conversation id for two users: the
// sorted ids joined by "-".
func ConversationKey(x, y string) string {
	a, b := CanonicalPair(x, y)
	return a + "-" + b
}

// GetConversationForOwner returns the row owned by userID for conversationID.
func GetConversationForOwner(ctx context.Context, db *gorm.DB, conversationID, userID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationRows returns every participant row of conversationID.
func ListConversationRows(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("user_id ASC").
		Find(&out).Error
	return out, err
}

// CreateConversationPair inserts both participant rows for the pair. Use it
// inside a transaction; a concurrent duplicate surfaces as ErrDuplicate.
func CreateConversationPair(ctx context.Context, db *gorm.DB, x, y string) (string, error) {
	key := ConversationKey(x, y)
	now := Now()
	rows := []domain.Conversation{
		{ID: uuid.NewString(), ConversationID: key, UserID: x, OtherUserID: y, LastMessageTime: now, CreatedAt: now},
		{ID: uuid.NewString(), ConversationID: key, UserID: y, OtherUserID: x, LastMessageTime: now, CreatedAt: now},
	}
	if err := createUnique(db.WithContext(ctx), &rows); err != nil {
		return "", err
	}
	return key, nil
}

// SetConversationLastMessage points every row of conversationID at the
// message and sets the unread flag on rows not owned by sender.
func SetConversationLastMessage(ctx context.Context, db *gorm.DB, conversationID, messageID, sender string, at time.Time) error {
	tx := db.WithContext(ctx).Model(&domain.Conversation{}).Where("conversation_id = ?", conversationID)
	return tx.Updates(map[string]any{
		"last_message_id":     messageID,
		"last_message_time":   at,
		"has_unread_messages": gorm.Expr("CASE WHEN user_id = ? THEN ? ELSE ? END", sender, false, true),
	}).Error
}

// RelinkLastMessage replaces the cached last message on every row that
// currently points at oldID. A nil replacement clears the pointer and keeps
// the previous time.
func RelinkLastMessage(ctx context.Context, db *gorm.DB, oldID string, next *domain.Message) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{}).Where("last_message_id = ?", oldID)
	var res *gorm.DB
	if next == nil {
		res = q.Update("last_message_id", nil)
	} else {
		res = q.Updates(map[string]any{"last_message_id": next.ID, "last_message_time": next.CreatedAt})
	}
	return res.RowsAffected, res.Error
}

// MarkConversationRead clears the unread flag on the caller's row.
func MarkConversationRead(ctx context.Context, db *gorm.DB, conversationID, userID string) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("has_unread_messages", false).Error
}

// DeleteConversationRows removes both participant rows of conversationID.
func DeleteConversationRows(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	res := db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&domain.Conversation{})
	return res.RowsAffected, res.Error
}

// ListConversationsPage returns the caller's rows newest-activity first,
// keyset-paged on (last_message_time, id).
func ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, cursor *pagination.Key, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	err := after(q, "last_message_time", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// HasUnreadConversations reports whether any of userID's rows are unread.
func HasUnreadConversations(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("user_id = ? AND has_unread_messages = ?", userID, true).
		Count(&n).Error
	return n > 0, err
}

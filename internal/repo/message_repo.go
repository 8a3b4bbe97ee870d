// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// threadScope restricts q to messages of t.
func threadScope(q *gorm.DB, t domain.Thread) *gorm.DB {
	if t.Kind() == domain.ThreadGroup {
		return q.Where("group_id = ?", t.ID())
	}
	return q.Where("conversation_id = ?", t.ID())
}

// CreateMessage inserts m, which must already be pointed at a thread.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.Thread().IsZero() {
		return domain.ErrThreadTarget
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = Now()
	}
	return db.WithContext(ctx).Create(m).Error
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessages loads messages by id, keyed by id.
func GetMessages(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Message, error) {
	out := make(map[string]domain.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Message
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.ID] = m
	}
	return out, nil
}

// DeleteMessage removes a single message row.
func DeleteMessage(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteThreadMessages removes every message of t and returns the count.
func DeleteThreadMessages(ctx context.Context, db *gorm.DB, t domain.Thread) (int64, error) {
	res := threadScope(db.WithContext(ctx), t).Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}

// LatestMessage returns the newest message of t, or (nil, nil) when the
// thread is empty.
func LatestMessage(ctx context.Context, db *gorm.DB, t domain.Thread) (*domain.Message, error) {
	var m domain.Message
	err := after(threadScope(db.WithContext(ctx), t), "created_at", nil).First(&m).Error
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListThreadMessages returns messages of t newest first, keyset-paged on
// (created_at, id).
func ListThreadMessages(ctx context.Context, db *gorm.DB, t domain.Thread, cursor *pagination.Key, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := after(threadScope(db.WithContext(ctx), t), "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// CountMessagesSince counts messages of a group created after since and not
// sent by exclude. A nil since counts the whole thread.
func CountMessagesSince(ctx context.Context, db *gorm.DB, t domain.Thread, since *time.Time, exclude string) (int64, error) {
	q := threadScope(db.WithContext(ctx).Model(&domain.Message{}), t)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	if exclude != "" {
		q = q.Where("sender_id <> ?", exclude)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// UpdateCorrection stores a correction on a message.
func UpdateCorrection(ctx context.Context, db *gorm.DB, id, correction string) error {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Update("correction", correction).Error
}

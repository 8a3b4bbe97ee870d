// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
)

// ConversationsStats returns the number of conversation rows owned by
// userID, the newest last_message_time among them, and how many are unread.
// When the user has no conversations, latest is nil.
func ConversationsStats(ctx context.Context, db *gorm.DB, userID string) (count, unread int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{}).Where("user_id = ?", userID)

	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}
	if err = q.Session(&gorm.Session{}).Where("has_unread_messages = ?", true).Count(&unread).Error; err != nil {
		return 0, 0, nil, err
	}

	// Latest timestamp via ORDER BY/LIMIT (avoid MAX() -> TEXT in SQLite)
	var row struct {
		LastMessageTime time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("last_message_time").Order("last_message_time DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, unread, &row.LastMessageTime, nil
}

// NotificationsStats returns the total and unread notification counts for
// recipient along with the newest created_at, or nil when there are none.
func NotificationsStats(ctx context.Context, db *gorm.DB, recipient string) (count, unread int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Notification{}).Where("recipient_id = ?", recipient)

	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}
	if err = q.Session(&gorm.Session{}).Where("has_unread = ?", true).Count(&unread).Error; err != nil {
		return 0, 0, nil, err
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, unread, &row.CreatedAt, nil
}

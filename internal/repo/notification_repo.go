package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
)

// CreateNotification appends an unread notification.
func CreateNotification(ctx context.Context, db *gorm.DB, recipient, sender, typ string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipient,
		SenderID:    sender,
		Type:        typ,
		HasUnread:   true,
		CreatedAt:   Now(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotifications returns recipient's notifications newest first.
func ListNotifications(ctx context.Context, db *gorm.DB, recipient string, cursor *pagination.Key, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	q := db.WithContext(ctx).Where("recipient_id = ?", recipient)
	err := after(q, "created_at", cursor).Limit(limit).Find(&out).Error
	return out, err
}

// MarkNotificationsRead clears the unread flag on all of recipient's rows
// and returns how many changed.
func MarkNotificationsRead(ctx context.Context, db *gorm.DB, recipient string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND has_unread = ?", recipient, true).
		Update("has_unread", false)
	return res.RowsAffected, res.Error
}

// CountUnreadNotifications counts recipient's unread notifications.
func CountUnreadNotifications(ctx context.Context, db *gorm.DB, recipient string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("recipient_id = ? AND has_unread = ?", recipient, true).
		Count(&n).Error
	return n, err
}

// Package services – notifications
//
// Notifier is the append-only sink every social mutation writes to. It runs
// on the mutation's transaction handle so a notification exists if and only
// if the action that caused it committed. NotificationService is the read
// side exposed to the recipient.
package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/locale"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
	"github.com/tbourn/worldfriends-backend/internal/realtime"
	"github.com/tbourn/worldfriends-backend/internal/repo"
)

// Notifier writes notification rows.
type Notifier struct{}

// Notify appends a notification for recipient on tx. Notifications to
// nobody or to the acting user are skipped and report created=false.
func (Notifier) Notify(ctx context.Context, tx *gorm.DB, recipient, sender, typ string) (created bool, err error) {
	if recipient == "" || recipient == sender {
		return false, nil
	}
	if _, err := repo.CreateNotification(ctx, tx, recipient, sender, typ); err != nil {
		return false, err
	}
	return true, nil
}

// NotificationView is one entry of the caller's activity list.
type NotificationView struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Sender       UserSummary `json:"sender"`
	HasUnread    bool        `json:"has_unread"`
	CreatedAt    time.Time   `json:"created_at"`
	RelativeTime string      `json:"relative_time"`
}

// NotificationService exposes the caller's notifications.
type NotificationService struct {
	Deps
}

// List returns the caller's notifications newest first.
func (s *NotificationService) List(ctx context.Context, caller, loc string, req pagination.PageRequest) (pagination.Page[NotificationView], error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "List", trace.WithAttributes(attribute.String("user.id", caller)))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[NotificationView](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[NotificationView]{}, err
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListNotifications(ctx, s.DB, caller, cursor, limit+1)
	if err != nil {
		return pagination.Page[NotificationView]{}, err
	}
	page := pagination.Build(rows, limit, func(n domain.Notification) pagination.Key {
		return pagination.Key{Time: n.CreatedAt, ID: n.ID}
	})

	f := locale.For(loc)
	senders := make([]string, 0, len(page.Page))
	for _, n := range page.Page {
		senders = append(senders, n.SenderID)
	}
	users, err := s.users(ctx, s.DB, senders, f)
	if err != nil {
		return pagination.Page[NotificationView]{}, err
	}
	now := repo.Now()
	return pagination.Map(page, func(n domain.Notification) NotificationView {
		return NotificationView{
			ID:           n.ID,
			Type:         n.Type,
			Sender:       users[n.SenderID],
			HasUnread:    n.HasUnread,
			CreatedAt:    n.CreatedAt,
			RelativeTime: f.RelativeTime(n.CreatedAt, now),
		}
	}), nil
}

// MarkAllRead clears the unread flag on every notification of the caller.
func (s *NotificationService) MarkAllRead(ctx context.Context, caller string) (n int64, err error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkAllRead", trace.WithAttributes(attribute.String("user.id", caller)))
	defer func() { finish(span, "notifications.mark_read", err) }()

	if err = requireCaller(caller); err != nil {
		return 0, err
	}
	n, err = repo.MarkNotificationsRead(ctx, s.DB, caller)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		fx := &effects{}
		fx.emit(realtime.EventNotification, "", "read", caller)
		s.flush(ctx, fx)
	}
	return n, nil
}

// UnreadCount returns how many of the caller's notifications are unread.
// Without a caller it reports zero.
func (s *NotificationService) UnreadCount(ctx context.Context, caller string) (int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "UnreadCount", trace.WithAttributes(attribute.String("user.id", caller)))
	defer span.End()

	if requireCaller(caller) != nil {
		return 0, nil
	}
	return repo.CountUnreadNotifications(ctx, s.DB, caller)
}

// ETag returns a weak validator over the caller's notification list.
func (s *NotificationService) ETag(ctx context.Context, caller string) (string, error) {
	count, unread, latest, err := repo.NotificationsStats(ctx, s.DB, caller)
	if err != nil {
		return "", err
	}
	var ts int64
	if latest != nil {
		ts = latest.UnixMicro()
	}
	return fmt.Sprintf(`W/"notifications:%s:%d:%d:%d"`, caller, count, unread, ts), nil
}

package services

import (
	"context"
	"errors"
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

// ConversationView is one entry of the caller's inbox.
type ConversationView struct {
	ConversationID    string       `json:"conversation_id"`
	CreatedAt         time.Time    `json:"created_at"`
	LastMessageTime   time.Time    `json:"last_message_time"`
	RelativeTime      string       `json:"relative_time"`
	HasUnreadMessages bool         `json:"has_unread_messages"`
	LastMessage       *LastMessage `json:"last_message,omitempty"`
	OtherUser         UserSummary  `json:"other_user"`
}

// LastMessage is the inbox snippet of a conversation's newest message.
type LastMessage struct {
	MessagePreview
	IsOwner bool `json:"is_owner"`
}

// ConversationInfo is the header of a direct conversation.
type ConversationInfo struct {
	ConversationID string      `json:"conversation_id"`
	OtherUser      UserSummary `json:"other_user"`
}

// ConversationService manages the dual-row direct conversations.
type ConversationService struct {
	Deps
}

// CreateConversation opens a conversation between caller and a friend and
// returns its shared id. An existing conversation is returned as is.
func (s *ConversationService) CreateConversation(ctx context.Context, caller, other string) (id string, err error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "CreateConversation", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("other.id", other),
	))
	defer func() { finish(span, "conversation.create", err) }()

	if err = requireCaller(caller); err != nil {
		return "", err
	}
	if caller == other {
		return "", ErrSelfTarget
	}
	key := repo.ConversationKey(caller, other)
	fx := &effects{}
	err = s.tx(ctx, fx, func(tx *gorm.DB) error {
		if _, err := repo.GetConversationForOwner(ctx, tx, key, caller); err == nil {
			return nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		friends, err := repo.AreFriends(ctx, tx, caller, other)
		if err != nil {
			return err
		}
		if !friends {
			return ErrNotFriends
		}
		if _, err := repo.CreateConversationPair(ctx, tx, caller, other); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			return err
		}
		fx.emit(realtime.EventConversation, domain.DirectThread(key).Key(), key, caller, other)
		return nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// DeleteConversation removes the conversation for both participants along
// with its messages and tells the other participant.
func (s *ConversationService) DeleteConversation(ctx context.Context, caller, conversationID string) (err error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "DeleteConversation", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("conversation.id", conversationID),
	))
	defer func() { finish(span, "conversation.delete", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		row, err := repo.GetConversationForOwner(ctx, tx, conversationID, caller)
		if err != nil {
			return mapNotFound(err, ErrNotParticipant)
		}
		th := domain.DirectThread(conversationID)
		if _, err := repo.DeleteThreadMessages(ctx, tx, th); err != nil {
			return err
		}
		if _, err := repo.DeleteConversationRows(ctx, tx, conversationID); err != nil {
			return err
		}
		fx.emit(realtime.EventConversation, th.Key(), conversationID, caller, row.OtherUserID)
		return s.notify(ctx, tx, fx, row.OtherUserID, caller, domain.NotifyConversationDeleted)
	})
}

// ListConversations returns the caller's inbox ordered by latest activity.
func (s *ConversationService) ListConversations(ctx context.Context, caller, loc string, req pagination.PageRequest) (pagination.Page[ConversationView], error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListConversations", trace.WithAttributes(attribute.String("user.id", caller)))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[ConversationView](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[ConversationView]{}, err
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListConversationsPage(ctx, s.DB, caller, cursor, limit+1)
	if err != nil {
		return pagination.Page[ConversationView]{}, err
	}
	page := pagination.Build(rows, limit, func(c domain.Conversation) pagination.Key {
		return pagination.Key{Time: c.LastMessageTime, ID: c.ID}
	})

	others := make([]string, 0, len(page.Page))
	lastIDs := make([]string, 0, len(page.Page))
	for _, c := range page.Page {
		others = append(others, c.OtherUserID)
		if c.LastMessageID != nil {
			lastIDs = append(lastIDs, *c.LastMessageID)
		}
	}
	f := locale.For(loc)
	users, err := s.users(ctx, s.DB, others, f)
	if err != nil {
		return pagination.Page[ConversationView]{}, err
	}
	last, err := previews(ctx, s.DB, lastIDs)
	if err != nil {
		return pagination.Page[ConversationView]{}, err
	}

	now := repo.Now()
	out := make([]ConversationView, 0, len(page.Page))
	for _, c := range page.Page {
		u, ok := users[c.OtherUserID]
		if !ok {
			continue
		}
		v := ConversationView{
			ConversationID:    c.ConversationID,
			CreatedAt:         c.CreatedAt,
			LastMessageTime:   c.LastMessageTime,
			RelativeTime:      f.RelativeTime(c.LastMessageTime, now),
			HasUnreadMessages: c.HasUnreadMessages,
			OtherUser:         u,
		}
		if c.LastMessageID != nil {
			if p, ok := last[*c.LastMessageID]; ok {
				v.LastMessage = &LastMessage{MessagePreview: p, IsOwner: p.SenderID == caller}
			}
		}
		out = append(out, v)
	}
	return pagination.Page[ConversationView]{Page: out, IsDone: page.IsDone, ContinueCursor: page.ContinueCursor}, nil
}

// ConversationInfo returns the header of a conversation the caller owns.
func (s *ConversationService) ConversationInfo(ctx context.Context, caller, conversationID, loc string) (*ConversationInfo, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ConversationInfo", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	row, err := repo.GetConversationForOwner(ctx, s.DB, conversationID, caller)
	if err != nil {
		return nil, mapNotFound(err, ErrNotParticipant)
	}
	u, err := repo.GetUser(ctx, s.DB, row.OtherUserID)
	if err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	return &ConversationInfo{ConversationID: conversationID, OtherUser: s.summary(*u, locale.For(loc))}, nil
}

// HasUnreadConversations reports whether any of the caller's conversations
// holds an unread message. Without a caller it reports false.
func (s *ConversationService) HasUnreadConversations(ctx context.Context, caller string) (bool, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "HasUnreadConversations", trace.WithAttributes(attribute.String("user.id", caller)))
	defer span.End()

	if requireCaller(caller) != nil {
		return false, nil
	}
	return repo.HasUnreadConversations(ctx, s.DB, caller)
}

// InboxETag returns a weak validator for the caller's inbox. It changes
// whenever a conversation is opened, deleted, read or receives a message.
func (s *ConversationService) InboxETag(ctx context.Context, caller string) (string, error) {
	count, unread, latest, err := repo.ConversationsStats(ctx, s.DB, caller)
	if err != nil {
		return "", err
	}
	var ts int64
	if latest != nil {
		ts = latest.UnixMicro()
	}
	return fmt.Sprintf(`W/"inbox:%s:%d:%d:%d"`, caller, count, unread, ts), nil
}

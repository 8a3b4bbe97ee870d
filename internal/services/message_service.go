// Package services – MessageService
//
// This file implements MessageService, which owns the lifecycle of messages
// in both kinds of thread: direct conversations and groups. It validates
// message content by type, checks that the caller participates in the
// thread, keeps the conversation "last message" cache and unread flags in
// step with inserts and deletes, and renders message pages.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include thread and user identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
	"github.com/tbourn/worldfriends-backend/internal/realtime"
	"github.com/tbourn/worldfriends-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SendMessageInput describes a new message.
type SendMessageInput struct {
	Thread        domain.Thread
	Type          string
	Content       string
	Attachment    string
	ReplyParentID string
}

// MessageView is a message rendered for a thread page.
type MessageView struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	GroupID        string          `json:"group_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Content        string          `json:"content"`
	Type           string          `json:"type"`
	AttachmentURL  string          `json:"attachment_url,omitempty"`
	IsOwner        bool            `json:"is_owner"`
	ReplyParentID  string          `json:"reply_parent_id,omitempty"`
	ReplyParent    *MessagePreview `json:"reply_parent,omitempty"`
	Correction     string          `json:"correction,omitempty"`
	Sender         MessageSender   `json:"sender"`
}

// MessageSender identifies the author of a message.
type MessageSender struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture"`
}

// MessageService sends, corrects, deletes and lists thread messages.
type MessageService struct {
	Deps

	// MaxContentRunes caps message text. Zero disables the check.
	MaxContentRunes int
}

// SendMessage appends a message to in.Thread.
func (s *MessageService) SendMessage(ctx context.Context, caller string, in SendMessageInput) (m *domain.Message, err error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "SendMessage", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("thread", in.Thread.Key()),
		attribute.String("message.type", in.Type),
	))
	defer func() { finish(span, "message.send", err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if in.Thread.IsZero() {
		return nil, ErrThreadTarget
	}
	content := strings.TrimSpace(in.Content)
	switch in.Type {
	case domain.MessageText:
		if content == "" {
			return nil, ErrEmptyContent
		}
	case domain.MessageImage, domain.MessageGIF:
		if strings.TrimSpace(in.Attachment) == "" {
			return nil, ErrAttachmentRequired
		}
	default:
		return nil, ErrMessageType
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, newError(ErrInvalidArgument, "message content is too long")
	}

	fx := &effects{}
	err = s.tx(ctx, fx, func(tx *gorm.DB) error {
		members, err := s.participants(ctx, tx, caller, in.Thread)
		if err != nil {
			return err
		}
		msg := &domain.Message{
			SenderID:   caller,
			Type:       in.Type,
			Content:    content,
			Attachment: strings.TrimSpace(in.Attachment),
		}
		msg.SetThread(in.Thread)
		if in.ReplyParentID != "" {
			parent, err := repo.GetMessage(ctx, tx, in.ReplyParentID)
			if err != nil {
				return mapNotFound(err, ErrReplyParentNotFound)
			}
			if parent.Thread() != in.Thread {
				return ErrCrossThreadReply
			}
			msg.ReplyParentID = &parent.ID
		}
		if err := repo.CreateMessage(ctx, tx, msg); err != nil {
			return err
		}
		if in.Thread.Kind() == domain.ThreadDirect {
			if err := repo.SetConversationLastMessage(ctx, tx, in.Thread.ID(), msg.ID, caller, msg.CreatedAt); err != nil {
				return err
			}
		}
		fx.emit(realtime.EventMessage, in.Thread.Key(), msg.ID, members...)
		m = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMessage removes one of the caller's messages. Conversation rows
// that cached it as their last message are pointed at the new latest
// message of the thread.
func (s *MessageService) DeleteMessage(ctx context.Context, caller, messageID string) (err error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "DeleteMessage", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("message.id", messageID),
	))
	defer func() { finish(span, "message.delete", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			return mapNotFound(err, ErrMessageNotFound)
		}
		if msg.SenderID != caller {
			return ErrNotSender
		}
		if err := repo.DeleteMessage(ctx, tx, msg.ID); err != nil {
			return mapNotFound(err, ErrMessageNotFound)
		}
		th := msg.Thread()
		if th.Kind() == domain.ThreadDirect {
			next, err := repo.LatestMessage(ctx, tx, th)
			if err != nil {
				return err
			}
			if _, err := repo.RelinkLastMessage(ctx, tx, msg.ID, next); err != nil {
				return err
			}
		}
		members, err := s.threadMembers(ctx, tx, th)
		if err != nil {
			return err
		}
		if msg.Type == domain.MessageImage {
			fx.deleteBlob(msg.Attachment)
		}
		fx.emit(realtime.EventMessage, th.Key(), msg.ID, members...)
		return nil
	})
}

// CorrectMessage attaches a correction to another participant's text
// message.
func (s *MessageService) CorrectMessage(ctx context.Context, caller, messageID, correction string) (err error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "CorrectMessage", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("message.id", messageID),
	))
	defer func() { finish(span, "message.correct", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	correction = strings.TrimSpace(correction)
	if correction == "" {
		return ErrEmptyContent
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			return mapNotFound(err, ErrMessageNotFound)
		}
		if msg.Type != domain.MessageText {
			return ErrCorrectNonText
		}
		members, err := s.participants(ctx, tx, caller, msg.Thread())
		if err != nil {
			return err
		}
		if msg.SenderID == caller {
			return ErrCorrectOwn
		}
		if err := repo.UpdateCorrection(ctx, tx, msg.ID, correction); err != nil {
			return err
		}
		fx.emit(realtime.EventMessage, msg.Thread().Key(), msg.ID, members...)
		return nil
	})
}

// MarkRead clears the caller's unread state for t: the unread flag of a
// direct conversation, or the read marker of a group membership.
func (s *MessageService) MarkRead(ctx context.Context, caller string, t domain.Thread) (err error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "MarkRead", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("thread", t.Key()),
	))
	defer func() { finish(span, "thread.mark_read", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	if t.IsZero() {
		return ErrThreadTarget
	}
	if _, err = s.participants(ctx, s.DB, caller, t); err != nil {
		return err
	}
	if t.Kind() == domain.ThreadDirect {
		err = repo.MarkConversationRead(ctx, s.DB, t.ID(), caller)
	} else {
		err = repo.SetLastReadAt(ctx, s.DB, t.ID(), caller, repo.Now())
	}
	if err != nil {
		return err
	}
	fx := &effects{}
	fx.emit(realtime.EventConversation, t.Key(), t.ID(), caller)
	s.flush(ctx, fx)
	return nil
}

// Messages returns a page of t's messages, newest first.
func (s *MessageService) Messages(ctx context.Context, caller string, t domain.Thread, req pagination.PageRequest) (pagination.Page[MessageView], error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Messages", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("thread", t.Key()),
		attribute.Int("page.num_items", req.NumItems),
	))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[MessageView](), nil
	}
	if t.IsZero() {
		return pagination.Page[MessageView]{}, ErrThreadTarget
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[MessageView]{}, err
	}
	if _, err := s.participants(ctx, s.DB, caller, t); err != nil {
		return pagination.Page[MessageView]{}, err
	}

	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListThreadMessages(ctx, s.DB, t, cursor, limit+1)
	if err != nil {
		return pagination.Page[MessageView]{}, err
	}
	page := pagination.Build(rows, limit, func(m domain.Message) pagination.Key {
		return pagination.Key{Time: m.CreatedAt, ID: m.ID}
	})

	senders := make([]string, 0, len(page.Page))
	parents := make([]string, 0)
	for _, m := range page.Page {
		senders = append(senders, m.SenderID)
		if m.ReplyParentID != nil {
			parents = append(parents, *m.ReplyParentID)
		}
	}
	users, err := repo.GetUsers(ctx, s.DB, unique(senders))
	if err != nil {
		return pagination.Page[MessageView]{}, err
	}
	replies, err := previews(ctx, s.DB, parents)
	if err != nil {
		return pagination.Page[MessageView]{}, err
	}

	out := make([]MessageView, 0, len(page.Page))
	for _, m := range page.Page {
		u, ok := users[m.SenderID]
		if !ok {
			continue
		}
		v := MessageView{
			ID:            m.ID,
			CreatedAt:     m.CreatedAt,
			Content:       m.Content,
			Type:          m.Type,
			AttachmentURL: s.attachmentURL(m.Type, m.Attachment),
			IsOwner:       m.SenderID == caller,
			Correction:    m.Correction,
			Sender: MessageSender{
				ID:             u.ID,
				Name:           u.Name,
				ProfilePicture: s.publicURL(u.ProfilePicture),
			},
		}
		if m.ConversationID != nil {
			v.ConversationID = *m.ConversationID
		}
		if m.GroupID != nil {
			v.GroupID = *m.GroupID
		}
		if m.ReplyParentID != nil {
			v.ReplyParentID = *m.ReplyParentID
			if p, ok := replies[*m.ReplyParentID]; ok {
				v.ReplyParent = &p
			}
		}
		out = append(out, v)
	}
	return pagination.Page[MessageView]{Page: out, IsDone: page.IsDone, ContinueCursor: page.ContinueCursor}, nil
}

// attachmentURL resolves image keys through blob storage; gif URLs are
// external and returned as stored.
func (s *MessageService) attachmentURL(typ, attachment string) string {
	switch {
	case attachment == "":
		return ""
	case typ == domain.MessageImage:
		return s.publicURL(attachment)
	default:
		return attachment
	}
}

// participants verifies caller takes part in t and returns every user who
// should hear about changes to it.
func (s *MessageService) participants(ctx context.Context, db *gorm.DB, caller string, t domain.Thread) ([]string, error) {
	if t.Kind() == domain.ThreadDirect {
		row, err := repo.GetConversationForOwner(ctx, db, t.ID(), caller)
		if err != nil {
			return nil, mapNotFound(err, ErrNotParticipant)
		}
		return []string{caller, row.OtherUserID}, nil
	}
	if _, err := repo.GetMembership(ctx, db, t.ID(), caller); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, err
	}
	return repo.GroupMemberIDs(ctx, db, t.ID())
}

// threadMembers returns every user of t without an access check.
func (s *MessageService) threadMembers(ctx context.Context, db *gorm.DB, t domain.Thread) ([]string, error) {
	if t.Kind() == domain.ThreadGroup {
		return repo.GroupMemberIDs(ctx, db, t.ID())
	}
	rows, err := repo.ListConversationRows(ctx, db, t.ID())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.UserID)
	}
	return out, nil
}

// Package services – InteractionService
//
// This file implements reactions and comments on posts. Both are gated the
// same way as post visibility (author, friend or trusted author) and both
// keep the post counters in step inside the same transaction.
//
// Reaction semantics per (user, post):
//   - no reaction yet: insert, reactionsCount+1, notify the author
//   - same emoji again: remove, reactionsCount-1
//   - different emoji: replace in place, count unchanged
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

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

// ReactResult reports the caller's reaction after React.
type ReactResult struct {
	HasReacted   bool   `json:"has_reacted"`
	UserReaction string `json:"user_reaction,omitempty"`
}

// ReactionView is one reaction on a post.
type ReactionView struct {
	ID    string      `json:"id"`
	Emoji string      `json:"emoji"`
	User  UserSummary `json:"user"`
}

// CommentInput describes a new comment or reply.
type CommentInput struct {
	PostID        string
	Content       string
	Attachment    string
	ReplyParentID string
}

// CommentView is a comment rendered for the caller.
type CommentView struct {
	ID            string      `json:"id"`
	PostID        string      `json:"post_id"`
	CreatedAt     time.Time   `json:"created_at"`
	Content       string      `json:"content"`
	Attachment    string      `json:"attachment,omitempty"`
	RepliesCount  int         `json:"replies_count"`
	ReplyParentID string      `json:"reply_parent_id,omitempty"`
	IsOwner       bool        `json:"is_owner"`
	Author        UserSummary `json:"author"`
}

// InteractionService handles reactions and comments.
type InteractionService struct {
	Deps
	Policy Policy
}

// visiblePost loads postID and checks the caller may interact with it.
func (s *InteractionService) visiblePost(ctx context.Context, db *gorm.DB, caller, postID string, denied error) (*domain.Post, error) {
	p, err := repo.GetPost(ctx, db, postID)
	if err != nil {
		return nil, mapNotFound(err, ErrPostNotFound)
	}
	ok, err := canSee(ctx, db, s.Policy, caller, p.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, denied
	}
	return p, nil
}

// React toggles, replaces or adds the caller's emoji on a post.
func (s *InteractionService) React(ctx context.Context, caller, postID, emoji string) (res ReactResult, err error) {
	tr := otel.Tracer("services/InteractionService")
	ctx, span := tr.Start(ctx, "React", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("post.id", postID),
	))
	defer func() { finish(span, "post.react", err) }()

	if err = requireCaller(caller); err != nil {
		return ReactResult{}, err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return ReactResult{}, ErrEmojiRequired
	}

	fx := &effects{}
	err = s.tx(ctx, fx, func(tx *gorm.DB) error {
		p, err := s.visiblePost(ctx, tx, caller, postID, ErrCannotInteract)
		if err != nil {
			return err
		}
		existing, err := repo.GetReaction(ctx, tx, caller, p.ID)
		switch {
		case err == nil && existing.Emoji == emoji:
			if err := repo.DeleteReaction(ctx, tx, existing.ID); err != nil {
				return err
			}
			if err := repo.AdjustPostCounter(ctx, tx, p.ID, repo.ColReactionsCount, -1); err != nil {
				return err
			}
			res = ReactResult{}
		case err == nil:
			if err := repo.UpdateReactionEmoji(ctx, tx, existing.ID, emoji); err != nil {
				return err
			}
			res = ReactResult{HasReacted: true, UserReaction: emoji}
		case errors.Is(err, repo.ErrNotFound):
			if _, err := repo.CreateReaction(ctx, tx, caller, p.ID, emoji); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return newError(ErrConflictState, "reaction changed concurrently")
				}
				return err
			}
			if err := repo.AdjustPostCounter(ctx, tx, p.ID, repo.ColReactionsCount, 1); err != nil {
				return err
			}
			if err := s.notify(ctx, tx, fx, p.UserID, caller, domain.NotifyPostReaction); err != nil {
				return err
			}
			res = ReactResult{HasReacted: true, UserReaction: emoji}
		default:
			return err
		}
		fx.emit(realtime.EventPost, "", p.ID, caller, p.UserID)
		return nil
	})
	if err != nil {
		return ReactResult{}, err
	}
	return res, nil
}

// Comment adds a comment to a post, or a reply when in.ReplyParentID is set.
func (s *InteractionService) Comment(ctx context.Context, caller string, in CommentInput) (c *domain.Comment, err error) {
	tr := otel.Tracer("services/InteractionService")
	ctx, span := tr.Start(ctx, "Comment", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("post.id", in.PostID),
		attribute.Bool("comment.reply", in.ReplyParentID != ""),
	))
	defer func() { finish(span, "post.comment", err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	attachment := strings.TrimSpace(in.Attachment)
	if content == "" && attachment == "" {
		return nil, ErrCommentEmpty
	}
	if utf8.RuneCountInString(content) > MaxCommentRunes {
		return nil, ErrCommentTooLong
	}

	fx := &effects{}
	err = s.tx(ctx, fx, func(tx *gorm.DB) error {
		p, err := s.visiblePost(ctx, tx, caller, in.PostID, ErrCannotInteract)
		if err != nil {
			return err
		}
		var parent *domain.Comment
		if in.ReplyParentID != "" {
			parent, err = repo.GetComment(ctx, tx, in.ReplyParentID)
			if err != nil {
				return mapNotFound(err, ErrCommentNotFound)
			}
			if parent.PostID != p.ID {
				return ErrCrossPostReply
			}
		}

		cm := &domain.Comment{PostID: p.ID, UserID: caller, Content: content, Attachment: attachment}
		if parent != nil {
			cm.ReplyParentID = &parent.ID
		}
		if err := repo.CreateComment(ctx, tx, cm); err != nil {
			return err
		}
		if err := repo.AdjustPostCounter(ctx, tx, p.ID, repo.ColCommentsCount, 1); err != nil {
			return err
		}

		if parent != nil {
			if err := repo.AdjustRepliesCount(ctx, tx, parent.ID, 1); err != nil {
				return err
			}
			if err := s.notify(ctx, tx, fx, parent.UserID, caller, domain.NotifyCommentReplied); err != nil {
				return err
			}
			if p.UserID != parent.UserID {
				if err := s.notify(ctx, tx, fx, p.UserID, caller, domain.NotifyCommentReplied); err != nil {
					return err
				}
			}
		} else if err := s.notify(ctx, tx, fx, p.UserID, caller, domain.NotifyPostCommented); err != nil {
			return err
		}
		fx.emit(realtime.EventPost, "", p.ID, caller, p.UserID)
		c = cm
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteComment removes one of the caller's comments together with every
// reply beneath it and returns how many comments were deleted. The post's
// commentsCount drops by that total, and so does the repliesCount of the
// comment's immediate parent; ancestors further up are not adjusted.
func (s *InteractionService) DeleteComment(ctx context.Context, caller, commentID string) (deleted int, err error) {
	tr := otel.Tracer("services/InteractionService")
	ctx, span := tr.Start(ctx, "DeleteComment", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("comment.id", commentID),
	))
	defer func() {
		span.SetAttributes(attribute.Int("comments.deleted", deleted))
		finish(span, "comment.delete", err)
	}()

	if err = requireCaller(caller); err != nil {
		return 0, err
	}
	fx := &effects{}
	err = s.tx(ctx, fx, func(tx *gorm.DB) error {
		cm, err := repo.GetComment(ctx, tx, commentID)
		if err != nil {
			return mapNotFound(err, ErrCommentNotFound)
		}
		if cm.UserID != caller {
			return ErrNotOwner
		}
		p, err := repo.GetPost(ctx, tx, cm.PostID)
		if err != nil {
			return mapNotFound(err, ErrPostNotFound)
		}

		ids := []string{cm.ID}
		frontier := []string{cm.ID}
		for len(frontier) > 0 {
			children, err := repo.ChildCommentIDs(ctx, tx, frontier)
			if err != nil {
				return err
			}
			ids = append(ids, children...)
			frontier = children
		}
		n, err := repo.DeleteComments(ctx, tx, ids)
		if err != nil {
			return err
		}
		total := int(n)
		if err := repo.AdjustPostCounter(ctx, tx, p.ID, repo.ColCommentsCount, -total); err != nil {
			return err
		}
		if cm.ReplyParentID != nil {
			if err := repo.AdjustRepliesCount(ctx, tx, *cm.ReplyParentID, -total); err != nil {
				return err
			}
		}
		fx.emit(realtime.EventPost, "", p.ID, caller, p.UserID)
		deleted = total
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Reactions pages the reactions on a post, newest first.
func (s *InteractionService) Reactions(ctx context.Context, caller, postID, loc string, req pagination.PageRequest) (pagination.Page[ReactionView], error) {
	tr := otel.Tracer("services/InteractionService")
	ctx, span := tr.Start(ctx, "Reactions", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("post.id", postID),
	))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[ReactionView](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[ReactionView]{}, err
	}
	if _, err := s.visiblePost(ctx, s.DB, caller, postID, ErrPostsNotVisible); err != nil {
		return pagination.Page[ReactionView]{}, err
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListPostReactions(ctx, s.DB, postID, cursor, limit+1)
	if err != nil {
		return pagination.Page[ReactionView]{}, err
	}
	page := pagination.Build(rows, limit, func(r domain.Reaction) pagination.Key {
		return pagination.Key{Time: r.CreatedAt, ID: r.ID}
	})
	ids := make([]string, 0, len(page.Page))
	for _, r := range page.Page {
		ids = append(ids, r.UserID)
	}
	users, err := s.users(ctx, s.DB, ids, locale.For(loc))
	if err != nil {
		return pagination.Page[ReactionView]{}, err
	}
	out := make([]ReactionView, 0, len(page.Page))
	for _, r := range page.Page {
		if u, ok := users[r.UserID]; ok {
			out = append(out, ReactionView{ID: r.ID, Emoji: r.Emoji, User: u})
		}
	}
	return pagination.Page[ReactionView]{Page: out, IsDone: page.IsDone, ContinueCursor: page.ContinueCursor}, nil
}

// Comments pages the top-level comments of a post, newest first.
func (s *InteractionService) Comments(ctx context.Context, caller, postID, loc string, req pagination.PageRequest) (pagination.Page[CommentView], error) {
	tr := otel.Tracer("services/InteractionService")
	ctx, span := tr.Start(ctx, "Comments", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("post.id", postID),
	))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[CommentView](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[CommentView]{}, err
	}
	if _, err := s.visiblePost(ctx, s.DB, caller, postID, ErrPostsNotVisible); err != nil {
		return pagination.Page[CommentView]{}, err
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListTopLevelComments(ctx, s.DB, postID, cursor, limit+1)
	if err != nil {
		return pagination.Page[CommentView]{}, err
	}
	return s.renderComments(ctx, caller, loc, pagination.Build(rows, limit, commentKey))
}

// CommentByID returns a single comment on a post visible to the caller.
func (s *InteractionService) CommentByID(ctx context.Context, caller, commentID, loc string) (*CommentView, error) {
	tr := otel.Tracer("services/InteractionService")
	ctx, span := tr.Start(ctx, "CommentByID", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("comment.id", commentID),
	))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	cm, err := repo.GetComment(ctx, s.DB, commentID)
	if err != nil {
		return nil, mapNotFound(err, ErrCommentNotFound)
	}
	if _, err := s.visiblePost(ctx, s.DB, caller, cm.PostID, ErrPostsNotVisible); err != nil {
		return nil, err
	}
	page, err := s.renderComments(ctx, caller, loc, pagination.Page[domain.Comment]{Page: []domain.Comment{*cm}, IsDone: true})
	if err != nil {
		return nil, err
	}
	// A comment whose author is gone is treated as gone itself.
	if len(page.Page) == 0 {
		return nil, ErrCommentNotFound
	}
	return &page.Page[0], nil
}

// Replies pages the direct replies to a comment, newest first.
func (s *InteractionService) Replies(ctx context.Context, caller, commentID, loc string, req pagination.PageRequest) (pagination.Page[CommentView], error) {
	tr := otel.Tracer("services/InteractionService")
	ctx, span := tr.Start(ctx, "Replies", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("comment.id", commentID),
	))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[CommentView](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[CommentView]{}, err
	}
	parent, err := repo.GetComment(ctx, s.DB, commentID)
	if err != nil {
		return pagination.Page[CommentView]{}, mapNotFound(err, ErrCommentNotFound)
	}
	if _, err := s.visiblePost(ctx, s.DB, caller, parent.PostID, ErrPostsNotVisible); err != nil {
		return pagination.Page[CommentView]{}, err
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListReplies(ctx, s.DB, parent.ID, cursor, limit+1)
	if err != nil {
		return pagination.Page[CommentView]{}, err
	}
	return s.renderComments(ctx, caller, loc, pagination.Build(rows, limit, commentKey))
}

func commentKey(c domain.Comment) pagination.Key {
	return pagination.Key{Time: c.CreatedAt, ID: c.ID}
}

func (s *InteractionService) renderComments(ctx context.Context, caller, loc string, page pagination.Page[domain.Comment]) (pagination.Page[CommentView], error) {
	ids := make([]string, 0, len(page.Page))
	for _, c := range page.Page {
		ids = append(ids, c.UserID)
	}
	users, err := s.users(ctx, s.DB, ids, locale.For(loc))
	if err != nil {
		return pagination.Page[CommentView]{}, err
	}
	out := make([]CommentView, 0, len(page.Page))
	for _, c := range page.Page {
		u, ok := users[c.UserID]
		if !ok {
			continue
		}
		v := CommentView{
			ID:           c.ID,
			PostID:       c.PostID,
			CreatedAt:    c.CreatedAt,
			Content:      c.Content,
			Attachment:   s.commentAttachment(ctx, c.Attachment),
			RepliesCount: c.RepliesCount,
			IsOwner:      c.UserID == caller,
			Author:       u,
		}
		if c.ReplyParentID != nil {
			v.ReplyParentID = *c.ReplyParentID
		}
		out = append(out, v)
	}
	return pagination.Page[CommentView]{Page: out, IsDone: page.IsDone, ContinueCursor: page.ContinueCursor}, nil
}

// commentAttachment returns external URLs as stored and signs blob keys.
func (s *InteractionService) commentAttachment(ctx context.Context, a string) string {
	if a == "" || strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
		return a
	}
	return s.privateURL(ctx, a)
}

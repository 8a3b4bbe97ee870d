// Package services – PostService
//
// Posts are visible to their author, the author's accepted friends and, for
// authors listed in Policy.TrustedAuthors, to everyone. Counters on posts and
// collections are denormalized and adjusted in the same transaction as the
// rows they count.
package services

import (
	"context"
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

// Feed limits.
const (
	MaxPostRunes    = 2000
	MaxAttachments  = 3
	MaxCommentRunes = 1000
)

// Policy holds feed access settings.
type Policy struct {
	// TrustedAuthors are users whose posts anyone may see and interact with.
	TrustedAuthors map[string]struct{}
}

// NewPolicy builds a Policy from a list of trusted author ids.
func NewPolicy(trusted []string) Policy {
	m := make(map[string]struct{}, len(trusted))
	for _, id := range trusted {
		if id = strings.TrimSpace(id); id != "" {
			m[id] = struct{}{}
		}
	}
	return Policy{TrustedAuthors: m}
}

// Trusted reports whether userID is a trusted author.
func (p Policy) Trusted(userID string) bool {
	_, ok := p.TrustedAuthors[userID]
	return ok
}

// canSee reports whether caller may see and interact with owner's posts.
func canSee(ctx context.Context, db *gorm.DB, p Policy, caller, owner string) (bool, error) {
	if caller == owner || p.Trusted(owner) {
		return true, nil
	}
	return repo.AreFriends(ctx, db, caller, owner)
}

// CreatePostInput describes a new post.
type CreatePostInput struct {
	Content      string
	Attachments  []domain.Attachment
	CollectionID string
}

// AttachmentView is a post attachment with a resolved URL.
type AttachmentView struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// PostView is a post rendered for the caller.
type PostView struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	CollectionID   string           `json:"collection_id,omitempty"`
	Content        string           `json:"content"`
	Attachments    []AttachmentView `json:"attachments"`
	ReactionsCount int              `json:"reactions_count"`
	CommentsCount  int              `json:"comments_count"`
	CreatedAt      time.Time        `json:"created_at"`
	RelativeTime   string           `json:"relative_time"`
	HasReacted     bool             `json:"has_reacted"`
	UserReaction   string           `json:"user_reaction,omitempty"`
	IsOwner        bool             `json:"is_owner"`
	IsPinned       bool             `json:"is_pinned"`
	Author         UserSummary      `json:"author"`
}

// PostService manages posts and collections.
type PostService struct {
	Deps
	Policy Policy
}

func validateAttachments(atts []domain.Attachment) error {
	if len(atts) > MaxAttachments {
		return ErrTooManyAttachments
	}
	for _, a := range atts {
		if (a.Type != domain.AttachmentImage && a.Type != domain.AttachmentGIF) || strings.TrimSpace(a.URL) == "" {
			return ErrBadAttachment
		}
	}
	return nil
}

// CreatePost publishes a post, optionally inside one of the caller's
// collections.
func (s *PostService) CreatePost(ctx context.Context, caller string, in CreatePostInput) (p *domain.Post, err error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "CreatePost", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.Int("post.attachments", len(in.Attachments)),
	))
	defer func() { finish(span, "post.create", err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxPostRunes {
		return nil, ErrPostTooLong
	}
	if err = validateAttachments(in.Attachments); err != nil {
		return nil, err
	}

	fx := &effects{}
	err = s.tx(ctx, fx, func(tx *gorm.DB) error {
		post := &domain.Post{UserID: caller, Content: content, Attachments: in.Attachments}
		if in.CollectionID != "" {
			c, err := repo.GetCollection(ctx, tx, in.CollectionID)
			if err != nil {
				return mapNotFound(err, ErrCollectionNotFound)
			}
			if c.UserID != caller {
				return ErrNotOwner
			}
			post.CollectionID = &c.ID
		}
		if err := repo.CreatePost(ctx, tx, post); err != nil {
			return err
		}
		if post.CollectionID != nil {
			if err := repo.AdjustCollectionPosts(ctx, tx, *post.CollectionID, 1); err != nil {
				return err
			}
		}
		fx.emit(realtime.EventPost, "", post.ID, caller)
		p = post
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePostAttachments replaces the attachments of one of the caller's
// posts.
func (s *PostService) UpdatePostAttachments(ctx context.Context, caller, postID string, atts []domain.Attachment) (err error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "UpdatePostAttachments", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("post.id", postID),
	))
	defer func() { finish(span, "post.update_attachments", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	if err = validateAttachments(atts); err != nil {
		return err
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		p, err := s.owned(ctx, tx, caller, postID)
		if err != nil {
			return err
		}
		if err := repo.UpdatePostAttachments(ctx, tx, p, atts); err != nil {
			return err
		}
		fx.emit(realtime.EventPost, "", p.ID, caller)
		return nil
	})
}

// DeletePost removes one of the caller's posts with its comments and
// reactions. Image attachments are deleted from storage after commit.
func (s *PostService) DeletePost(ctx context.Context, caller, postID string) (err error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "DeletePost", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("post.id", postID),
	))
	defer func() { finish(span, "post.delete", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		p, err := s.owned(ctx, tx, caller, postID)
		if err != nil {
			return err
		}
		if p.CollectionID != nil {
			if err := repo.AdjustCollectionPosts(ctx, tx, *p.CollectionID, -1); err != nil {
				return err
			}
		}
		if _, err := repo.DeletePostComments(ctx, tx, p.ID); err != nil {
			return err
		}
		if _, err := repo.DeletePostReactions(ctx, tx, p.ID); err != nil {
			return err
		}
		if err := repo.DeletePost(ctx, tx, p.ID); err != nil {
			return mapNotFound(err, ErrPostNotFound)
		}
		if p.HasImage() {
			for _, a := range p.Attachments {
				if a.Type == domain.AttachmentImage {
					fx.deleteBlob(a.URL)
				}
			}
		}
		fx.emit(realtime.EventPost, "", p.ID, caller)
		return nil
	})
}

// TogglePin flips the pinned flag of one of the caller's posts and returns
// the new value.
func (s *PostService) TogglePin(ctx context.Context, caller, postID string) (pinned bool, err error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "TogglePin", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("post.id", postID),
	))
	defer func() { finish(span, "post.pin", err) }()

	if err = requireCaller(caller); err != nil {
		return false, err
	}
	err = s.tx(ctx, &effects{}, func(tx *gorm.DB) error {
		p, err := s.owned(ctx, tx, caller, postID)
		if err != nil {
			return err
		}
		pinned = !p.IsPinned
		return repo.SetPinned(ctx, tx, p.ID, pinned)
	})
	return pinned, err
}

func (s *PostService) owned(ctx context.Context, tx *gorm.DB, caller, postID string) (*domain.Post, error) {
	p, err := repo.GetPost(ctx, tx, postID)
	if err != nil {
		return nil, mapNotFound(err, ErrPostNotFound)
	}
	if p.UserID != caller {
		return nil, ErrNotOwner
	}
	return p, nil
}

// UserPosts returns target's posts. The first page starts with all pinned
// posts; the unpinned posts follow, cursor-paged.
func (s *PostService) UserPosts(ctx context.Context, caller, target, loc string, req pagination.PageRequest) (pagination.Page[PostView], error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "UserPosts", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("target.id", target),
	))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[PostView](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	if _, err := repo.GetUser(ctx, s.DB, target); err != nil {
		return pagination.Page[PostView]{}, mapNotFound(err, ErrUserNotFound)
	}
	ok, err := canSee(ctx, s.DB, s.Policy, caller, target)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	if !ok {
		return pagination.Page[PostView]{}, ErrPostsNotVisible
	}

	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListUserPosts(ctx, s.DB, target, cursor, limit+1)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	page := pagination.Build(rows, limit, postKey)
	if cursor == nil {
		pinned, err := repo.ListPinnedPosts(ctx, s.DB, target)
		if err != nil {
			return pagination.Page[PostView]{}, err
		}
		page.Page = append(pinned, page.Page...)
	}
	return s.render(ctx, caller, loc, page)
}

// FeedPosts returns posts by the caller and their friends, newest first.
func (s *PostService) FeedPosts(ctx context.Context, caller, loc string, req pagination.PageRequest) (pagination.Page[PostView], error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "FeedPosts", trace.WithAttributes(attribute.String("user.id", caller)))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[PostView](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	friends, err := repo.FriendIDs(ctx, s.DB, caller)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListFeedPosts(ctx, s.DB, unique(append([]string{caller}, friends...)), cursor, limit+1)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	return s.render(ctx, caller, loc, pagination.Build(rows, limit, postKey))
}

// PostDetails returns a single post visible to the caller.
func (s *PostService) PostDetails(ctx context.Context, caller, postID, loc string) (*PostView, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "PostDetails", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("post.id", postID),
	))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	p, err := repo.GetPost(ctx, s.DB, postID)
	if err != nil {
		return nil, mapNotFound(err, ErrPostNotFound)
	}
	ok, err := canSee(ctx, s.DB, s.Policy, caller, p.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPostsNotVisible
	}
	page, err := s.render(ctx, caller, loc, pagination.Page[domain.Post]{Page: []domain.Post{*p}, IsDone: true})
	if err != nil {
		return nil, err
	}
	// A post whose author is gone is treated as gone itself.
	if len(page.Page) == 0 {
		return nil, ErrPostNotFound
	}
	return &page.Page[0], nil
}

// UserPhotos returns URLs of the images attached to target's posts. Pages
// are cut on posts, so a page may hold more or fewer URLs than NumItems.
func (s *PostService) UserPhotos(ctx context.Context, caller, target string, req pagination.PageRequest) (pagination.Page[string], error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "UserPhotos", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("target.id", target),
	))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[string](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[string]{}, err
	}
	ok, err := canSee(ctx, s.DB, s.Policy, caller, target)
	if err != nil {
		return pagination.Page[string]{}, err
	}
	if !ok {
		return pagination.Page[string]{}, ErrPostsNotVisible
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListPostsWithAttachments(ctx, s.DB, target, cursor, limit+1)
	if err != nil {
		return pagination.Page[string]{}, err
	}
	page := pagination.Build(rows, limit, postKey)
	urls := make([]string, 0, len(page.Page))
	for _, p := range page.Page {
		for _, a := range p.Attachments {
			if a.Type == domain.AttachmentImage {
				urls = append(urls, s.privateURL(ctx, a.URL))
			}
		}
	}
	return pagination.Page[string]{Page: urls, IsDone: page.IsDone, ContinueCursor: page.ContinueCursor}, nil
}

// CreateCollection creates an empty collection owned by the caller.
func (s *PostService) CreateCollection(ctx context.Context, caller, title string) (c *domain.Collection, err error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "CreateCollection", trace.WithAttributes(attribute.String("user.id", caller)))
	defer func() { finish(span, "collection.create", err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	title = normalizeTitle(title)
	if title == "" {
		return nil, ErrCollectionTitleEmpty
	}
	c = &domain.Collection{UserID: caller, Title: title}
	if err = repo.CreateCollection(ctx, s.DB, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCollections pages owner's collections, newest first. An empty owner
// means the caller.
func (s *PostService) ListCollections(ctx context.Context, caller, owner string, req pagination.PageRequest) (pagination.Page[domain.Collection], error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "ListCollections", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("owner.id", owner),
	))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[domain.Collection](), nil
	}
	if owner == "" {
		owner = caller
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[domain.Collection]{}, err
	}
	ok, err := canSee(ctx, s.DB, s.Policy, caller, owner)
	if err != nil {
		return pagination.Page[domain.Collection]{}, err
	}
	if !ok {
		return pagination.Page[domain.Collection]{}, ErrPostsNotVisible
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListCollections(ctx, s.DB, owner, cursor, limit+1)
	if err != nil {
		return pagination.Page[domain.Collection]{}, err
	}
	return pagination.Build(rows, limit, func(c domain.Collection) pagination.Key {
		return pagination.Key{Time: c.CreatedAt, ID: c.ID}
	}), nil
}

func postKey(p domain.Post) pagination.Key {
	return pagination.Key{Time: p.CreatedAt, ID: p.ID}
}

// render enriches a page of posts with authors, the caller's reactions and
// resolved attachment URLs. Posts whose author no longer exists are dropped.
func (s *PostService) render(ctx context.Context, caller, loc string, page pagination.Page[domain.Post]) (pagination.Page[PostView], error) {
	authors := make([]string, 0, len(page.Page))
	ids := make([]string, 0, len(page.Page))
	for _, p := range page.Page {
		authors = append(authors, p.UserID)
		ids = append(ids, p.ID)
	}
	f := locale.For(loc)
	users, err := s.users(ctx, s.DB, authors, f)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}
	reactions, err := repo.GetUserReactions(ctx, s.DB, caller, ids)
	if err != nil {
		return pagination.Page[PostView]{}, err
	}

	now := repo.Now()
	out := make([]PostView, 0, len(page.Page))
	for _, p := range page.Page {
		author, ok := users[p.UserID]
		if !ok {
			continue
		}
		atts := make([]AttachmentView, 0, len(p.Attachments))
		for _, a := range p.Attachments {
			url := a.URL
			if a.Type == domain.AttachmentImage {
				url = s.publicURL(a.URL)
			}
			atts = append(atts, AttachmentView{Type: a.Type, URL: url})
		}
		emoji, reacted := reactions[p.ID]
		v := PostView{
			ID:             p.ID,
			UserID:         p.UserID,
			Content:        p.Content,
			Attachments:    atts,
			ReactionsCount: p.ReactionsCount,
			CommentsCount:  p.CommentsCount,
			CreatedAt:      p.CreatedAt,
			RelativeTime:   f.RelativeTime(p.CreatedAt, now),
			HasReacted:     reacted,
			UserReaction:   emoji,
			IsOwner:        p.UserID == caller,
			IsPinned:       p.IsPinned,
			Author:         author,
		}
		if p.CollectionID != nil {
			v.CollectionID = *p.CollectionID
		}
		out = append(out, v)
	}
	return pagination.Page[PostView]{Page: out, IsDone: page.IsDone, ContinueCursor: page.ContinueCursor}, nil
}

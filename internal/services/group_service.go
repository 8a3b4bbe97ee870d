// Package services – GroupService
//
// This file implements GroupService, which manages multi-member chats. It
// normalizes titles, enforces creator-only rules for deletion, keeps
// membersCount in step with the membership rows, and derives per-member
// unread counts from each membership's read marker.
package services

import (
	"context"
	"regexp"
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

// CreateGroupInput describes a new group. Banner is a blob key.
type CreateGroupInput struct {
	Title       string
	Description string
	Banner      string
	MemberIDs   []string
}

// GroupListItem is one entry of the caller's group list.
type GroupListItem struct {
	GroupID     string          `json:"group_id"`
	Photo       string          `json:"photo,omitempty"`
	Title       string          `json:"title"`
	LastMessage *MessagePreview `json:"last_message,omitempty"`
	UnreadCount int64           `json:"unread_count"`
	IsAdmin     bool            `json:"is_admin"`
}

// GroupDetails is the header of a group.
type GroupDetails struct {
	GroupID      string    `json:"group_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Banner       string    `json:"banner,omitempty"`
	MembersCount int       `json:"members_count"`
	CreatedAt    time.Time `json:"created_at"`
	MemberIDs    []string  `json:"member_ids"`
	IsAdmin      bool      `json:"is_admin"`
}

// GroupService provides group-level operations.
type GroupService struct {
	Deps

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// CreateGroup creates a group owned by caller with caller and in.MemberIDs
// as members.
func (s *GroupService) CreateGroup(ctx context.Context, caller string, in CreateGroupInput) (g *domain.Group, err error) {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "CreateGroup", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.Int("group.members", len(in.MemberIDs)),
	))
	defer func() { finish(span, "group.create", err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	title := s.clip(normalizeTitle(in.Title))
	if title == "" {
		return nil, ErrTitleRequired
	}
	members := make([]string, 0, len(in.MemberIDs))
	for _, id := range unique(in.MemberIDs) {
		if id != caller {
			members = append(members, id)
		}
	}

	fx := &effects{}
	err = s.tx(ctx, fx, func(tx *gorm.DB) error {
		found, err := repo.GetUsers(ctx, tx, members)
		if err != nil {
			return err
		}
		if len(found) != len(members) {
			return ErrUserNotFound
		}
		grp := &domain.Group{
			Title:        title,
			Description:  strings.TrimSpace(in.Description),
			Banner:       in.Banner,
			MembersCount: len(members) + 1,
			CreatorID:    caller,
		}
		if err := repo.CreateGroup(ctx, tx, grp); err != nil {
			return err
		}
		if err := repo.AddMembers(ctx, tx, grp.ID, append([]string{caller}, members...)); err != nil {
			return err
		}
		fx.emit(realtime.EventGroup, domain.GroupThread(grp.ID).Key(), grp.ID, append([]string{caller}, members...)...)
		g = grp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGroup removes a group with its messages, memberships and banner.
// Only the creator may delete it.
func (s *GroupService) DeleteGroup(ctx context.Context, caller, groupID string) (err error) {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "DeleteGroup", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("group.id", groupID),
	))
	defer func() { finish(span, "group.delete", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		g, err := repo.GetGroup(ctx, tx, groupID)
		if err != nil {
			return mapNotFound(err, ErrGroupNotFound)
		}
		if g.CreatorID != caller {
			return ErrNotCreator
		}
		members, err := repo.GroupMemberIDs(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		th := domain.GroupThread(g.ID)
		if _, err := repo.DeleteThreadMessages(ctx, tx, th); err != nil {
			return err
		}
		if err := repo.DeleteGroup(ctx, tx, g.ID); err != nil {
			return mapNotFound(err, ErrGroupNotFound)
		}
		fx.deleteBlob(g.Banner)
		fx.emit(realtime.EventGroup, th.Key(), g.ID, members...)
		return nil
	})
}

// LeaveGroup removes caller from a group they did not create.
func (s *GroupService) LeaveGroup(ctx context.Context, caller, groupID string) (err error) {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "LeaveGroup", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("group.id", groupID),
	))
	defer func() { finish(span, "group.leave", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		g, err := repo.GetGroup(ctx, tx, groupID)
		if err != nil {
			return mapNotFound(err, ErrGroupNotFound)
		}
		if g.CreatorID == caller {
			return ErrCreatorLeave
		}
		if err := repo.DeleteMembership(ctx, tx, g.ID, caller); err != nil {
			return mapNotFound(err, ErrNotGroupMember)
		}
		if err := repo.AdjustMembersCount(ctx, tx, g.ID, -1); err != nil {
			return err
		}
		remaining, err := repo.GroupMemberIDs(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		fx.emit(realtime.EventGroup, domain.GroupThread(g.ID).Key(), g.ID, append(remaining, caller)...)
		return nil
	})
}

// ListGroups pages the caller's groups by join time, newest first. Each
// item carries the newest message and the number of messages from other
// members since the caller last read the group.
func (s *GroupService) ListGroups(ctx context.Context, caller string, req pagination.PageRequest) (pagination.Page[GroupListItem], error) {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "ListGroups", trace.WithAttributes(attribute.String("user.id", caller)))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[GroupListItem](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[GroupListItem]{}, err
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListMembershipsPage(ctx, s.DB, caller, cursor, limit+1)
	if err != nil {
		return pagination.Page[GroupListItem]{}, err
	}
	page := pagination.Build(rows, limit, func(m domain.GroupMember) pagination.Key {
		return pagination.Key{Time: m.CreatedAt, ID: m.ID}
	})

	ids := make([]string, 0, len(page.Page))
	for _, m := range page.Page {
		ids = append(ids, m.GroupID)
	}
	groups, err := repo.GetGroups(ctx, s.DB, ids)
	if err != nil {
		return pagination.Page[GroupListItem]{}, err
	}

	out := make([]GroupListItem, 0, len(page.Page))
	for _, m := range page.Page {
		g, ok := groups[m.GroupID]
		if !ok {
			continue
		}
		th := domain.GroupThread(g.ID)
		item := GroupListItem{
			GroupID: g.ID,
			Photo:   s.privateURL(ctx, g.Banner),
			Title:   g.Title,
			IsAdmin: g.CreatorID == caller,
		}
		last, err := repo.LatestMessage(ctx, s.DB, th)
		if err != nil {
			return pagination.Page[GroupListItem]{}, err
		}
		if last != nil {
			p, err := previews(ctx, s.DB, []string{last.ID})
			if err != nil {
				return pagination.Page[GroupListItem]{}, err
			}
			if v, ok := p[last.ID]; ok {
				item.LastMessage = &v
			}
		}
		item.UnreadCount, err = repo.CountMessagesSince(ctx, s.DB, th, m.LastReadAt, caller)
		if err != nil {
			return pagination.Page[GroupListItem]{}, err
		}
		out = append(out, item)
	}
	return pagination.Page[GroupListItem]{Page: out, IsDone: page.IsDone, ContinueCursor: page.ContinueCursor}, nil
}

// GroupMembers pages a group's members, most recently joined first.
func (s *GroupService) GroupMembers(ctx context.Context, caller, groupID, loc string, req pagination.PageRequest) (pagination.Page[UserSummary], error) {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "GroupMembers", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("group.id", groupID),
	))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[UserSummary](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[UserSummary]{}, err
	}
	if _, err := repo.GetMembership(ctx, s.DB, groupID, caller); err != nil {
		return pagination.Page[UserSummary]{}, mapNotFound(err, ErrNotGroupMember)
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListGroupMembersPage(ctx, s.DB, groupID, cursor, limit+1)
	if err != nil {
		return pagination.Page[UserSummary]{}, err
	}
	page := pagination.Build(rows, limit, func(m domain.GroupMember) pagination.Key {
		return pagination.Key{Time: m.CreatedAt, ID: m.ID}
	})
	ids := make([]string, 0, len(page.Page))
	for _, m := range page.Page {
		ids = append(ids, m.UserID)
	}
	users, err := s.users(ctx, s.DB, ids, locale.For(loc))
	if err != nil {
		return pagination.Page[UserSummary]{}, err
	}
	out := make([]UserSummary, 0, len(page.Page))
	for _, m := range page.Page {
		if u, ok := users[m.UserID]; ok {
			out = append(out, u)
		}
	}
	return pagination.Page[UserSummary]{Page: out, IsDone: page.IsDone, ContinueCursor: page.ContinueCursor}, nil
}

// GroupInfo returns the header of a group the caller belongs to.
func (s *GroupService) GroupInfo(ctx context.Context, caller, groupID string) (*GroupDetails, error) {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "GroupInfo", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("group.id", groupID),
	))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	g, err := repo.GetGroup(ctx, s.DB, groupID)
	if err != nil {
		return nil, mapNotFound(err, ErrGroupNotFound)
	}
	if _, err := repo.GetMembership(ctx, s.DB, groupID, caller); err != nil {
		return nil, mapNotFound(err, ErrNotGroupMember)
	}
	members, err := repo.GroupMemberIDs(ctx, s.DB, groupID)
	if err != nil {
		return nil, err
	}
	return &GroupDetails{
		GroupID:      g.ID,
		Title:        g.Title,
		Description:  g.Description,
		Banner:       s.privateURL(ctx, g.Banner),
		MembersCount: g.MembersCount,
		CreatedAt:    g.CreatedAt,
		MemberIDs:    members,
		IsAdmin:      g.CreatorID == caller,
	}, nil
}

// clip truncates a group title to the configured maximum rune length.
func (s *GroupService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

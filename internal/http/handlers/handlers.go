// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they bind and validate input, resolve the
// caller set by the authentication middleware, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
	"github.com/tbourn/worldfriends-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// FriendshipService manages friend requests and the friend list.
type FriendshipService interface {
	SendRequest(ctx context.Context, caller, receiver string) (*domain.Friendship, error)
	AcceptRequest(ctx context.Context, caller, friendshipID string) error
	RejectRequest(ctx context.Context, caller, friendshipID string) error
	RemoveFriend(ctx context.Context, caller, other string) error
	ListFriends(ctx context.Context, caller, loc string, req pagination.PageRequest) (pagination.Page[services.FriendshipView], error)
	ListRequests(ctx context.Context, caller, loc string, receivedOnly bool, req pagination.PageRequest) (pagination.Page[services.FriendshipView], error)
}

// ConversationService manages direct conversations.
type ConversationService interface {
	CreateConversation(ctx context.Context, caller, other string) (string, error)
	DeleteConversation(ctx context.Context, caller, conversationID string) error
	ListConversations(ctx context.Context, caller, loc string, req pagination.PageRequest) (pagination.Page[services.ConversationView], error)
	ConversationInfo(ctx context.Context, caller, conversationID, loc string) (*services.ConversationInfo, error)
	HasUnreadConversations(ctx context.Context, caller string) (bool, error)
	InboxETag(ctx context.Context, caller string) (string, error)
}

// MessageService sends and reads messages of direct and group threads.
type MessageService interface {
	SendMessage(ctx context.Context, caller string, in services.SendMessageInput) (*domain.Message, error)
	DeleteMessage(ctx context.Context, caller, messageID string) error
	CorrectMessage(ctx context.Context, caller, messageID, correction string) error
	MarkRead(ctx context.Context, caller string, t domain.Thread) error
	Messages(ctx context.Context, caller string, t domain.Thread, req pagination.PageRequest) (pagination.Page[services.MessageView], error)
}

// GroupService manages group chats.
type GroupService interface {
	CreateGroup(ctx context.Context, caller string, in services.CreateGroupInput) (*domain.Group, error)
	DeleteGroup(ctx context.Context, caller, groupID string) error
	LeaveGroup(ctx context.Context, caller, groupID string) error
	ListGroups(ctx context.Context, caller string, req pagination.PageRequest) (pagination.Page[services.GroupListItem], error)
	GroupMembers(ctx context.Context, caller, groupID, loc string, req pagination.PageRequest) (pagination.Page[services.UserSummary], error)
	GroupInfo(ctx context.Context, caller, groupID string) (*services.GroupDetails, error)
}

// PostService manages posts and collections.
type PostService interface {
	CreatePost(ctx context.Context, caller string, in services.CreatePostInput) (*domain.Post, error)
	UpdatePostAttachments(ctx context.Context, caller, postID string, atts []domain.Attachment) error
	DeletePost(ctx context.Context, caller, postID string) error
	TogglePin(ctx context.Context, caller, postID string) (bool, error)
	UserPosts(ctx context.Context, caller, target, loc string, req pagination.PageRequest) (pagination.Page[services.PostView], error)
	FeedPosts(ctx context.Context, caller, loc string, req pagination.PageRequest) (pagination.Page[services.PostView], error)
	PostDetails(ctx context.Context, caller, postID, loc string) (*services.PostView, error)
	UserPhotos(ctx context.Context, caller, target string, req pagination.PageRequest) (pagination.Page[string], error)
	CreateCollection(ctx context.Context, caller, title string) (*domain.Collection, error)
	ListCollections(ctx context.Context, caller, owner string, req pagination.PageRequest) (pagination.Page[domain.Collection], error)
}

// InteractionService manages reactions and comments on posts.
type InteractionService interface {
	React(ctx context.Context, caller, postID, emoji string) (services.ReactResult, error)
	Comment(ctx context.Context, caller string, in services.CommentInput) (*domain.Comment, error)
	DeleteComment(ctx context.Context, caller, commentID string) (int, error)
	Reactions(ctx context.Context, caller, postID, loc string, req pagination.PageRequest) (pagination.Page[services.ReactionView], error)
	Comments(ctx context.Context, caller, postID, loc string, req pagination.PageRequest) (pagination.Page[services.CommentView], error)
	CommentByID(ctx context.Context, caller, commentID, loc string) (*services.CommentView, error)
	Replies(ctx context.Context, caller, commentID, loc string, req pagination.PageRequest) (pagination.Page[services.CommentView], error)
}

// UserService serves profiles.
type UserService interface {
	Profile(ctx context.Context, caller, target, loc string) (*services.ProfileView, error)
	CurrentProfile(ctx context.Context, caller string) (*services.CurrentUserView, error)
}

// DiscoveryService finds people to befriend.
type DiscoveryService interface {
	Discover(ctx context.Context, caller, loc string, in services.DiscoverInput, req pagination.PageRequest) (pagination.Page[services.DiscoverCard], error)
}

// BlockService blocks and unblocks users.
type BlockService interface {
	BlockUser(ctx context.Context, caller, target string) error
	UnblockUser(ctx context.Context, caller, target string) error
}

// NotificationService exposes the caller's notifications.
type NotificationService interface {
	List(ctx context.Context, caller, loc string, req pagination.PageRequest) (pagination.Page[services.NotificationView], error)
	MarkAllRead(ctx context.Context, caller string) (int64, error)
	UnreadCount(ctx context.Context, caller string) (int64, error)
	ETag(ctx context.Context, caller string) (string, error)
}

//
// Handler wiring
//

// Services bundles the application services the handlers depend on.
type Services struct {
	Friendships   FriendshipService
	Conversations ConversationService
	Messages      MessageService
	Groups        GroupService
	Posts         PostService
	Interactions  InteractionService
	Users         UserService
	Discovery     DiscoveryService
	Blocks        BlockService
	Notifications NotificationService
	// Realtime is optional; /ws answers 503 without it.
	Realtime Subscriber
}

// Handlers groups the HTTP endpoints of the API.
type Handlers struct {
	svc           Services
	defaultLocale string
}

// New constructs Handlers. defaultLocale is used when a request names none.
func New(svc Services, defaultLocale string) *Handlers {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	return &Handlers{svc: svc, defaultLocale: defaultLocale}
}

//
// DTOs shared by several endpoints
//

// PageQuery is the query string accepted by list endpoints.
type PageQuery struct {
	Cursor   string `form:"cursor"`
	NumItems int    `form:"num_items" binding:"omitempty,min=1,max=100"`
	Locale   string `form:"locale"    binding:"omitempty,bcp47_language_tag"`
}

// IDResponse is returned by endpoints that create a resource.
type IDResponse struct {
	ID string `json:"id" example:"6f1c2d7e-8a42-4f0e-9d0b-3c5f1e2a7b90"`
}

//
// Helpers
//

// userID returns the caller resolved by middleware.Authenticate.
func userID(c *gin.Context) string { return middleware.UserID(c) }

// pageQuery binds the paging query parameters. It writes a 400 and returns
// false when they are invalid.
func (h *Handlers) pageQuery(c *gin.Context) (pagination.PageRequest, string, bool) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, validationMessage(err))
		return pagination.PageRequest{}, "", false
	}
	return pagination.PageRequest{Cursor: q.Cursor, NumItems: q.NumItems}, h.locale(c, q.Locale), true
}

// locale picks the display locale: the explicit query value, then the first
// Accept-Language tag, then the configured default.
func (h *Handlers) locale(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language")); err == nil && len(tags) > 0 {
		return tags[0].String()
	}
	return h.defaultLocale
}

// bindJSON binds and validates the request body into dst. It writes a 400
// and returns false on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders binding errors as a short client message.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return "invalid request"
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required", "required_without":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

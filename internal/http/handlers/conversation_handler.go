// Conversation HTTP handlers.
//
//   - POST   /conversations               (open with a friend)
//   - GET    /conversations               (inbox, weak ETag on the first page)
//   - GET    /conversations/unread        (any unread?)
//   - GET    /conversations/{id}          (header info)
//   - DELETE /conversations/{id}          (delete for both sides)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
)

// CreateConversationRequest is the JSON payload for opening a conversation.
type CreateConversationRequest struct {
	OtherUserID string `json:"other_user_id" binding:"required,max=64" example:"b1946ac9-2f4d-4d2c-8a1e-2e6b5a1c9f10"`
}

// UnreadResponse reports whether the caller has unread conversations.
type UnreadResponse struct {
	HasUnread bool `json:"has_unread"`
}

// CreateConversation godoc
// @ID          createConversation
// @Summary     Open a conversation with a friend
// @Description Returns the shared conversation id; an existing conversation is returned as is.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateConversationRequest  true  "Other participant"
// @Success     201  {object}  handlers.IDResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not friends"
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := h.svc.Conversations.CreateConversation(c.Request.Context(), userID(c), req.OtherUserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.RecordResource(c, id)
	ok(c, http.StatusCreated, IDResponse{ID: id})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List the caller's conversations, most recent activity first
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Param       locale     query  string  false  "Display locale"
// @Param       If-None-Match  header  string  false  "First page only; 304 when the inbox is unchanged"
// @Success     200  {object}  pagination.Page[services.ConversationView]
// @Header      200  {string}  ETag  "Weak ETag of the first page"
// @Success     304  {string}  string  "Not Modified"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	ctx, uid := c.Request.Context(), userID(c)
	if req.Cursor == "" {
		// Best effort: a stats failure just skips the conditional check.
		if tag, err := h.svc.Conversations.InboxETag(ctx, uid); err == nil && notModified(c, tag, loc) {
			return
		}
	}
	page, err := h.svc.Conversations.ListConversations(ctx, uid, loc, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// HasUnreadConversations godoc
// @ID          hasUnreadConversations
// @Summary     Whether any conversation has unread messages
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UnreadResponse
// @Router      /conversations/unread [get]
func (h *Handlers) HasUnreadConversations(c *gin.Context) {
	has, err := h.svc.Conversations.HasUnreadConversations(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadResponse{HasUnread: has})
}

// ConversationInfo godoc
// @ID          conversationInfo
// @Summary     Conversation header
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       id      path   string  true   "Conversation ID"
// @Param       locale  query  string  false  "Display locale"
// @Success     200  {object}  services.ConversationInfo
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id} [get]
func (h *Handlers) ConversationInfo(c *gin.Context) {
	info, err := h.svc.Conversations.ConversationInfo(c.Request.Context(), userID(c), c.Param("id"), h.locale(c, c.Query("locale")))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, info)
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation and its messages for both participants
// @Tags        Conversations
// @Security    BearerAuth
// @Param       id  path  string  true  "Conversation ID"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	if err := h.svc.Conversations.DeleteConversation(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

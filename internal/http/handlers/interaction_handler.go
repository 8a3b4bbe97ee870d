// Interaction HTTP handlers: reactions and comments on posts.
//
//   - POST   /posts/{id}/reactions     (toggle/replace/add)
//   - GET    /posts/{id}/reactions
//   - POST   /posts/{id}/comments      (comment or reply)
//   - GET    /posts/{id}/comments      (top level)
//   - GET    /comments/{id}
//   - GET    /comments/{id}/replies
//   - DELETE /comments/{id}            (with descendants)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
	"github.com/tbourn/worldfriends-backend/internal/services"
)

// ReactRequest is the JSON payload for reacting to a post.
type ReactRequest struct {
	Emoji string `json:"emoji" binding:"required,max=32" example:"👍"`
}

// CommentRequest is the JSON payload for commenting. At least one of
// Content and Attachment is required.
type CommentRequest struct {
	Content       string `json:"content"         binding:"required_without=Attachment" example:"Looks amazing!"`
	Attachment    string `json:"attachment"      binding:"max=1024"`
	ReplyParentID string `json:"reply_parent_id"`
}

// DeleteCommentResponse reports how many comments were removed.
type DeleteCommentResponse struct {
	Deleted int `json:"deleted"`
}

// React godoc
// @ID          react
// @Summary     React to a post
// @Description Same emoji again removes the reaction; a different emoji replaces it.
// @Tags        Interactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                  true  "Post ID"
// @Param       body  body  handlers.ReactRequest  true  "Reaction"
// @Success     200  {object}  services.ReactResult
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /posts/{id}/reactions [post]
func (h *Handlers) React(c *gin.Context) {
	var req ReactRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Interactions.React(c.Request.Context(), userID(c), c.Param("id"), req.Emoji)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// Reactions godoc
// @ID          reactions
// @Summary     Reactions on a post
// @Tags        Interactions
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Post ID"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[services.ReactionView]
// @Router      /posts/{id}/reactions [get]
func (h *Handlers) Reactions(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Interactions.Reactions(c.Request.Context(), userID(c), c.Param("id"), loc, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// Comment godoc
// @ID          comment
// @Summary     Comment on a post or reply to a comment
// @Tags        Interactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Retry-safe key"
// @Param       id    path  string                    true  "Post ID"
// @Param       body  body  handlers.CommentRequest  true  "Comment"
// @Success     201  {object}  domain.Comment
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /posts/{id}/comments [post]
func (h *Handlers) Comment(c *gin.Context) {
	var req CommentRequest
	if !bindJSON(c, &req) {
		return
	}
	cm, err := h.svc.Interactions.Comment(c.Request.Context(), userID(c), services.CommentInput{
		PostID:        c.Param("id"),
		Content:       req.Content,
		Attachment:    req.Attachment,
		ReplyParentID: req.ReplyParentID,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.RecordResource(c, cm.ID)
	ok(c, http.StatusCreated, cm)
}

// Comments godoc
// @ID          comments
// @Summary     Top-level comments of a post
// @Tags        Interactions
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Post ID"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[services.CommentView]
// @Router      /posts/{id}/comments [get]
func (h *Handlers) Comments(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Interactions.Comments(c.Request.Context(), userID(c), c.Param("id"), loc, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// CommentByID godoc
// @ID          commentByID
// @Summary     A single comment
// @Tags        Interactions
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Comment ID"
// @Success     200  {object}  services.CommentView
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /comments/{id} [get]
func (h *Handlers) CommentByID(c *gin.Context) {
	cm, err := h.svc.Interactions.CommentByID(c.Request.Context(), userID(c), c.Param("id"), h.locale(c, c.Query("locale")))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, cm)
}

// Replies godoc
// @ID          replies
// @Summary     Direct replies to a comment
// @Tags        Interactions
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Comment ID"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[services.CommentView]
// @Router      /comments/{id}/replies [get]
func (h *Handlers) Replies(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Interactions.Replies(c.Request.Context(), userID(c), c.Param("id"), loc, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Delete a comment and all of its replies
// @Tags        Interactions
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Comment ID"
// @Success     200  {object}  handlers.DeleteCommentResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /comments/{id} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	n, err := h.svc.Interactions.DeleteComment(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteCommentResponse{Deleted: n})
}

// Friendship HTTP handlers.
//
//   - POST   /friendships               (send request)
//   - POST   /friendships/{id}/accept   (accept)
//   - POST   /friendships/{id}/reject   (reject)
//   - GET    /friendships/requests      (pending requests)
//   - GET    /friends                   (friend list)
//   - DELETE /friends/{userId}          (unfriend)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
)

// SendFriendRequest is the JSON payload for a new friend request.
type SendFriendRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required,max=64" example:"b1946ac9-2f4d-4d2c-8a1e-2e6b5a1c9f10"`
}

// SendFriendRequest godoc
// @ID          sendFriendRequest
// @Summary     Send a friend request
// @Tags        Friendships
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Retry-safe key"
// @Param       body  body  handlers.SendFriendRequest  true  "Receiver"
// @Success     201  {object}  domain.Friendship
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Blocked or incompatible"
// @Failure     409  {object}  handlers.ErrorResponse  "Already friends or pending"
// @Router      /friendships [post]
func (h *Handlers) SendFriendRequest(c *gin.Context) {
	var req SendFriendRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.svc.Friendships.SendRequest(c.Request.Context(), userID(c), req.ReceiverID)
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.RecordResource(c, f.ID)
	ok(c, http.StatusCreated, f)
}

// AcceptFriendRequest godoc
// @ID          acceptFriendRequest
// @Summary     Accept a pending friend request addressed to the caller
// @Tags        Friendships
// @Security    BearerAuth
// @Param       id  path  string  true  "Friendship ID"
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /friendships/{id}/accept [post]
func (h *Handlers) AcceptFriendRequest(c *gin.Context) {
	if err := h.svc.Friendships.AcceptRequest(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// RejectFriendRequest godoc
// @ID          rejectFriendRequest
// @Summary     Reject a pending friend request addressed to the caller
// @Tags        Friendships
// @Security    BearerAuth
// @Param       id  path  string  true  "Friendship ID"
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /friendships/{id}/reject [post]
func (h *Handlers) RejectFriendRequest(c *gin.Context) {
	if err := h.svc.Friendships.RejectRequest(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// RemoveFriend godoc
// @ID          removeFriend
// @Summary     Unfriend a user
// @Description Deletes the friendship, the pair's conversation and their letters.
// @Tags        Friendships
// @Security    BearerAuth
// @Param       userId  path  string  true  "Friend's user ID"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /friends/{userId} [delete]
func (h *Handlers) RemoveFriend(c *gin.Context) {
	if err := h.svc.Friendships.RemoveFriend(c.Request.Context(), userID(c), c.Param("userId")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// ListFriends godoc
// @ID          listFriends
// @Summary     List the caller's friends
// @Tags        Friendships
// @Produce     json
// @Security    BearerAuth
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Param       locale     query  string  false  "Display locale"
// @Success     200  {object}  pagination.Page[services.FriendshipView]
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /friends [get]
func (h *Handlers) ListFriends(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Friendships.ListFriends(c.Request.Context(), userID(c), loc, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// ListFriendRequests godoc
// @ID          listFriendRequests
// @Summary     List pending friend requests
// @Description Both directions by default; received=true keeps only requests addressed to the caller.
// @Tags        Friendships
// @Produce     json
// @Security    BearerAuth
// @Param       received   query  bool    false  "Only received requests"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[services.FriendshipView]
// @Router      /friendships/requests [get]
func (h *Handlers) ListFriendRequests(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	received := c.Query("received") == "true"
	page, err := h.svc.Friendships.ListRequests(c.Request.Context(), userID(c), loc, received, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

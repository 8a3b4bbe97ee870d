// Group HTTP handlers.
//
//   - POST   /groups                 (create)
//   - GET    /groups                 (caller's groups)
//   - GET    /groups/{id}            (details)
//   - DELETE /groups/{id}            (creator only)
//   - POST   /groups/{id}/leave      (leave)
//   - GET    /groups/{id}/members    (member page)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
	"github.com/tbourn/worldfriends-backend/internal/services"
)

// CreateGroupRequest is the JSON payload for creating a group.
type CreateGroupRequest struct {
	Title       string   `json:"title"       binding:"required,max=200" example:"Spanish practice"`
	Description string   `json:"description" binding:"max=2000"`
	// Banner is a blob key returned by the upload flow.
	Banner    string   `json:"banner"     binding:"max=1024"`
	MemberIDs []string `json:"member_ids" binding:"max=256,dive,required,max=64"`
}

// CreateGroup godoc
// @ID          createGroup
// @Summary     Create a group with the caller as admin
// @Tags        Groups
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Retry-safe key"
// @Param       body  body  handlers.CreateGroupRequest  true  "Group"
// @Success     201  {object}  domain.Group
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown member"
// @Router      /groups [post]
func (h *Handlers) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	g, err := h.svc.Groups.CreateGroup(c.Request.Context(), userID(c), services.CreateGroupInput{
		Title:       req.Title,
		Description: req.Description,
		Banner:      req.Banner,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.RecordResource(c, g.ID)
	ok(c, http.StatusCreated, g)
}

// ListGroups godoc
// @ID          listGroups
// @Summary     The caller's groups with unread counts
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[services.GroupListItem]
// @Router      /groups [get]
func (h *Handlers) ListGroups(c *gin.Context) {
	req, _, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Groups.ListGroups(c.Request.Context(), userID(c), req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// GroupInfo godoc
// @ID          groupInfo
// @Summary     Group details
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Group ID"
// @Success     200  {object}  services.GroupDetails
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /groups/{id} [get]
func (h *Handlers) GroupInfo(c *gin.Context) {
	g, err := h.svc.Groups.GroupInfo(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, g)
}

// DeleteGroup godoc
// @ID          deleteGroup
// @Summary     Delete a group (creator only)
// @Tags        Groups
// @Security    BearerAuth
// @Param       id  path  string  true  "Group ID"
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /groups/{id} [delete]
func (h *Handlers) DeleteGroup(c *gin.Context) {
	if err := h.svc.Groups.DeleteGroup(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// LeaveGroup godoc
// @ID          leaveGroup
// @Summary     Leave a group
// @Tags        Groups
// @Security    BearerAuth
// @Param       id  path  string  true  "Group ID"
// @Success     204
// @Failure     409  {object}  handlers.ErrorResponse  "Creator cannot leave"
// @Router      /groups/{id}/leave [post]
func (h *Handlers) LeaveGroup(c *gin.Context) {
	if err := h.svc.Groups.LeaveGroup(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// GroupMembers godoc
// @ID          groupMembers
// @Summary     Members of a group
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Group ID"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Param       locale     query  string  false  "Display locale"
// @Success     200  {object}  pagination.Page[services.UserSummary]
// @Router      /groups/{id}/members [get]
func (h *Handlers) GroupMembers(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Groups.GroupMembers(c.Request.Context(), userID(c), c.Param("id"), loc, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

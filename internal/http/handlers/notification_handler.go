// Notification HTTP handlers.
//
//   - GET  /notifications               (newest first)
//   - GET  /notifications/unread-count
//   - POST /notifications/read          (mark all read)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UnreadCountResponse carries the number of unread notifications.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// MarkReadResponse carries the number of notifications marked read.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     The caller's notifications, newest first
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Param       locale     query  string  false  "Display locale"
// @Param       If-None-Match  header  string  false  "First page only"
// @Success     200  {object}  pagination.Page[services.NotificationView]
// @Success     304  {string}  string  "Not Modified"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	ctx, uid := c.Request.Context(), userID(c)
	if req.Cursor == "" {
		if tag, err := h.svc.Notifications.ETag(ctx, uid); err == nil && notModified(c, tag, loc) {
			return
		}
	}
	page, err := h.svc.Notifications.List(ctx, uid, loc, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// UnreadNotifications godoc
// @ID          unreadNotifications
// @Summary     Number of unread notifications
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UnreadCountResponse
// @Router      /notifications/unread-count [get]
func (h *Handlers) UnreadNotifications(c *gin.Context) {
	n, err := h.svc.Notifications.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{Count: n})
}

// MarkNotificationsRead godoc
// @ID          markNotificationsRead
// @Summary     Mark every notification read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MarkReadResponse
// @Router      /notifications/read [post]
func (h *Handlers) MarkNotificationsRead(c *gin.Context) {
	n, err := h.svc.Notifications.MarkAllRead(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Updated: n})
}

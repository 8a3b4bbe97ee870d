// User HTTP handlers: the caller's account, profiles, discovery and blocks.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/services"
)

// DiscoverQuery holds the optional discovery filters.
type DiscoverQuery struct {
	Country          string `form:"country"           binding:"omitempty,len=2,alpha"`
	SpokenLanguage   string `form:"spoken_language"   binding:"omitempty,max=16"`
	LearningLanguage string `form:"learning_language" binding:"omitempty,max=16"`
	Query            string `form:"q"                 binding:"omitempty,max=200"`
}

// Me godoc
// @ID          me
// @Summary     The caller's own account
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.CurrentUserView
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /me [get]
func (h *Handlers) Me(c *gin.Context) {
	v, err := h.svc.Users.CurrentProfile(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// Profile godoc
// @ID          profile
// @Summary     A user's profile as seen by the caller
// @Description outcome is visible, own_profile or privacy_restricted.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       id      path   string  true   "User ID"
// @Param       locale  query  string  false  "Display locale"
// @Success     200  {object}  services.ProfileView
// @Failure     403  {object}  handlers.ErrorResponse  "Blocked"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /users/{id} [get]
func (h *Handlers) Profile(c *gin.Context) {
	v, err := h.svc.Users.Profile(c.Request.Context(), userID(c), c.Param("id"), h.locale(c, c.Query("locale")))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// Discover godoc
// @ID          discover
// @Summary     People the caller may befriend
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       country            query  string  false  "ISO 3166-1 alpha-2 country"
// @Param       spoken_language    query  string  false  "Spoken language code"
// @Param       learning_language  query  string  false  "Learning language code"
// @Param       q                  query  string  false  "Free text re-ranking the page"
// @Param       cursor             query  string  false  "Continue cursor"
// @Param       num_items          query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[services.DiscoverCard]
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /discover [get]
func (h *Handlers) Discover(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	var q DiscoverQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, validationMessage(err))
		return
	}
	page, err := h.svc.Discovery.Discover(c.Request.Context(), userID(c), loc, services.DiscoverInput{
		Country:          q.Country,
		SpokenLanguage:   q.SpokenLanguage,
		LearningLanguage: q.LearningLanguage,
		Query:            q.Query,
	}, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// BlockUser godoc
// @ID          blockUser
// @Summary     Block a user
// @Description The blocked user is notified; friend requests between the pair are refused while the block stands.
// @Tags        Users
// @Security    BearerAuth
// @Param       id  path  string  true  "User ID"
// @Success     204
// @Failure     409  {object}  handlers.ErrorResponse  "Already blocked"
// @Router      /users/{id}/block [post]
func (h *Handlers) BlockUser(c *gin.Context) {
	if err := h.svc.Blocks.BlockUser(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// UnblockUser godoc
// @ID          unblockUser
// @Summary     Unblock a user
// @Tags        Users
// @Security    BearerAuth
// @Param       id  path  string  true  "User ID"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse  "Not blocked"
// @Router      /users/{id}/block [delete]
func (h *Handlers) UnblockUser(c *gin.Context) {
	if err := h.svc.Blocks.UnblockUser(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code
	Code string `json:"code" example:"not_found"`
	// Safe to show to users
	Message string `json:"message" example:"post not found"`
}

// fail aborts with an ErrorResponse. Server-side failures are logged with the
// request-scoped logger; client errors are already in the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("route", c.FullPath()).
			Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer NoRoute/NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }

// notModified sets a weak ETag built from tag and loc and writes 304 when the
// request's If-None-Match carries the same value. An empty tag is a no-op.
// Lists revalidate rather than going uncached, so the no-store default from
// the security middleware is replaced.
func notModified(c *gin.Context, tag, loc string) bool {
	if tag == "" {
		return false
	}
	etag := strings.TrimSuffix(tag, `"`) + ":" + loc + `"`
	c.Header("ETag", etag)
	c.Header("Cache-Control", "private, no-cache")
	for _, cand := range strings.Split(c.GetHeader("If-None-Match"), ",") {
		if cand = strings.TrimSpace(cand); cand == etag || cand == "*" {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}

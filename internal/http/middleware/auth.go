// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. A valid token resolves to
// a user id which is stored in the Gin context under "userID", propagated on
// the request context (auth.WithUserID) and attached to the request-scoped
// logger.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/auth"
)

// CtxKeyUserID is the Gin context key holding the authenticated user id.
const CtxKeyUserID = "userID"

// TokenResolver turns a raw bearer token into a user id.
type TokenResolver interface {
	Resolve(token string) (string, error)
}

// AuthOptions tunes Authenticate.
type AuthOptions struct {
	// QueryParam, when set, is consulted if no Authorization header is
	// present. Browsers cannot set headers on WebSocket upgrades.
	QueryParam string
}

// Authenticate rejects requests without a resolvable bearer token with 401.
func Authenticate(r TokenResolver, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" && opts.QueryParam != "" {
			token = strings.TrimSpace(c.Query(opts.QueryParam))
		}
		uid, err := r.Resolve(token)
		if err != nil || uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "missing or invalid bearer token",
			})
			return
		}

		c.Set(CtxKeyUserID, uid)
		c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), uid))
		attachLogger(c, LoggerFrom(c).With().Str("user_id", uid).Logger())
		c.Next()
	}
}

// UserID returns the authenticated user id, read from the gin context and
// then the request context, or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if c.Request == nil {
		return ""
	}
	return auth.UserIDFrom(c.Request.Context())
}

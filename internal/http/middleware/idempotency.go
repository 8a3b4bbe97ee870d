// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for unsafe HTTP methods. It
// validates an Idempotency-Key request header and scopes it to the caller
// and the matched route (method, route pattern and path parameters). When a
// completed request with the same key and scope is on record, the stored
// status and resource id are replayed without running the handler again.
// Otherwise the handler runs and, if it succeeded and called
// RecordResource, the outcome is persisted for later retries.
//
// Install it after Authenticate (the scope includes the user) and before the
// rate limiter so replays do not consume tokens.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations (e.g., POST).
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on replayed responses.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemScope    = "idem.scope"
	ctxKeyIdemResource = "idem.resource"
)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// RecordResource tells IdempotencyValidator which resource the current
// request produced. Handlers call it on success; it is a no-op when the
// request carried no Idempotency-Key.
func RecordResource(c *gin.Context, resourceID string) {
	if _, ok := GetIdempotencyKey(c); ok {
		c.Set(ctxKeyIdemResource, resourceID)
	}
}

// IdempotencyOptions configures header validation behavior for
// IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative RFC7230-like
	// token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyStore persists completed requests. Lookup reports found=false
// for unknown or expired records; TTL enforcement belongs to the store.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string, now time.Time) (resourceID string, status int, found bool, err error)
	Save(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

// ReplayResponse is the body written for a replayed request.
type ReplayResponse struct {
	ID       string `json:"id"`
	Replayed bool   `json:"replayed"`
}

// Scope identifies the logical operation of the current request: the
// method, the route pattern and the path parameter values in order.
func Scope(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	parts := []string{c.Request.Method, route}
	for _, p := range c.Params {
		parts = append(parts, p.Value)
	}
	return strings.Join(parts, " ")
}

// IdempotencyValidator validates the Idempotency-Key header (if present) and
// serves or records replays through store.
//
// Behavior:
//   - Safe methods and requests without the header pass through untouched.
//   - A malformed header is rejected with 400.
//   - A stored replay is answered with its original status, the resource id
//     and the Idempotency-Replayed header; the handler does not run.
//   - Lookup and save failures are logged and never block the request.
func IdempotencyValidator(opts IdempotencyOptions, store IdempotencyStore) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		uid := UserID(c)
		scope := Scope(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)
		if store == nil || uid == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		resID, status, found, err := store.Lookup(ctx, uid, scope, key, time.Now().UTC())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		}
		if found {
			idemReplays.WithLabelValues(routeLabel(c)).Inc()
			c.Header(HeaderIdempotencyReplayed, "true")
			c.AbortWithStatusJSON(status, ReplayResponse{ID: resID, Replayed: true})
			return
		}

		c.Next()

		v, ok := c.Get(ctxKeyIdemResource)
		if !ok {
			return
		}
		status = c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		resID, _ = v.(string)
		if err := store.Save(ctx, uid, scope, key, resID, status); err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("idempotency save failed")
		}
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

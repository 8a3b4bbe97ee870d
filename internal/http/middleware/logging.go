// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Request correlation and access logging:
//
//   - RequestID reuses a well-formed inbound X-Request-ID or mints a UUID.
//   - Logger writes one structured access line per request and attaches a
//     request-scoped zerolog.Logger to both the gin context and the request
//     context, so services reach it through log.Ctx(ctx).
//   - Recovery turns panics into the standard JSON 500 envelope.
//
// Mount order: RequestID, Logger (or RedactingLogger), Recovery.
package middleware

import (
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey      = "requestID"
	requestIDHeader   = "X-Request-ID"
	maxRequestIDLen   = 128
	maxQueryLogLength = 2048
	ctxKeyLogger      = "logger"
)

// Query parameters whose values never reach a log line.
var alwaysMaskedParams = []string{"access_token"}

// RequestID stores the correlation id under "requestID" and echoes it in
// X-Request-ID. Inbound ids longer than 128 bytes or containing anything
// beyond [A-Za-z0-9._-] are replaced so they cannot forge log fields.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// Logger writes an access log per request: route, caller, status, latency,
// sizes and the Idempotency-Key when present. Level follows the outcome
// (error for 5xx or gin errors, warn for 4xx, info otherwise). Token query
// parameters are masked.
func Logger() gin.HandlerFunc {
	mask := queryMasker(nil)
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", routeOrURL(c)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Logger()
		attachLogger(c, l)

		c.Next()

		ctx := l.With().
			Str("user_id", UserID(c)).
			Str("query", truncate(mask(c.Request.URL.RawQuery), maxQueryLogLength)).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size())
		if key := c.GetHeader(HeaderIdempotencyKey); key != "" {
			ctx = ctx.Str("idempotency_key", truncate(key, 200))
		}
		if c.IsWebsocket() {
			ctx = ctx.Bool("websocket", true)
		}
		ev := ctx.Logger()
		accessEvent(&ev, c).Msg("request")
	}
}

// accessEvent opens the access line at the level the outcome deserves.
func accessEvent(l *zerolog.Logger, c *gin.Context) *zerolog.Event {
	status := c.Writer.Status()
	switch {
	case len(c.Errors) > 0:
		return l.Error().Str("errors", c.Errors.String())
	case status >= 500:
		return l.Error()
	case status >= 400:
		return l.Warn()
	}
	return l.Info()
}

// Recovery logs the panic with its stack and answers 500 with the standard
// error envelope when nothing was written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", asString(rid)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": asString(rid),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// none was attached.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func attachLogger(c *gin.Context, l zerolog.Logger) {
	c.Set(ctxKeyLogger, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

// queryMasker returns a func replacing the values of access_token and the
// given extra parameters with "[REDACTED]". Queries without such parameters
// are returned verbatim.
func queryMasker(extra []string) func(string) string {
	params := map[string]struct{}{}
	for _, p := range append(append([]string{}, alwaysMaskedParams...), extra...) {
		if p = strings.TrimSpace(p); p != "" {
			params[p] = struct{}{}
		}
	}
	return func(raw string) string {
		if raw == "" {
			return raw
		}
		q, err := url.ParseQuery(raw)
		if err != nil {
			return "[REDACTED:unparsable]"
		}
		masked := false
		for k := range q {
			if _, ok := params[k]; ok {
				q[k] = []string{"[REDACTED]"}
				masked = true
			}
		}
		if !masked {
			return raw
		}
		return q.Encode()
	}
}

func routeOrURL(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// SecurityHeaders attaches the hardening headers every API response carries.
// Responses are uncacheable by default; handlers that serve conditional GETs
// replace Cache-Control with a revalidating policy of their own.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Headers browser clients need to read from API responses.
var defaultExposed = []string{"X-Request-ID", "ETag", HeaderIdempotencyReplayed, "Retry-After"}

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // default 180 days
	NoStore      bool          // Cache-Control: no-store unless a handler overrides it
	EnablePolicy bool          // Permissions-Policy and X-Permitted-Cross-Domain-Policies
	// ExposeHeaders are appended to the default Access-Control-Expose-Headers.
	ExposeHeaders []string
}

// SecurityHeaders returns middleware that sets:
//
//	X-Content-Type-Options: nosniff
//	X-Frame-Options: DENY
//	Referrer-Policy: no-referrer
//	Access-Control-Expose-Headers: X-Request-ID, ETag, Idempotency-Replayed, Retry-After
//
// plus the optional feature policies, no-store caching and, for HTTPS
// requests only, Strict-Transport-Security.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 180 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"
	exposed := append(append([]string{}, defaultExposed...), opt.ExposeHeaders...)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		exposeHeaders(h, exposed)

		c.Next()
	}
}

// exposeHeaders merges names into Access-Control-Expose-Headers without
// duplicating what CORS or an earlier middleware already listed.
func exposeHeaders(h http.Header, names []string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	have := map[string]bool{}
	for _, n := range strings.Split(cur, ",") {
		if n = strings.TrimSpace(n); n != "" {
			have[strings.ToLower(n)] = true
		}
	}
	for _, n := range names {
		if have[strings.ToLower(n)] {
			continue
		}
		have[strings.ToLower(n)] = true
		if cur == "" {
			cur = n
		} else {
			cur += ", " + n
		}
	}
	if cur != "" {
		h.Set(hdr, cur)
	}
}

// isHTTPS reports whether the request arrived over TLS directly or through a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

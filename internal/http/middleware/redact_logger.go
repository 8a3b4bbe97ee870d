package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions extends what RedactingLogger masks outright.
type RedactOptions struct {
	MaskHeaders     []string // merged with Authorization, Cookie, Set-Cookie, Sec-WebSocket-Protocol
	MaskQueryParams []string // merged with access_token and q
}

var (
	defaultMaskedHeaders = []string{"Authorization", "Cookie", "Set-Cookie", "Sec-WebSocket-Protocol"}
	// Free-text discovery searches tend to carry people's names.
	defaultMaskedQuery = []string{"q"}
)

type scrubRule struct {
	re   *regexp.Regexp
	repl string
}

// contactScrub replaces contact details and UUIDs found in free text. UUIDs
// go first so the phone rule never sees their digit runs.
var contactScrub = []scrubRule{
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-8][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	{regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\b\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

func scrub(s string) string {
	for _, r := range contactScrub {
		if s == "" {
			break
		}
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return s
}

// RedactingLogger is the access logger used when LOG_REDACT is on. Besides
// the fields Logger writes it records request headers, with credentials
// masked and contact details scrubbed from every other value. Bodies are
// never logged.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := make(map[string]struct{}, len(defaultMaskedHeaders)+len(opts.MaskHeaders))
	for _, h := range append(append([]string{}, defaultMaskedHeaders...), opts.MaskHeaders...) {
		if h = strings.TrimSpace(h); h != "" {
			masked[strings.ToLower(h)] = struct{}{}
		}
	}
	maskQuery := queryMasker(append(append([]string{}, defaultMaskedQuery...), opts.MaskQueryParams...))

	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		reqID := asString(rid)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		// Handler and service logs carry the request id and nothing else.
		attachLogger(c, log.With().Str("request_id", reqID).Logger())

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = scrub(strings.Join(vv, ", "))
		}
		query := scrub(maskQuery(c.Request.URL.RawQuery))

		c.Next()

		l := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", routeOrURL(c)).
			Str("user_id", UserID(c)).
			Str("query", truncate(query, maxQueryLogLength)).
			Int("status", c.Writer.Status()).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Logger()
		accessEvent(&l, c).Msg("request")
	}
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the API's access logger. It scrubs
// personal data before emitting anything: emails, Pakistani mobile numbers,
// 13-digit CNICs and UUID-shaped identifiers in query strings and header
// values, plus the access_token query parameter and credential headers.
// Request and response bodies are never logged.
package middleware

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger.
//
// MaskHeaders lists extra header names whose values are replaced with
// "[REDACTED]", merged with Authorization, Cookie and Set-Cookie.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	uuidRE = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-8][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	// CNIC, with or without dashes (35202-1234567-1).
	cnicRE  = regexp.MustCompile(`\b\d{5}-?\d{7}-?\d\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Local (03001234567) and international (+92 300 1234567) mobile numbers.
	phoneRE = regexp.MustCompile(`(?:\+92[ -]?|\b0)3\d{2}[ -]?\d{7}\b`)
)

// Redact scrubs personal data from s. UUIDs go first so the digit patterns
// never match inside an identifier, and CNICs before phone numbers.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = cnicRE.ReplaceAllString(s, "[REDACTED:cnic]")
	s = phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return s
}

// redactQuery masks access_token and scrubs the remaining values. The
// result is for logs only and is not re-escaped.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return Redact(raw)
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range q[k] {
			if k == QueryAccessToken {
				v = "[REDACTED]"
			}
			parts = append(parts, Redact(k)+"="+Redact(v))
		}
	}
	return strings.Join(parts, "&")
}

// RedactingLogger logs each request with personal data scrubbed and attaches
// a request-scoped logger for handlers (see LoggerFrom). 5xx log at error,
// 4xx at warn, everything else at info.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := routeOf(c)
		safeQuery := truncate(redactQuery(c.Request.URL.RawQuery), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = Redact(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		scoped := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &scoped)

		c.Next()

		status := c.Writer.Status()
		ev := scoped.Info()
		switch {
		case status >= 500:
			ev = scoped.Error()
		case status >= 400:
			ev = scoped.Warn()
		}
		ev.
			Str("query", safeQuery).
			Bool("authenticated", UserID(c) != "").
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

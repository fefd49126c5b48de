// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for unsafe HTTP methods. It
// validates an Idempotency-Key request header, asks a lookup whether the
// (user, scope, key) triple already completed, and annotates the request
// context so handlers can:
//   - read the normalized key (GetIdempotencyKey) and scope (IdempotencyScope)
//   - detect replayed requests (IsReplay)
//
// Replays also bypass the rate limiter. The scope names the resource
// collection a key belongs to ("jobs", "job:<id>:bids"), so the same key may
// be reused against different collections.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyScope returns the scope computed for the request's key.
func IdempotencyScope(c *gin.Context) string {
	v, _ := c.Get(ctxKeyIdemScope)
	s, _ := v.(string)
	return s
}

// IsReplay reports whether the key already completed for this user and scope.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ScopeFunc derives the idempotency scope of a request. An empty scope
// disables idempotency handling for the request.
type ScopeFunc func(*gin.Context) string

// ScopeByRoute maps POST /jobs to "jobs" and POST /jobs/:id/bids to
// "job:<id>:bids". Other routes get no scope.
func ScopeByRoute(basePath string) ScopeFunc {
	jobs := basePath + "/jobs"
	bids := basePath + "/jobs/:id/bids"
	return func(c *gin.Context) string {
		switch c.FullPath() {
		case jobs:
			return "jobs"
		case bids:
			return "job:" + c.Param("id") + ":bids"
		}
		return ""
	}
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope derives the scope; nil means the route path.
	Scope ScopeFunc
	// Now is the lookup clock; nil means time.Now in UTC.
	Now func() time.Time
}

// IdempotencyLookup reports whether a still-valid result exists for
// (userID, scope, key). Lookup errors do not block the request.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present,
// stashes key and scope, and marks replays. It never serves cached payloads
// itself; handlers decide how to answer a replay.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	scopeOf := opts.Scope
	if scopeOf == nil {
		scopeOf = func(c *gin.Context) string { return c.FullPath() }
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
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
		scope := scopeOf(c)
		if scope == "" {
			c.Next()
			return
		}
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if uid := UserID(c); lookup != nil && uid != "" {
			if exists, _ := lookup(c.Request.Context(), uid, scope, key, now()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

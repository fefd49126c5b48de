// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity from a bearer token. Authenticate
// runs globally so that downstream middleware (idempotency lookup, rate
// limiting, logging) can key on the user; RequireAuth guards the routes that
// need a signed-in caller.
//
// Tokens are read from the Authorization header ("Bearer <token>") or, for
// websocket upgrades where browsers cannot set headers, from the
// access_token query parameter.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxKeyUserID    = "userID"
	ctxKeyPrincipal = "session"

	// QueryAccessToken is the query parameter accepted in place of the
	// Authorization header.
	QueryAccessToken = "access_token"
)

// Principal is an authenticated caller.
type Principal interface {
	Subject() string
}

// TokenResolver turns a raw token into a Principal. A returned error's
// message is shown to the client.
type TokenResolver func(ctx context.Context, token string) (Principal, error)

// BearerToken extracts the raw token from the request, or "".
func BearerToken(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return strings.TrimSpace(c.Query(QueryAccessToken))
}

// Authenticate resolves a presented token and stores the principal and its
// user ID in the context. Requests without a token pass through anonymous;
// a presented but invalid token is rejected with 401.
func Authenticate(resolve TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := BearerToken(c)
		if tok == "" || resolve == nil {
			c.Next()
			return
		}
		p, err := resolve(c.Request.Context(), tok)
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}
		c.Set(ctxKeyPrincipal, p)
		c.Set(ctxKeyUserID, p.Subject())
		c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortUnauthorized(c, "sign in required")
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ctxKeyPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// UserID returns the authenticated user ID, or "".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="sahulat"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "auth_failed",
		"message":    msg,
	})
}

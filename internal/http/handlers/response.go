// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints:
// the structured error envelope, the mapping from service errors to HTTP
// status and code, and small helpers for success responses.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "conflict",
//	  "message": "job is not open for bidding"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sahulathub/sahulat-hub/internal/http/middleware"
	"github.com/sahulathub/sahulat-hub/internal/observability"
	"github.com/sahulathub/sahulat-hub/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"job not found"`
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg)
		if id := observability.TraceID(c.Request.Context()); id != "" {
			ev = ev.Str("trace_id", id)
		}
		ev.Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr translates a service error into the error envelope. Store failures
// log their underlying cause; the client only sees the generic message.
func failErr(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		if cause := errors.Unwrap(err); cause != nil {
			middleware.LoggerFrom(c).Error().Err(cause).Msg("store failure")
		}
	}
	msg := err.Error()
	if code == ErrCodeInternal {
		msg = "internal server error"
	}
	fail(c, status, code, msg)
}

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, string) {
	var (
		ve *services.ValidationError
		we *services.RemoteWriteError
		re *services.RemoteReadError
		ae *services.AuthError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.As(err, &ae):
		return http.StatusUnauthorized, ErrCodeAuthFailed
	case errors.Is(err, services.ErrJobNotFound),
		errors.Is(err, services.ErrBidNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrNotCustomer),
		errors.Is(err, services.ErrNotProvider),
		errors.Is(err, services.ErrNotJobOwner),
		errors.Is(err, services.ErrNotParticipant):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, services.ErrJobNotOpen),
		errors.Is(err, services.ErrJobAlreadyAwarded),
		errors.Is(err, services.ErrNoAcceptedBid),
		errors.Is(err, services.ErrJobNotCompleted),
		errors.Is(err, services.ErrAlreadyReviewed):
		return http.StatusConflict, ErrCodeConflict
	case errors.As(err, &we):
		return http.StatusInternalServerError, ErrCodeWriteFailed
	case errors.As(err, &re):
		return http.StatusInternalServerError, ErrCodeReadFailed
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

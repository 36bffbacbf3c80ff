// Package handlers provides HTTP handler implementations for the webhook
// surface.
//
// This file defines the response utilities shared by all endpoints: a
// structured error envelope with a stable machine-readable code, and small
// helpers that keep success and failure shapes uniform.
//
// Example error response:
//
//	HTTP/1.1 401 Unauthorized
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_signature",
//	  "message": "signature verification failed"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/finchat/go-finance-bot/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code"`
	// Human-readable message (safe to show to users)
	Message string `json:"message"`
}

// fail aborts the request with a structured error. Server errors (>= 500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), used by router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// Package handlers defines HTTP-layer error codes used across all endpoints.
//
// Codes are lowercase snake_case and give clients a stable, machine-readable
// taxonomy supplementing the HTTP status. Handlers pick the most specific
// code and pass it to fail() with the status and message.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeBadSignature = "invalid_signature"
	ErrCodeBadHandshake = "verification_failed"
)

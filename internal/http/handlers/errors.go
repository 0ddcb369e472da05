// Package handlers defines HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable; clients branch on
// them for programmatic error handling. Handlers select the most specific
// matching code and pass it to fail() with the corresponding status.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeInvalidTransition = "invalid_state_transition"
	ErrCodeThreadClosed      = "thread_closed"
	ErrCodeValidation        = "validation_error"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)

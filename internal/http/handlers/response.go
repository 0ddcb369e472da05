// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all
// endpoints: the structured error envelope, the service-error translator,
// and helpers for common success shapes. All failure paths go through
// fail()/failErr() so every error response carries a stable machine-readable
// code and the request correlation ID.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_state_transition",
//	  "message": "invalid state transition from \"closed\" to \"open\"",
//	  "details": {"from": "closed", "to": "open"}
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supportdesk/conversation-engine/internal/auth"
	"github.com/supportdesk/conversation-engine/internal/http/middleware"
	"github.com/supportdesk/conversation-engine/internal/repo"
	"github.com/supportdesk/conversation-engine/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
	// Details carries structured context for some codes, such as the from/to
	// states of a rejected transition or per-field validation problems.
	Details map[string]any `json:"details,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// newPagination derives the metadata block from a page request and total.
func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	failDetails(c, status, code, msg, nil)
}

// failDetails is fail with an optional structured details block.
func failDetails(c *gin.Context, status int, code, msg string, details map[string]any) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
		Details:   details,
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

// Fail is the exported variant of fail(), for router-level handlers such as
// NoRoute and NoMethod.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr translates a service-layer error into the matching HTTP response.
// Unrecognized errors become a 500 with a generic message so internal detail
// never leaks to clients.
func failErr(c *gin.Context, err error) {
	var stErr *services.StateTransitionError
	var valErr *services.ValidationError

	switch {
	case errors.Is(err, services.ErrTicketNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, repo.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.As(err, &stErr):
		failDetails(c, http.StatusConflict, ErrCodeInvalidTransition, stErr.Error(),
			map[string]any{"from": stErr.From, "to": stErr.To})
	case errors.Is(err, services.ErrThreadClosed):
		fail(c, http.StatusConflict, ErrCodeThreadClosed, "conversation is closed")
	case errors.Is(err, services.ErrActiveSessionExists):
		fail(c, http.StatusConflict, ErrCodeConflict, "an active chat session already exists")
	case errors.Is(err, services.ErrInternalNotAllowed),
		errors.Is(err, auth.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "forbidden")
	case errors.Is(err, auth.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
	case errors.As(err, &valErr):
		details := make(map[string]any, len(valErr.Fields))
		for k, v := range valErr.Fields {
			details[k] = v
		}
		failDetails(c, http.StatusBadRequest, ErrCodeValidation, "validation failed", details)
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// ok writes a success JSON response with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

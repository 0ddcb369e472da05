// Package services defines the business logic for tickets, chat sessions,
// and the conversation sync protocol. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTicketNotFound indicates that the requested ticket does not exist or
	// is not visible to the current caller. The two cases are deliberately
	// indistinguishable.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrSessionNotFound indicates that the requested chat session does not
	// exist or is not visible to the current caller.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrThreadClosed is returned when a send is attempted on a thread in a
	// terminal state (closed ticket, ended or abandoned chat).
	ErrThreadClosed = errors.New("conversation is closed")

	// ErrInternalNotAllowed is returned when a non-admin sender flags a
	// message as internal.
	ErrInternalNotAllowed = errors.New("internal messages are admin-only")

	// ErrActiveSessionExists is returned by StartSession when session reuse
	// is disabled by policy and the customer already has an active session.
	ErrActiveSessionExists = errors.New("an active chat session already exists")
)

// StateTransitionError reports a status change that violates the ticket
// state machine. Both states are carried so the UI can explain the rejection.
type StateTransitionError struct {
	From string
	To   string
}

// Error implements the error interface.
func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %q to %q", e.From, e.To)
}

// ValidationError aggregates per-field input problems. Handlers surface the
// field map verbatim so clients can highlight individual inputs.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface, listing fields deterministically.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// newValidationError builds a single-field ValidationError.
func newValidationError(field, problem string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: problem}}
}

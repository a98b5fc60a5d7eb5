// Package errors defines the typed failures the portal returns to its
// clients. Handler-visible errors are *Error values with a stable code,
// an HTTP status, and a human message; anything else is normalised to
// INTERNAL_ERROR at the response boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

// Unwrap exposes the wrapped cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds an Error with the given code, status, and message.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap builds an Error around an underlying cause.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Sentinels for the failures the portal distinguishes. Services return
// them directly (so errors.Is matches) or via Clone for a one-off message.
var (
	// Request and auth failures.
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Upstream and cache plumbing.
	ErrUpstream  = New("UPSTREAM_ERROR", http.StatusBadGateway, "upstream service error")
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Intake session lifecycle.
	ErrSessionClosed  = New("SESSION_CLOSED", http.StatusGone, "session closed")
	ErrUnsavedChanges = New("UNSAVED_CHANGES", http.StatusConflict, "session has unsaved changes")
	ErrStructuralEdit = New("STRUCTURAL_EDIT_FORBIDDEN", http.StatusConflict, "row structure cannot change on a committed record")

	// Customer review.
	ErrFinalized  = New("FINALIZED", http.StatusConflict, "review already finalized")
	ErrAccessCode = New("INVALID_ACCESS_CODE", http.StatusUnauthorized, "invalid access code")

	// Uploads.
	ErrPayloadTooLarge = New("PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge, "uploaded file exceeds size limit")
)

// FromError normalises any error into an *Error, defaulting to internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone copies an Error, optionally overriding the message. Sentinels are
// shared values; mutate a copy, never the sentinel itself.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	out := *err
	if message != "" {
		out.Message = message
	}
	return &out
}

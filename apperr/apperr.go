// Package apperr provides typed errors that carry an HTTP status mapping, so route
// handlers can return one error value and render it consistently.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is the category of an error.
type Type string

const (
	TypeValidation   Type = "validation"
	TypeUnauthorized Type = "unauthorized"
	TypeForbidden    Type = "forbidden"
	TypeNotFound     Type = "not_found"
	TypeConflict     Type = "conflict"
	TypeUnavailable  Type = "unavailable"
	TypeExternal     Type = "external"
	TypeInternal     Type = "internal"
)

// Error is a categorized error with a client-safe message.
type Error struct {
	Type    Type
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus maps the error type to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Type: TypeValidation, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error { return &Error{Type: TypeUnauthorized, Message: msg} }

func Forbidden(msg string) *Error { return &Error{Type: TypeForbidden, Message: msg} }

func NotFound(resource string) *Error {
	return &Error{Type: TypeNotFound, Message: resource + " not found"}
}

func Conflict(msg string) *Error { return &Error{Type: TypeConflict, Message: msg} }

// Unavailable marks a feature whose backing service is not configured.
func Unavailable(feature string) *Error {
	return &Error{Type: TypeUnavailable, Message: feature + " is not configured"}
}

// External wraps a failure of a third-party API.
func External(service string, cause error) *Error {
	return &Error{Type: TypeExternal, Message: service + " request failed", Cause: cause}
}

func Internal(msg string, cause error) *Error {
	return &Error{Type: TypeInternal, Message: msg, Cause: cause}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Status returns the HTTP status for any error; unknown errors are 500.
func Status(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

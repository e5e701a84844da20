// internal/apperr/apperr.go

// Package apperr defines the error kinds returned by every user-facing
// operation and their HTTP representation.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Unauthenticated    Kind = "unauthenticated"
	PermissionDenied   Kind = "permission-denied"
	InvalidArgument    Kind = "invalid-argument"
	NotFound           Kind = "not-found"
	FailedPrecondition Kind = "failed-precondition"
	Internal           Kind = "internal"
)

// Error carries a machine-readable kind and a message safe to show callers.
// Cause is kept for logging only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Config marks a server-side configuration failure. It is reported to the
	// caller as an internal error regardless of Kind.
	Config bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches cause to a new error of the given kind. A nil cause yields nil.
func Wrap(cause error, kind Kind, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Configuration reports a missing or invalid server-side setting.
func Configuration(message string) *Error {
	return &Error{Kind: FailedPrecondition, Message: message, Config: true}
}

// KindOf returns the kind of err, Internal for anything unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Config {
			return Internal
		}
		return appErr.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case FailedPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

type body struct {
	Error struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// Write renders err as a JSON error body. Messages of unclassified and
// configuration errors are replaced so internals never reach the caller.
func Write(w http.ResponseWriter, err error) {
	kind := KindOf(err)

	message := "internal error"
	var appErr *Error
	if errors.As(err, &appErr) && kind != Internal {
		message = appErr.Message
	}

	var b body
	b.Error.Kind = kind
	b.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(kind))
	json.NewEncoder(w).Encode(b)
}

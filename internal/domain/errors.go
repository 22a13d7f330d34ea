package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures so transport layers can map them to a status
// code without inspecting messages.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindNotFound       ErrorKind = "not_found"
	KindAuthentication ErrorKind = "authentication"
	KindInternal       ErrorKind = "internal"
)

// Error is the structured error carried across service boundaries. Message is
// safe to show to callers; Err holds the underlying cause and is never
// serialized.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a structured error with a caller-visible message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError attaches an underlying cause to a structured error. The cause is
// kept for logs only.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors are
// treated as internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to its transport status code.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Package apperr gives every layer of the service one error shape,
// so the websocket boundary and the HTTP boundary can derive their
// responses from the same classification instead of keeping two
// separate mappings in sync.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Unauthorized Kind = "unauthorized"
	NotFound     Kind = "not_found"
	Forbidden    Kind = "forbidden"
	Conflict     Kind = "conflict"
	Validation   Kind = "validation"
	RateLimited  Kind = "rate_limited"
	Upstream     Kind = "upstream"
	Internal     Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// As reports the Kind of err, falling back to Internal for anything
// not already classified - mirrors the catch-all branch of the
// original service's AppError::from(anyhow::Error).
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: Internal, Message: "internal error", Err: err}
}

// LogLevel mirrors the original's warn-vs-error split: client-caused
// conditions are warnings, everything else is an error worth paging on.
func (e *Error) LogLevel() string {
	switch e.Kind {
	case Unauthorized, NotFound, Forbidden, Conflict, Validation, RateLimited:
		return "warn"
	default:
		return "error"
	}
}

// HTTPStatus maps a Kind to the status code the REST boundary returns.
func (k Kind) HTTPStatus() int {
	switch k {
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case Validation:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WireType maps a Kind to the "type" discriminator string the ws
// boundary's outbound Error event carries.
func (k Kind) WireType() string {
	return string(k)
}

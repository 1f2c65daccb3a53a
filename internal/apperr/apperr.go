// Package apperr defines the error kinds surfaced by the commitment core.
// Every failure returned to a caller wraps exactly one kind so handlers can
// map it to a response with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("not authorized")
	ErrConflict   = errors.New("conflict")
	ErrDependency = errors.New("dependency failed")
)

// Error carries a kind, a caller-facing message and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return newf(ErrValidation, format, args...) }

func NotFound(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

func Forbidden(format string, args ...any) error { return newf(ErrForbidden, format, args...) }

func Conflict(format string, args ...any) error { return newf(ErrConflict, format, args...) }

// Dependency wraps a failed call to an external collaborator.
func Dependency(err error, format string, args ...any) error {
	e := newf(ErrDependency, format, args...)
	e.Err = err
	return e
}

// Message returns the caller-facing message of err, or a generic text for
// errors that carry no kind.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Msg
	}
	return "internal error"
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

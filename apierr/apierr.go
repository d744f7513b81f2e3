package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound marks an id that does not resolve to a stored row.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument marks client input that can never succeed as sent.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error carries the HTTP status and machine-readable code a failure should be reported with.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Validation builds a 400 error with a human-readable reason.
func Validation(code, format string, args ...any) *Error {
	return New(http.StatusBadRequest, code, fmt.Errorf(format, args...))
}

// NotFound builds a 404 error wrapping ErrNotFound.
func NotFound(code, format string, args ...any) *Error {
	return New(http.StatusNotFound, code, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound))
}

// From maps any error onto an *Error. Sentinels keep their meaning when they
// arrive wrapped; everything else is a storage failure.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return New(http.StatusNotFound, "NOT_FOUND", err)
	case errors.Is(err, ErrInvalidArgument):
		return New(http.StatusBadRequest, "INVALID_ARGUMENT", err)
	}
	return New(http.StatusInternalServerError, "STORAGE_ERROR", err)
}

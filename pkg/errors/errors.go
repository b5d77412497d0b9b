// Package errors maps failures to API error codes and HTTP statuses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrEngineUnavailable = errors.New("search engine unavailable")
)

// Code is the machine-readable error code sent to API clients.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeEngineUnavailable Code = "ENGINE_UNAVAILABLE"
	CodeInternal          Code = "INTERNAL_ERROR"
)

type kind struct {
	sentinel error
	code     Code
	status   int
	message  string
}

// kinds is checked in order; the first sentinel found in the chain wins.
var kinds = []kind{
	{ErrNotFound, CodeNotFound, http.StatusNotFound, "resource not found"},
	{ErrInvalidInput, CodeInvalidInput, http.StatusBadRequest, ""},
	{ErrEngineUnavailable, CodeEngineUnavailable, http.StatusServiceUnavailable, "search engine unavailable"},
}

var internal = kind{ErrInternal, CodeInternal, http.StatusInternalServerError, "an internal error occurred"}

// AppError carries the client-facing code and message of a failure. Err
// keeps the cause and always wraps one of the package sentinels.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(k kind, message string, cause error) *AppError {
	if message == "" {
		message = k.message
	}
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: cause}
}

// NotFound reports a missing resource by name and id.
func NotFound(resource, id string) *AppError {
	return newAppError(kinds[0], fmt.Sprintf("%s with id %s not found", resource, id), ErrNotFound)
}

// InvalidInput reports a client mistake. message is shown to the caller.
func InvalidInput(message string) *AppError {
	return newAppError(kinds[1], message, ErrInvalidInput)
}

// EngineUnavailable wraps a failed call to the search backend.
func EngineUnavailable(err error) *AppError {
	cause := ErrEngineUnavailable
	if err != nil {
		cause = fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	return newAppError(kinds[2], "the search engine is unavailable", cause)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	cause := ErrInternal
	if err != nil {
		cause = fmt.Errorf("%w: %w", ErrInternal, err)
	}
	return newAppError(internal, "", cause)
}

// Classify returns the AppError for err. An AppError in the chain is
// returned as is; otherwise the first matching sentinel decides, and
// anything else is internal. Invalid input keeps err's text as message.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			msg := k.message
			if msg == "" {
				msg = err.Error()
			}
			return newAppError(k, msg, err)
		}
	}
	return newAppError(internal, "", err)
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	return Classify(err).Status
}

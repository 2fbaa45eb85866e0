package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidRuleset  = New("INVALID_RULESET", http.StatusBadRequest, "invalid shadow ruleset")
	ErrRulesetFinal    = New("RULESET_FINALIZED", http.StatusConflict, "ruleset already finalized")
	ErrRulesetNotFinal = New("RULESET_NOT_FINALIZED", http.StatusPreconditionFailed, "ruleset not finalized")
	ErrNoTarget        = New("NO_TARGET", http.StatusPreconditionFailed, "no shadow target configured")
	ErrDispatchFailed  = New("DISPATCH_FAILED", http.StatusBadGateway, "shadow dispatch failed")
	ErrQueueStopped    = New("QUEUE_STOPPED", http.StatusServiceUnavailable, "shadow queue not running")
	ErrQueueFull       = New("QUEUE_FULL", http.StatusServiceUnavailable, "shadow queue buffer full")
	ErrInternal        = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

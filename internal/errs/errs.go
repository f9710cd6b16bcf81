// Package errs carries the typed errors surfaced by the pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Stable machine-readable error codes.
const (
	CodeConfig        = "config_error"
	CodeValidation    = "validation_error"
	CodeIngest        = "ingest_error"
	CodeExport        = "export_error"
	CodeOrchestration = "orchestration_error"
	CodeConnection    = "connection_error"
	CodeStorage       = "storage_error"
	CodeCancelled     = "cancelled"
	CodeRuntime       = "runtime_error"
)

// Error is a pipeline error with a stable code, a human message, and a
// suggested next action.
type Error struct {
	Code       string
	Message    string
	NextAction string
	Details    map[string]any
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithNext sets the suggested next action.
func (e *Error) WithNext(action string) *Error {
	e.NextAction = action
	return e
}

// WithDetail adds one key to the details map.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the error code, defaulting to runtime_error for
// untyped errors.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeRuntime
}

// AsError returns the typed error inside err, wrapping untyped errors
// as runtime_error.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Code: CodeRuntime, Message: err.Error(), Err: err}
}

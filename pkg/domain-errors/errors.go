// Package domainerrors defines the coded error type that crosses service
// boundaries. Stores return sentinel errors for infrastructure facts
// (pkg/platform/sentinel); services translate those into coded domain errors so
// transports can render specific, typed outcomes instead of generic faults.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a domain failure class. Codes are part of the API contract:
// handlers map them to HTTP statuses and clients branch on them.
type Code string

const (
	// CodeStaleTransition signals a lifecycle transition whose from-state no
	// longer matches the record's persisted status. Callers must refresh and
	// retry or abandon.
	CodeStaleTransition Code = "stale_transition"

	// CodeRecognitionFailed signals the mediator reported failure or timed out
	// for an observation. Terminal; the user may retake the photo.
	CodeRecognitionFailed Code = "recognition_failed"

	// CodeConfirmationConflict signals a selected species id that is not
	// present among the observation's current suggestions.
	CodeConfirmationConflict Code = "confirmation_conflict"

	// CodeStatsApplyIncomplete signals a partial failure between the
	// confirmation write and the stats increment. Recoverable by retry; never
	// surfaced as user-visible corruption.
	CodeStatsApplyIncomplete Code = "stats_apply_incomplete"

	// CodeProfileLoadFailed signals the profile record could not be loaded.
	// Non-fatal: the session stays valid with degraded profile data.
	CodeProfileLoadFailed Code = "profile_load_failed"

	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error. It optionally wraps a cause so errors.Is and
// errors.As keep working through the translation layer.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. A nil cause yields
// a plain coded error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf extracts the outermost code, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

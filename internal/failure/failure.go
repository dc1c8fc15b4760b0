// Package failure classifies errors produced while analyzing a design
// request so callers can decide how to present them.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the caller-facing classification of a failure or warning.
type Kind string

const (
	KindCancelled  Kind = "CANCELLED"
	KindTimeout    Kind = "TIMEOUT"
	KindTokenLimit Kind = "TOKEN_LIMIT"
	KindParse      Kind = "PARSE_ERROR"
	KindRateLimit  Kind = "RATE_LIMIT"
	KindUnknown    Kind = "UNKNOWN"
)

// TimeoutHint is attached to timeouts that exhausted every attempt.
const TimeoutHint = "the request took too long; reduce the input size and try again"

// Error is a classified failure.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Hint     string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Hint != "" {
		return msg + " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether offering the user a manual retry makes sense.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindCancelled:
		return false
	default:
		return true
	}
}

// New builds a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err, keeping its message.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Cancelled wraps a cancellation cause.
func Cancelled(err error) *Error {
	if err == nil {
		err = context.Canceled
	}
	return &Error{Kind: KindCancelled, Message: "request cancelled", Err: err}
}

// Timeout wraps a deadline error with the input-size hint.
func Timeout(err error) *Error {
	if err == nil {
		err = context.DeadlineExceeded
	}
	return &Error{Kind: KindTimeout, Message: "request timed out", Hint: TimeoutHint, Err: err}
}

// KindOf classifies any error. Context errors map to CANCELLED and TIMEOUT.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindUnknown
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

// Warning is a non-fatal condition reported alongside a result.
type Warning struct {
	Kind    Kind
	Message string
}

func (w Warning) String() string { return string(w.Kind) + ": " + w.Message }

package models

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on failure mode.
type Kind string

const (
	KindNotFound   Kind = "not_found"  // unknown id
	KindValidation Kind = "validation" // malformed input, unknown operator, bad pattern
	KindDependency Kind = "dependency" // device or LLM unavailable or timed out
	KindIO         Kind = "io"         // persistence failure
	KindState      Kind = "state"      // illegal transition
)

// Error carries a kind alongside a human-readable message. It wraps an
// optional underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E constructs a kinded error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapE wraps an underlying error with a kind and message.
func WrapE(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of an error, or the empty kind if it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether the error is a not-found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

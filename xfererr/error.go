package xfererr

import (
	"errors"
	"fmt"
)

// Error is a taxonomy-carrying error. Reason is the human-readable detail
// returned to the caller; LocKey is an optional localization key a client
// can use instead of Reason. Everything else about the failure belongs in
// server-side logs, not in this struct.
type Error struct {
	Kind   Kind
	Reason string
	LocKey string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs a taxonomy error with a human-readable reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Newf constructs a taxonomy error with a formatted reason.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error, preserving it for errors.Is/As.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Reason: cause.Error(), cause: cause}
}

// WithLocKey sets the localization key and returns the same error for chaining.
func (e *Error) WithLocKey(key string) *Error {
	e.LocKey = key
	return e
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry one (an invariant violation elsewhere in the stack).
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if err == nil {
		return Kind(-1)
	}
	return Internal
}

package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to API callers. Match with errors.Is.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation error")
	ErrInvalidReference = errors.New("invalid reference")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
)

// Error pairs a kind with the message shown to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message returns the caller-facing message of err, falling back to the kind's text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsKnown reports whether err belongs to the error taxonomy.
func IsKnown(err error) bool {
	for _, kind := range []error{ErrUnauthenticated, ErrForbidden, ErrValidation, ErrInvalidReference, ErrNotFound, ErrConflict} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

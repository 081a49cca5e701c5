package core

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures so callers can decide whether to retry.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindConflict          Kind = "conflict"
	KindUnavailable       Kind = "store_unavailable"
)

// Sentinels for errors.Is; a *Error matches the sentinel of its Kind.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validation(err error) *Error {
	return &Error{Kind: KindValidation, Msg: err.Error(), Err: err}
}

func NotFound(format string, args ...any) *Error {
	return NewError(KindNotFound, nil, format, args...)
}

func InsufficientFunds(format string, args ...any) *Error {
	return NewError(KindInsufficientFunds, nil, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return NewError(KindInvalidState, nil, format, args...)
}

func Unavailable(err error, format string, args ...any) *Error {
	return NewError(KindUnavailable, err, format, args...)
}

// KindOf extracts the Kind of err. Unclassified errors count as infrastructure failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

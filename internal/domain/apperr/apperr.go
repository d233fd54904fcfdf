package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so the HTTP layer can pick a status code
// without inspecting messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInsufficientFunds
	KindIntegrity
	KindExternal
)

type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf walks the chain and returns the first kinded error found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func InsufficientFunds(format string, args ...any) *Error {
	return New(KindInsufficientFunds, format, args...)
}

func Integrity(format string, args ...any) *Error {
	return New(KindIntegrity, format, args...)
}

func External(err error, format string, args ...any) *Error {
	return Wrap(KindExternal, err, format, args...)
}

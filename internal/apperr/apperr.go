// README: Error taxonomy shared by modules and mapped to transport statuses.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindValidation        Kind = "validation_failed"
	KindForbidden         Kind = "forbidden"
	KindTransient         Kind = "transient"
	KindFatal             Kind = "fatal"
)

// Error carries a stable Reason for clients and a human Message.
// Two errors match under errors.Is when Kind and Reason agree.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// WithMessage returns a copy with a more specific message, still matching e.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of e that records cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func NotFound(reason, message string) *Error {
	return New(KindNotFound, reason, message)
}

func Conflict(reason, message string) *Error {
	return New(KindConflict, reason, message)
}

func InsufficientFunds(reason, message string) *Error {
	return New(KindInsufficientFunds, reason, message)
}

func Validation(reason, message string) *Error {
	return New(KindValidation, reason, message)
}

func Forbidden(reason, message string) *Error {
	return New(KindForbidden, reason, message)
}

func Transient(cause error) *Error {
	return &Error{Kind: KindTransient, Reason: "retry_later", Message: "temporarily unavailable, retry later", Err: cause}
}

func Fatal(cause error) *Error {
	return &Error{Kind: KindFatal, Reason: "internal_error", Message: "internal error", Err: cause}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err; anything outside the taxonomy is fatal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindFatal
}

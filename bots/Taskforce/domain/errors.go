package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures so the command surface can decide whether to
// reply, log, or both.
type ErrorCode string

const (
	ErrCodeValidation  ErrorCode = "VALIDATION"
	ErrCodePersistence ErrorCode = "PERSISTENCE"
	ErrCodeConflict    ErrorCode = "CONFLICT"
	ErrCodeDelivery    ErrorCode = "DELIVERY"
)

// Error is a classified failure with a user-presentable message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors of the same code and message, so sentinel errors keep
// working after being wrapped with a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError builds a classified error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError attaches a classification to an existing error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return NewError(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// PersistenceFailure wraps a store or transport error.
func PersistenceFailure(err error) *Error {
	return WrapError(ErrCodePersistence, "persistence failure", err)
}

// DeliveryFailure wraps a notification sink error.
func DeliveryFailure(err error) *Error {
	return WrapError(ErrCodeDelivery, "delivery failure", err)
}

var (
	ErrSessionActive = NewError(ErrCodeConflict, "session already active")
	ErrNoSession     = NewError(ErrCodeConflict, "no active session")
)

// IsCode reports whether err carries the given classification.
func IsCode(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

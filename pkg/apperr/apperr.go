package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeNotAMember      Code = "NOT_A_MEMBER"
	CodeNotOwner        Code = "NOT_OWNER"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidation      Code = "VALIDATION"
	CodeConflict        Code = "CONFLICT"
	CodeTransientIO     Code = "TRANSIENT_IO"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Unauthenticated(msg string) error { return New(CodeUnauthenticated, msg) }
func NotAMember(msg string) error      { return New(CodeNotAMember, msg) }
func NotOwner(msg string) error        { return New(CodeNotOwner, msg) }
func NotFound(msg string) error        { return New(CodeNotFound, msg) }
func Validation(msg string) error      { return New(CodeValidation, msg) }
func Conflict(msg string) error        { return New(CodeConflict, msg) }

// TransientIO marks a store/bus failure the caller may retry.
func TransientIO(msg string, cause error) error {
	return Wrap(CodeTransientIO, msg, cause)
}

// CodeOf extracts the code from any error in the chain, CodeUnknown otherwise.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Retriable reports whether the caller should retry the operation.
func Retriable(err error) bool {
	return IsCode(err, CodeTransientIO)
}

package errors

import (
	stderrors "errors"
	"fmt"
)

// Codes follow the callable-function status vocabulary used by the mobile client.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeInvalidArgument = "invalid-argument"
	CodeNotFound        = "not-found"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrUnauthenticated = &AppError{Code: CodeUnauthenticated, Message: "User must be authenticated"}
	ErrNotFound        = &AppError{Code: CodeNotFound, Message: "resource not found"}
	ErrUnavailable     = &AppError{Code: CodeUnavailable, Message: "service unavailable"}
	ErrInternal        = &AppError{Code: CodeInternal, Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Internal wraps err as an internal error whose message is the cause's own text.
func Internal(err error) *AppError {
	if err == nil {
		return ErrInternal
	}
	return Wrap(err, CodeInternal, err.Error())
}

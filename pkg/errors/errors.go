package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrGone               = errors.New("gone")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTransient          = errors.New("transient failure")
	ErrDecryption         = errors.New("decryption failed")
	ErrClosed             = errors.New("session closed")
)

// Code is the stable machine-readable identifier exposed to callers.
type Code string

const (
	CodeNotFound       Code = "NOT_FOUND"
	CodeGone           Code = "GONE"
	CodeUsernameExists Code = "USERNAME_EXISTS"
	CodeForbidden      Code = "FORBIDDEN"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeTransient      Code = "TRANSIENT"
	CodeDecryption     Code = "DECRYPTION_FAILED"
	CodeClosed         Code = "SESSION_CLOSED"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Error is a typed error with a stable code and a human message.
// It unwraps to the sentinel that classifies it.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a typed error for the given code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: sentinelFor(code)}
}

// Wrap classifies err and returns it as *Error. A nil err stays nil.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	code := CodeOf(err)
	return &Error{Code: code, Message: err.Error(), Err: errors.Join(sentinelFor(code), err)}
}

// CodeOf returns the stable code for any error.
func CodeOf(err error) Code {
	var typed *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &typed):
		return typed.Code
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrGone):
		return CodeGone
	case errors.Is(err, ErrConflict):
		return CodeUsernameExists
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidRequest
	case errors.Is(err, ErrTransient), errors.Is(err, ErrServiceUnavailable):
		return CodeTransient
	case errors.Is(err, ErrDecryption):
		return CodeDecryption
	case errors.Is(err, ErrClosed):
		return CodeClosed
	default:
		return CodeInternal
	}
}

func sentinelFor(code Code) error {
	switch code {
	case CodeNotFound:
		return ErrNotFound
	case CodeGone:
		return ErrGone
	case CodeUsernameExists:
		return ErrConflict
	case CodeForbidden:
		return ErrForbidden
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeInvalidRequest:
		return ErrInvalidInput
	case CodeTransient:
		return ErrTransient
	case CodeDecryption:
		return ErrDecryption
	case CodeClosed:
		return ErrClosed
	default:
		return ErrServiceUnavailable
	}
}

// HTTPStatus maps an error onto the gateway's REST status codes.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeGone:
		return http.StatusGone
	case CodeUsernameExists:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus rebuilds a typed error from a gateway response.
// Server-side failures and throttling are classified as transient.
func FromHTTPStatus(status int, code, message string) *Error {
	if code != "" {
		switch Code(code) {
		case CodeNotFound, CodeGone, CodeUsernameExists, CodeForbidden, CodeUnauthorized,
			CodeInvalidRequest, CodeTransient:
			return New(Code(code), message)
		}
	}
	switch {
	case status == http.StatusNotFound:
		return New(CodeNotFound, message)
	case status == http.StatusGone:
		return New(CodeGone, message)
	case status == http.StatusConflict:
		return New(CodeUsernameExists, message)
	case status == http.StatusForbidden:
		return New(CodeForbidden, message)
	case status == http.StatusUnauthorized:
		return New(CodeUnauthorized, message)
	case status == http.StatusBadRequest:
		return New(CodeInvalidRequest, message)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return New(CodeTransient, message)
	default:
		return New(CodeInternal, message)
	}
}

// IsRetryable reports whether the call site may retry the operation.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeTransient
}

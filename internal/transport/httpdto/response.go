package httpdto

import (
	"net/http"

	apperrors "ephemera/pkg/errors"
)

// Response is the envelope of every gateway reply. On failure Code carries
// the stable error code clients map back to a typed error.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(msg string, code apperrors.Code) Response[any] {
	return Response[any]{
		Success: false,
		Error:   msg,
		Code:    string(code),
	}
}

// ErrorResponseFrom renders err with the code it carries.
func ErrorResponseFrom(err error) Response[any] {
	return NewErrorResponse(err.Error(), apperrors.CodeOf(err))
}

// Failure turns a failed reply received with status back into a typed error.
// An empty message falls back to the status text.
func (r Response[T]) Failure(status int) error {
	msg := r.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	return apperrors.FromHTTPStatus(status, r.Code, msg)
}

package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf_Sentinels(t *testing.T) {
	cases := []struct {
		err  error
		code Code
	}{
		{ErrNotFound, CodeNotFound},
		{fmt.Errorf("get room: %w", ErrGone), CodeGone},
		{ErrConflict, CodeUsernameExists},
		{ErrForbidden, CodeForbidden},
		{ErrUnauthorized, CodeUnauthorized},
		{ErrInvalidInput, CodeInvalidRequest},
		{ErrTransient, CodeTransient},
		{ErrDecryption, CodeDecryption},
		{errors.New("boom"), CodeInternal},
		{nil, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, CodeOf(tc.err), "err=%v", tc.err)
	}
}

func TestNew_UnwrapsToSentinel(t *testing.T) {
	err := New(CodeForbidden, "only the admin may kick")
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "FORBIDDEN: only the admin may kick", err.Error())

	wrapped := fmt.Errorf("kick: %w", err)
	assert.Equal(t, CodeForbidden, CodeOf(wrapped))
}

func TestWrap_KeepsOriginalChain(t *testing.T) {
	inner := fmt.Errorf("select: %w", ErrNotFound)
	typed := Wrap(inner)
	require.NotNil(t, typed)
	assert.Equal(t, CodeNotFound, typed.Code)
	assert.ErrorIs(t, typed, ErrNotFound)
	assert.Nil(t, Wrap(nil))
}

func TestHTTPStatusRoundTrip(t *testing.T) {
	for _, code := range []Code{CodeNotFound, CodeGone, CodeUsernameExists, CodeForbidden, CodeUnauthorized, CodeInvalidRequest, CodeTransient} {
		status := HTTPStatus(New(code, ""))
		back := FromHTTPStatus(status, "", "x")
		assert.Equal(t, code, back.Code, "status=%d", status)
	}
}

func TestFromHTTPStatus_ServerErrorsAreTransient(t *testing.T) {
	assert.True(t, IsRetryable(FromHTTPStatus(http.StatusBadGateway, "", "")))
	assert.True(t, IsRetryable(FromHTTPStatus(http.StatusTooManyRequests, "", "")))
	assert.False(t, IsRetryable(FromHTTPStatus(http.StatusConflict, "", "")))
	assert.Equal(t, CodeGone, FromHTTPStatus(http.StatusBadRequest, "GONE", "expired").Code)
}

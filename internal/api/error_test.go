package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestErrorFromResponse(t *testing.T) {
	t.Run("detail field", func(t *testing.T) {
		err := ErrorFromResponse(errorResponse(http.StatusConflict, `{"detail": "Device already claimed"}`))
		assert.Equal(t, http.StatusConflict, err.Status)
		assert.Equal(t, "Device already claimed", err.Message)
	})

	t.Run("message and code fields", func(t *testing.T) {
		err := ErrorFromResponse(errorResponse(http.StatusBadRequest, `{"message": "bad input", "code": "invalid_request"}`))
		assert.Equal(t, "bad input", err.Message)
		assert.Equal(t, "invalid_request", err.Code)
	})

	t.Run("unparseable body falls back to status text", func(t *testing.T) {
		err := ErrorFromResponse(errorResponse(http.StatusInternalServerError, "<html>oops</html>"))
		assert.Equal(t, http.StatusInternalServerError, err.Status)
		assert.Equal(t, http.StatusText(http.StatusInternalServerError), err.Message)
	})

	t.Run("empty body falls back to status text", func(t *testing.T) {
		err := ErrorFromResponse(errorResponse(http.StatusNotFound, ""))
		assert.Equal(t, http.StatusText(http.StatusNotFound), err.Message)
	})
}

func TestErrorIs(t *testing.T) {
	var err error = &Error{Status: http.StatusUnauthorized, Message: "nope"}
	assert.True(t, errors.Is(err, ErrUnauthorized))

	err = &Error{Status: http.StatusForbidden, Message: "nope"}
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestErrorString(t *testing.T) {
	err := &Error{Status: 409, Code: "conflict", Message: "already claimed"}
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "conflict")

	err = &Error{Status: 500, Message: "boom"}
	assert.Contains(t, err.Error(), "boom")
}

func TestConfigURL(t *testing.T) {
	cfg := Config{BaseURL: "http://localhost:8003/", Prefix: "/api/v1"}
	assert.Equal(t, "http://localhost:8003/api/v1/auth/login", cfg.URL("/auth/login"))

	cfg = Config{BaseURL: "http://localhost:8003"}
	assert.Equal(t, "http://localhost:8003/devices", cfg.URL("/devices"))
}

func TestConfigClient(t *testing.T) {
	cfg := Config{}
	require.NotNil(t, cfg.Client())
	assert.Equal(t, defaultTimeout, cfg.Client().Timeout)

	custom := &http.Client{}
	cfg = Config{HTTPClient: custom}
	assert.Same(t, custom, cfg.Client())
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors surfaced by the API clients. Callers distinguish them
// with errors.Is rather than inspecting status codes directly.
var (
	// ErrTokenExpired is returned when a locally held token is past its
	// expiry claim. The credentials are evicted before this is returned.
	ErrTokenExpired = errors.New("authentication token expired")

	// ErrUnauthorized is returned for 401 responses.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyClaimed is returned when claiming a device that another
	// account has already claimed. The server's 409 is authoritative.
	ErrAlreadyClaimed = errors.New("device already claimed")

	// ErrDeviceNotFound is returned for 404 responses on device lookups.
	ErrDeviceNotFound = errors.New("device not found")
)

// Error carries the HTTP status and the optional backend-supplied error
// code and message for a non-2xx response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status %d code %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// Is maps well-known statuses onto sentinel errors so callers can use
// errors.Is without reaching into the struct.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// errorBody is the wire shape of an error response. The backend sends
// {"detail": "..."} (FastAPI style) but some deployments use
// {"message": "...", "code": "..."} so both are accepted.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorFromResponse builds an *Error from a non-2xx response. A body
// that fails to parse as JSON never causes a secondary failure; the
// HTTP status text is used as a fallback message.
func ErrorFromResponse(resp *http.Response) *Error {
	apiErr := &Error{
		Status:  resp.StatusCode,
		Message: resp.Status,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return apiErr
	}

	if eb.Detail != "" {
		apiErr.Message = eb.Detail
	} else if eb.Message != "" {
		apiErr.Message = eb.Message
	}
	apiErr.Code = eb.Code

	return apiErr
}

const maxErrorBody = 64 * 1024

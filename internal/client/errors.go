package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches any *APIError with status 404.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized matches any *APIError with status 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error: %s", e.Status)
	}
	return fmt.Sprintf("server error: %s - %s", e.Status, e.Detail)
}

// Is lets errors.Is match the sentinel for the response status.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// newAPIError extracts the {detail} message from an error body. Detail may be
// a string or a structured validation list; anything else is kept as text.
func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
	if apiErr.Status == "" {
		apiErr.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var text string
		if json.Unmarshal(payload.Detail, &text) == nil {
			apiErr.Detail = text
		} else {
			apiErr.Detail = string(payload.Detail)
		}
		return apiErr
	}
	apiErr.Detail = string(bytes.TrimSpace(body))
	return apiErr
}

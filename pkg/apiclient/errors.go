package apiclient

import (
	"fmt"
	"net/http"
)

// APIError represents an error response that carries no authority error
// code: routing errors, malformed requests, proxies.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if this is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsBadRequest returns true if the server rejected the request itself.
func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

package gocardless

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is returned for every non-2xx response. Body holds the raw
// response so callers can inspect provider-specific detail.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gocardless: %d %s", e.Status, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{Status: status, Message: errorMessage(status, body), Body: body}
}

// errorMessage extracts the "error" member of a JSON error body, which the
// service sends either as a string or as a list of strings.
func errorMessage(status int, body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Error) > 0 {
		var single string
		if json.Unmarshal(envelope.Error, &single) == nil && single != "" {
			return single
		}
		var many []string
		if json.Unmarshal(envelope.Error, &many) == nil && len(many) > 0 {
			return strings.Join(many, "; ")
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unexpected status"
}

package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable wraps transport failures, 5xx responses and calls
	// rejected by the open breaker.
	ErrUnavailable = errors.New("accounts API unavailable")
	// ErrApplicationNotFound is returned when no application has the
	// requested client id.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrRulesNotServed is returned when the accounts API has no password
	// rules endpoint.
	ErrRulesNotServed = errors.New("password rules are not served by the accounts API")
)

// APIError is a response the accounts API answered with an error body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("accounts API: status %d", e.Status)
	}
	return fmt.Sprintf("accounts API: status %d: %s", e.Status, e.Message)
}

// errorMessage extracts the message of an error body. The accounts API
// answers {"error": "..."} or {"error": {...}}.
func errorMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return strings.TrimSpace(string(body))
	}

	raw := envelope.Error
	if len(raw) == 0 || string(raw) == "null" {
		return envelope.Message
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Message     string `json:"message"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Description != "" {
			return obj.Description
		}
	}
	return string(raw)
}

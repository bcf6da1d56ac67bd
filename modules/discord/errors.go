package discord

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx response from the Discord API.
type APIError struct {
	// Status is the HTTP status code.
	Status int

	// Code is Discord's JSON error code, when present.
	Code int

	// Message is Discord's human-readable error description.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("discord: api error %d", e.Status)
	}
	return fmt.Sprintf("discord: api error %d (code %d): %s", e.Status, e.Code, e.Message)
}

// mapAPIError converts a non-2xx response into an *APIError. REST errors
// carry {code, message}; the OAuth token endpoint uses
// {error, error_description} instead.
func mapAPIError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	apiErr := &APIError{Status: status}

	var payload struct {
		Code             int    `json:"code"`
		Message          string `json:"message"`
		Err              string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Code = payload.Code
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.ErrorDescription != "":
			apiErr.Message = payload.ErrorDescription
		case payload.Err != "":
			apiErr.Message = payload.Err
		}
	}

	return apiErr
}

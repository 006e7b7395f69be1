package handlers

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Client-facing messages for malformed analysis requests.
const (
	msgInvalidBodyFormat = "Invalid request body format"
	msgInvalidJSON       = "Invalid JSON in request body"
	msgMissingImageKey   = "Missing required field: imageKey is required in the request body"
	msgImageKeyNotString = "Invalid field: imageKey must be a string"
)

// ClientInputError is a request the caller has to fix; it maps to 400.
type ClientInputError struct {
	Message string
}

func (e *ClientInputError) Error() string { return e.Message }

// AnalyzeRequest is the decoded analysis request body.
type AnalyzeRequest struct {
	ImageKey string
}

// DecodeAnalyzeRequest accepts a JSON object, or a JSON string whose content
// is a JSON object (the double-encoded form API gateways forward).
func DecodeAnalyzeRequest(body []byte) (*AnalyzeRequest, error) {
	payload := bytes.TrimSpace(body)
	if len(payload) == 0 {
		return nil, &ClientInputError{Message: msgInvalidBodyFormat}
	}
	if !json.Valid(payload) {
		return nil, &ClientInputError{Message: msgInvalidJSON}
	}

	if payload[0] == '"' {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return nil, &ClientInputError{Message: msgInvalidJSON}
		}
		payload = bytes.TrimSpace([]byte(inner))
		if !json.Valid(payload) {
			return nil, &ClientInputError{Message: msgInvalidJSON}
		}
	}
	if payload[0] != '{' {
		return nil, &ClientInputError{Message: msgInvalidBodyFormat}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, &ClientInputError{Message: msgInvalidJSON}
	}
	raw, ok := fields["imageKey"]
	if !ok {
		return nil, &ClientInputError{Message: msgMissingImageKey}
	}
	var imageKey string
	if err := json.Unmarshal(raw, &imageKey); err != nil {
		return nil, &ClientInputError{Message: msgImageKeyNotString}
	}
	if strings.TrimSpace(imageKey) == "" {
		return nil, &ClientInputError{Message: msgMissingImageKey}
	}
	return &AnalyzeRequest{ImageKey: imageKey}, nil
}

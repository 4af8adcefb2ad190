package handler

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is one command received from the channel.
type Message struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
}

// ParseMessage decodes a channel payload of the form
// {"action": "...", "data": {...}}. A missing or null data field becomes an
// empty map.
func ParseMessage(payload []byte) (Message, error) {
	var raw struct {
		Action *string         `json:"action"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if raw.Action == nil || strings.TrimSpace(*raw.Action) == "" {
		return Message{}, fmt.Errorf("%w: missing action", ErrInvalidMessage)
	}

	msg := Message{Action: *raw.Action, Data: map[string]any{}}
	if len(raw.Data) > 0 && string(raw.Data) != "null" {
		if err := json.Unmarshal(raw.Data, &msg.Data); err != nil {
			return Message{}, fmt.Errorf("%w: data must be an object: %w", ErrInvalidMessage, err)
		}
	}
	return msg, nil
}

// stringField reads a required string from data.
func stringField(data map[string]any, key string) (string, error) {
	v, ok := data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidData, key)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidData, key)
	}
	return s, nil
}

// boolField reads an optional bool from data.
func boolField(data map[string]any, key string, fallback bool) (bool, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return fallback, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidData, key)
	}
	return b, nil
}

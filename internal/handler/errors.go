package handler

import "errors"

var (
	// ErrInvalidMessage is returned when a payload is not a JSON command
	// object with a non-empty action.
	ErrInvalidMessage = errors.New("handler: invalid message")

	// ErrInvalidData is returned when a command's data does not fit its action.
	ErrInvalidData = errors.New("handler: invalid data")

	// ErrUnroutable is returned when no registered handler accepts the action.
	ErrUnroutable = errors.New("handler: no handler for action")

	// ErrHandlerFailed wraps any error or panic raised by a handler.
	ErrHandlerFailed = errors.New("handler: handler failed")
)

package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrDuplicateConnection = errors.New("connection already registered")
)

// Handler-related errors
var (
	ErrUnknownAction      = errors.New("unknown action")
	ErrMissingSessionCode = errors.New("sessionCode is required")
)

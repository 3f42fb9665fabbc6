package interfaces

import "sams/pkg/types"

// Subscriber is one live connection that can receive pushed events.
// Send must not block the caller; a full or closed connection returns an error.
type Subscriber interface {
	ID() string
	UserID() int64
	Send(event types.Event) error
}

// Publisher fans an event out to every subscriber of a session code
type Publisher interface {
	Publish(code string, event types.Event) int
}

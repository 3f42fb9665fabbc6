package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEmptySessionCode  = errors.New("session code cannot be empty")
	ErrNilSubscriber     = errors.New("subscriber cannot be nil")
	ErrNotSubscribed     = errors.New("connection is not subscribed to this session")
)

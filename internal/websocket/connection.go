package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// Connection is one authenticated lecturer socket. It implements
// interfaces.Subscriber so the hub can push events to it.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized, so every
// frame goes through writeCh and a single writer goroutine
type Connection struct {
	conn         *websocket.Conn
	id           string
	userID       int64
	role         string
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

var _ interfaces.Subscriber = (*Connection)(nil)

// NewConnection wraps an upgraded socket for a verified caller
func NewConnection(conn *websocket.Conn, userID int64, role string, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		id:           uuid.NewString(),
		userID:       userID,
		role:         role,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()
	return c
}

// writeLoop is the only goroutine that writes data frames
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the connection's unique id
func (c *Connection) ID() string { return c.id }

// UserID returns the authenticated user id
func (c *Connection) UserID() int64 { return c.userID }

// Role returns the authenticated role claim
func (c *Connection) Role() string { return c.role }

// Done is closed when the connection shuts down
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// Send queues a pushed event without blocking. A slow client whose buffer
// is full loses the event rather than stalling the publisher.
func (c *Connection) Send(event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// WriteJSON queues a reply, waiting up to the write timeout for buffer space
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close stops the writer and closes the socket once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

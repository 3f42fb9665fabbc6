package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"sams/internal/auth"
	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Lecturer dashboards are served from other
		// origins; the bearer token is the access control
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Client actions carried in text frames
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// MaxFrameSize bounds a single client frame; subscribe requests are tiny
const MaxFrameSize = 4096

// ClientFrame is one request from a connected lecturer
type ClientFrame struct {
	Action      string `json:"action"`
	SessionCode string `json:"sessionCode"`
}

// Topics is the subscription side of the notification hub
type Topics interface {
	Subscribe(sub interfaces.Subscriber, code string) error
	Unsubscribe(connID, code string) error
	UnsubscribeAll(connID string) int
}

// Options tunes heartbeat and buffering per connection
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultOptions matches the classroom heartbeat: ping every 30s, drop after 60s of silence
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	}
}

// Handler upgrades authenticated lecturers and serves their subscribe requests
// ARCHITECTURAL DISCOVERY: The handler owns connection lifecycle only;
// ownership checks belong to the session manager and fan-out to the hub
type Handler struct {
	registry       *Registry
	topics         Topics
	sessionManager interfaces.SessionManager
	tokens         *auth.TokenManager
	writeError     auth.ErrorWriter
	options        Options
}

// NewHandler creates a new WebSocket handler. writeError renders handshake
// failures before the upgrade.
func NewHandler(registry *Registry, topics Topics, sessionManager interfaces.SessionManager, tokens *auth.TokenManager, writeError auth.ErrorWriter, options Options) *Handler {
	if writeError == nil {
		writeError = plainError
	}
	defaults := DefaultOptions()
	if options.PingInterval <= 0 {
		options.PingInterval = defaults.PingInterval
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = defaults.ReadTimeout
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaults.WriteTimeout
	}
	if options.BufferSize <= 0 {
		options.BufferSize = defaults.BufferSize
	}
	return &Handler{
		registry:       registry,
		topics:         topics,
		sessionManager: sessionManager,
		tokens:         tokens,
		writeError:     writeError,
		options:        options,
	}
}

func plainError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrForbidden):
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}

// requestToken prefers ?token= because browsers cannot set headers on a
// WebSocket handshake
func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	return auth.BearerToken(r)
}

// HandleWebSocket verifies the caller, upgrades, and starts the connection loops
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// FUNCTIONAL DISCOVERY: Identity and role are settled before the upgrade
	// so rejected callers get a plain HTTP status
	identity, err := h.tokens.Verify(requestToken(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := auth.RequireRole(identity, types.RoleLecturer); err != nil {
		h.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: user=%d err=%v", identity.UserID, err)
		return
	}

	wsConn := NewConnection(conn, identity.UserID, identity.Role, h.options.BufferSize, h.options.WriteTimeout)
	if err := h.registry.RegisterConnection(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}
	log.Printf("Connection opened: conn=%s user=%d", wsConn.ID(), wsConn.UserID())

	go h.handleConnection(wsConn)
}

// handleConnection runs the heartbeat and the read pump until the socket drops
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: A dropped connection leaves every topic at once
		removed := h.topics.UnsubscribeAll(conn.ID())
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		log.Printf("Connection closed: conn=%s user=%d subscriptions=%d", conn.ID(), conn.UserID(), removed)
	}()

	conn.conn.SetReadLimit(MaxFrameSize)
	readTimeout := h.options.ReadTimeout
	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: conn=%s err=%v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleFrame(conn, data)
	}
}

// heartbeat pings on a ticker; control frames may be written concurrently
// with the writer goroutine
func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.options.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) handleFrame(conn *Connection, data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.reply(conn, errorEvent("", ErrInvalidJSON))
		return
	}

	code := strings.TrimSpace(frame.SessionCode)
	if code == "" {
		h.reply(conn, errorEvent("", ErrMissingSessionCode))
		return
	}

	switch frame.Action {
	case ActionSubscribe:
		h.subscribe(conn, code)
	case ActionUnsubscribe:
		if err := h.topics.Unsubscribe(conn.ID(), code); err != nil {
			h.reply(conn, errorEvent(code, err))
			return
		}
		h.reply(conn, types.Event{Type: types.EventUnsubscribed, SessionCode: code, Timestamp: time.Now().UTC()})
	default:
		h.reply(conn, errorEvent(code, ErrUnknownAction))
	}
}

func (h *Handler) subscribe(conn *Connection, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.options.WriteTimeout)
	defer cancel()

	if err := h.sessionManager.AuthorizeSubscription(ctx, conn.UserID(), code); err != nil {
		log.Printf("Subscribe rejected: conn=%s user=%d code=%s err=%v", conn.ID(), conn.UserID(), code, err)
		h.reply(conn, errorEvent(code, err))
		return
	}
	if err := h.topics.Subscribe(conn, code); err != nil {
		h.reply(conn, errorEvent(code, err))
		return
	}

	h.reply(conn, types.Event{Type: types.EventSubscribed, SessionCode: code, Timestamp: time.Now().UTC()})
}

func (h *Handler) reply(conn *Connection, event types.Event) {
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("Failed to reply: conn=%s type=%s err=%v", conn.ID(), event.Type, err)
	}
}

func errorEvent(code string, err error) types.Event {
	message := err.Error()
	if errors.Is(err, interfaces.ErrNotFound) {
		message = "session not found"
	}
	return types.Event{
		Type:        types.EventError,
		SessionCode: code,
		Payload:     map[string]string{"message": message},
		Timestamp:   time.Now().UTC(),
	}
}

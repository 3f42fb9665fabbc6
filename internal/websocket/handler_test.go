package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sams/internal/auth"
	"sams/internal/hub"
	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// ownershipManager answers AuthorizeSubscription from a code -> owner map
type ownershipManager struct {
	interfaces.SessionManager
	owners map[string]int64
}

func (m *ownershipManager) AuthorizeSubscription(ctx context.Context, lecturerUserID int64, code string) error {
	owner, exists := m.owners[code]
	if !exists || owner != lecturerUserID {
		return interfaces.ErrSessionNotFound
	}
	return nil
}

type handlerEnv struct {
	hub      *hub.Hub
	registry *Registry
	tokens   *auth.TokenManager
	url      string
}

func setupHandler(t *testing.T) *handlerEnv {
	t.Helper()

	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(cancel)

	registry := NewRegistry()
	tokens := auth.NewTokenManager("test-secret", "sams", time.Hour)
	sessions := &ownershipManager{owners: map[string]int64{"111111": 10, "222222": 20}}

	handler := NewHandler(registry, h, sessions, tokens, nil, Options{
		PingInterval: time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
		BufferSize:   16,
	})

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(func() {
		registry.CloseAll()
		server.Close()
	})

	return &handlerEnv{
		hub:      h,
		registry: registry,
		tokens:   tokens,
		url:      "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

func (e *handlerEnv) token(t *testing.T, userID int64, role string) string {
	t.Helper()
	token, _, err := e.tokens.Issue(&types.User{ID: userID, UserType: role})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return token
}

func (e *handlerEnv) dial(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.url+"?token="+e.token(t, userID, types.RoleLecturer), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, action, code string) {
	t.Helper()
	if err := conn.WriteJSON(ClientFrame{Action: action, SessionCode: code}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) types.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event types.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return event
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_HandshakeRejections(t *testing.T) {
	env := setupHandler(t)

	tests := []struct {
		name   string
		query  string
		header http.Header
		status int
	}{
		{"missing token", "", nil, http.StatusUnauthorized},
		{"garbage token", "?token=not-a-jwt", nil, http.StatusUnauthorized},
		{"student role", "?token=" + env.token(t, 30, types.RoleStudent), nil, http.StatusForbidden},
		{"student via header", "", http.Header{"Authorization": {"Bearer " + env.token(t, 30, types.RoleStudent)}}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(env.url+tt.query, tt.header)
			if err == nil {
				conn.Close()
				t.Fatal("Expected handshake to fail")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Fatalf("Expected status %d, got %+v", tt.status, resp)
			}
		})
	}
}

func TestHandler_BearerHeaderAccepted(t *testing.T) {
	env := setupHandler(t)

	header := http.Header{"Authorization": {"Bearer " + env.token(t, 10, types.RoleLecturer)}}
	conn, _, err := websocket.DefaultDialer.Dial(env.url, header)
	if err != nil {
		t.Fatalf("Dial with bearer header failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, "registration", func() bool { return len(env.registry.GetUserConnections(10)) == 1 })
}

func TestHandler_SubscribeReceivesPushes(t *testing.T) {
	env := setupHandler(t)
	conn := env.dial(t, 10)

	send(t, conn, ActionSubscribe, "111111")
	if event := readEvent(t, conn); event.Type != types.EventSubscribed || event.SessionCode != "111111" {
		t.Fatalf("Expected Subscribed, got %+v", event)
	}

	if n := env.hub.Publish("111111", types.Event{Type: types.EventNewCheckIn, SessionCode: "111111", Timestamp: time.Now().UTC()}); n != 1 {
		t.Fatalf("Expected 1 delivery, got %d", n)
	}
	if event := readEvent(t, conn); event.Type != types.EventNewCheckIn {
		t.Fatalf("Expected NewCheckIn, got %+v", event)
	}

	send(t, conn, ActionUnsubscribe, "111111")
	if event := readEvent(t, conn); event.Type != types.EventUnsubscribed {
		t.Fatalf("Expected Unsubscribed, got %+v", event)
	}
	if n := env.hub.SubscriberCount("111111"); n != 0 {
		t.Errorf("Expected no subscribers after unsubscribe, got %d", n)
	}
}

func TestHandler_ForeignAndUnknownCodesLookAlike(t *testing.T) {
	env := setupHandler(t)
	conn := env.dial(t, 10)

	send(t, conn, ActionSubscribe, "222222")
	foreign := readEvent(t, conn)
	send(t, conn, ActionSubscribe, "999999")
	unknown := readEvent(t, conn)

	for _, event := range []types.Event{foreign, unknown} {
		if event.Type != types.EventError {
			t.Fatalf("Expected Error frame, got %+v", event)
		}
	}
	if foreign.Payload.(map[string]interface{})["message"] != unknown.Payload.(map[string]interface{})["message"] {
		t.Errorf("Foreign and unknown codes should produce the same message: %v vs %v", foreign.Payload, unknown.Payload)
	}
	if n := env.hub.SubscriberCount("222222"); n != 0 {
		t.Errorf("Foreign code must not be subscribed, got %d", n)
	}
}

func TestHandler_MalformedFrames(t *testing.T) {
	env := setupHandler(t)
	conn := env.dial(t, 10)

	frames := []string{
		`not json`,
		`{"action":"subscribe"}`,
		`{"action":"dance","sessionCode":"111111"}`,
		`{"action":"unsubscribe","sessionCode":"111111"}`,
	}
	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
		if event := readEvent(t, conn); event.Type != types.EventError {
			t.Errorf("Frame %q: expected Error, got %+v", frame, event)
		}
	}

	// The connection survives bad input
	send(t, conn, ActionSubscribe, "111111")
	if event := readEvent(t, conn); event.Type != types.EventSubscribed {
		t.Errorf("Expected Subscribed after errors, got %+v", event)
	}
}

func TestHandler_DisconnectLeavesAllTopics(t *testing.T) {
	env := setupHandler(t)
	conn := env.dial(t, 10)

	send(t, conn, ActionSubscribe, "111111")
	readEvent(t, conn)
	if n := env.hub.SubscriberCount("111111"); n != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", n)
	}

	_ = conn.Close()

	waitFor(t, "topic cleanup", func() bool { return env.hub.SubscriberCount("111111") == 0 })
	waitFor(t, "registry cleanup", func() bool { return len(env.registry.GetUserConnections(10)) == 0 })
}

func TestHandler_OversizedFrameClosesConnection(t *testing.T) {
	env := setupHandler(t)
	conn := env.dial(t, 10)

	send(t, conn, ActionSubscribe, "111111")
	readEvent(t, conn)

	huge := `{"action":"subscribe","sessionCode":"` + strings.Repeat("9", 2*MaxFrameSize) + `"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(huge)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	waitFor(t, "topic cleanup", func() bool { return env.hub.SubscriberCount("111111") == 0 })
	waitFor(t, "registry cleanup", func() bool { return len(env.registry.GetUserConnections(10)) == 0 })
}

func TestHandler_TwoDevicesBothReceive(t *testing.T) {
	env := setupHandler(t)
	laptop := env.dial(t, 10)
	phone := env.dial(t, 10)

	for _, conn := range []*websocket.Conn{laptop, phone} {
		send(t, conn, ActionSubscribe, "111111")
		readEvent(t, conn)
	}

	if n := env.hub.Publish("111111", types.Event{Type: types.EventSessionEnded, SessionCode: "111111"}); n != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", n)
	}
	for _, conn := range []*websocket.Conn{laptop, phone} {
		if event := readEvent(t, conn); event.Type != types.EventSessionEnded {
			t.Errorf("Expected SessionEnded, got %+v", event)
		}
	}
}

// Package integration runs the whole service against real sockets.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sams/internal/app"
	"sams/internal/auth"
	"sams/internal/config"
	"sams/internal/database"
	"sams/pkg/types"
)

// Classroom is a running service seeded with one course, one hall, its
// lecturer, a second lecturer and a set of students
type Classroom struct {
	URL                string
	Config             *config.Config
	CourseID           int64
	HallID             int64
	LecturerToken      string
	OtherLecturerToken string
	StudentTokens      []string
	StudentNames       []string
}

// StartClassroom seeds a fresh database and serves the application on a
// loopback port until the test ends
func StartClassroom(t *testing.T, students int) *Classroom {
	t.Helper()
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "classroom.db")
	cfg.Auth.JWTSecret = "classroom-secret"
	cfg.HTTP.Host = "127.0.0.1"

	store, err := database.NewManager(app.DatabaseConfig(cfg))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	hash, err := auth.HashPassword("classroom-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	enrol := func(name, role string) string {
		user := &types.User{
			Name:     name,
			Email:    strings.ReplaceAll(strings.ToLower(name), " ", ".") + "@uni.test",
			UserType: role,
		}
		if err := store.RegisterUser(ctx, user, hash); err != nil {
			t.Fatalf("RegisterUser(%s) failed: %v", name, err)
		}
		token, _, err := tokens.Issue(user)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		return token
	}

	c := &Classroom{Config: cfg}
	c.LecturerToken = enrol("Dr Silva", types.RoleLecturer)
	c.OtherLecturerToken = enrol("Dr Fernando", types.RoleLecturer)
	for i := 0; i < students; i++ {
		name := fmt.Sprintf("Student %02d", i+1)
		c.StudentNames = append(c.StudentNames, name)
		c.StudentTokens = append(c.StudentTokens, enrol(name, types.RoleStudent))
	}

	lecturerID, err := tokens.Verify(c.LecturerToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	lecturer, err := store.GetLecturerByUserID(ctx, lecturerID.UserID)
	if err != nil {
		t.Fatalf("GetLecturerByUserID failed: %v", err)
	}
	course := &types.Course{Name: "Distributed Systems", LecturerID: lecturer.ID}
	if err := store.CreateCourse(ctx, course, nil); err != nil {
		t.Fatalf("CreateCourse failed: %v", err)
	}
	hall := &types.LectureHall{Name: "Main Hall"}
	if err := store.CreateLectureHall(ctx, hall); err != nil {
		t.Fatalf("CreateLectureHall failed: %v", err)
	}
	c.CourseID, c.HallID = course.ID, hall.ID

	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close seeding store: %v", err)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	c.URL = "http://" + ln.Addr().String()

	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- application.Serve(serveCtx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve failed: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("Application did not shut down")
		}
	})

	return c
}

// Do sends a JSON request and decodes the JSON response into out when given
func (c *Classroom) Do(method, path, token string, body, out interface{}) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequest(method, c.URL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// SessionRequest opens a morning lecture today in the institution zone
func (c *Classroom) SessionRequest(expiryMinutes int) map[string]interface{} {
	loc, _ := c.Config.Attendance.Location()
	return map[string]interface{}{
		"courseId":              c.CourseID,
		"lectureHallId":         c.HallID,
		"date":                  time.Now().In(loc).Format("2006-01-02"),
		"lectureStartTime":      "08:00",
		"lectureEndTime":        "09:00",
		"codeExpirationMinutes": expiryMinutes,
	}
}

// LecturerClient is a live connection that collects pushed events
type LecturerClient struct {
	conn   *websocket.Conn
	events chan types.Event
	done   chan struct{}

	closeOnce sync.Once
}

// ConnectLecturer dials /ws with token as a query parameter
func (c *Classroom) ConnectLecturer(t *testing.T, token string) *LecturerClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(c.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect lecturer: %v", err)
	}

	lc := &LecturerClient{
		conn:   conn,
		events: make(chan types.Event, 256),
		done:   make(chan struct{}),
	}
	go lc.readLoop()
	t.Cleanup(lc.Close)
	return lc
}

func (lc *LecturerClient) readLoop() {
	defer close(lc.done)
	for {
		var event types.Event
		if err := lc.conn.ReadJSON(&event); err != nil {
			return
		}
		select {
		case lc.events <- event:
		default:
			// Tests size the buffer above any expected burst
		}
	}
}

// Send writes one client frame
func (lc *LecturerClient) Send(action, code string) error {
	_ = lc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return lc.conn.WriteJSON(map[string]string{"action": action, "sessionCode": code})
}

// Next waits for the next event of eventType, skipping others
func (lc *LecturerClient) Next(eventType string, timeout time.Duration) (types.Event, error) {
	deadline := time.After(timeout)
	for {
		select {
		case event := <-lc.events:
			if event.Type == eventType {
				return event, nil
			}
		case <-deadline:
			return types.Event{}, fmt.Errorf("timeout waiting for %s", eventType)
		case <-lc.done:
			return types.Event{}, fmt.Errorf("connection closed waiting for %s", eventType)
		}
	}
}

// Close ends the connection
func (lc *LecturerClient) Close() {
	lc.closeOnce.Do(func() { _ = lc.conn.Close() })
}

package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "time/tzdata"

	"sams/internal/codegen"
	"sams/internal/database"
	dbconfig "sams/pkg/database"
	"sams/pkg/interfaces"
	"sams/pkg/types"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]types.Event
}

func (p *recordingPublisher) Publish(code string, event types.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]types.Event)
	}
	p.events[code] = append(p.events[code], event)
	return 1
}

type testEnv struct {
	manager   *Manager
	store     *database.Manager
	publisher *recordingPublisher
	lecturer  *types.User
	other     *types.User
	student   *types.User
	course    *types.Course
	hall      *types.LectureHall
	clock     time.Time
}

// 2024-05-01 10:00 in Colombo
var colomboMorning = time.Date(2024, 5, 1, 4, 30, 0, 0, time.UTC)

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "session.db")
	store, err := database.NewManager(cfg)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	loc, err := time.LoadLocation("Asia/Colombo")
	if err != nil {
		t.Fatalf("Failed to load zone: %v", err)
	}

	env := &testEnv{store: store, publisher: &recordingPublisher{}, clock: colomboMorning}
	env.manager = NewManager(store, env.publisher, Config{
		Location:                 loc,
		MaxCodeExpirationMinutes: 30,
		CodeAttempts:             3,
	})
	env.manager.SetClock(func() time.Time { return env.clock })

	reg := func(name, role string) *types.User {
		u := &types.User{Name: name, Email: name + "@uni.test", UserType: role}
		if err := store.RegisterUser(ctx, u, "hash"); err != nil {
			t.Fatalf("RegisterUser failed: %v", err)
		}
		return u
	}
	env.lecturer = reg("lecturer", types.RoleLecturer)
	env.other = reg("other", types.RoleLecturer)
	env.student = reg("student", types.RoleStudent)

	lecturer, err := store.GetLecturerByUserID(ctx, env.lecturer.ID)
	if err != nil {
		t.Fatalf("GetLecturerByUserID failed: %v", err)
	}
	env.course = &types.Course{
		Name:       "Networks",
		LecturerID: lecturer.ID,
		TimeSlots: []types.CourseTimeSlot{
			{Day: time.Wednesday, Start: 13 * 60, End: 14 * 60},
			{Day: time.Wednesday, Start: 10 * 60, End: 11 * 60},
			{Day: time.Friday, Start: 9 * 60, End: 10 * 60},
		},
	}
	if err := store.CreateCourse(ctx, env.course, nil); err != nil {
		t.Fatalf("CreateCourse failed: %v", err)
	}
	env.hall = &types.LectureHall{Name: "Main"}
	if err := store.CreateLectureHall(ctx, env.hall); err != nil {
		t.Fatalf("CreateLectureHall failed: %v", err)
	}
	return env
}

func (e *testEnv) request() interfaces.SessionCreation {
	return interfaces.SessionCreation{
		CourseID:              e.course.ID,
		LectureHallID:         e.hall.ID,
		Date:                  "2024-05-01",
		LectureStartTime:      "10:00",
		LectureEndTime:        "11:00",
		CodeExpirationMinutes: 5,
	}
}

func TestManager_CreateSession(t *testing.T) {
	env := setupEnv(t)

	session, err := env.manager.CreateSession(context.Background(), env.lecturer.ID, env.request())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	prefix := fmt.Sprintf("%03d-%02d-2405011000-", env.course.ID, env.hall.ID)
	if !strings.HasPrefix(session.Code, prefix) || !codegen.ValidCode(session.Code) {
		t.Errorf("Expected code with prefix %s, got %s", prefix, session.Code)
	}

	wantStart := time.Date(2024, 5, 1, 4, 30, 0, 0, time.UTC)
	if !session.LectureStartTime.Equal(wantStart) || !session.LectureEndTime.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("Lecture window not converted to UTC: %v - %v", session.LectureStartTime, session.LectureEndTime)
	}
	if !session.CreationTime.Equal(colomboMorning) || !session.ExpirationTime.Equal(colomboMorning.Add(5*time.Minute)) {
		t.Errorf("Unexpected creation/expiration: %v / %v", session.CreationTime, session.ExpirationTime)
	}
}

func TestManager_CreateSession_Validation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID int64
		mutate func(*interfaces.SessionCreation)
		want   error
	}{
		{"zero expiry", env.lecturer.ID, func(r *interfaces.SessionCreation) { r.CodeExpirationMinutes = 0 }, ErrInvalidExpiration},
		{"expiry above max", env.lecturer.ID, func(r *interfaces.SessionCreation) { r.CodeExpirationMinutes = 31 }, ErrInvalidExpiration},
		{"bad date", env.lecturer.ID, func(r *interfaces.SessionCreation) { r.Date = "01/05/2024" }, ErrInvalidDate},
		{"bad time", env.lecturer.ID, func(r *interfaces.SessionCreation) { r.LectureStartTime = "10am" }, ErrInvalidLectureTime},
		{"reversed window", env.lecturer.ID, func(r *interfaces.SessionCreation) { r.LectureEndTime = "09:00" }, ErrInvalidLectureRange},
		{"empty window", env.lecturer.ID, func(r *interfaces.SessionCreation) { r.LectureEndTime = "10:00" }, ErrInvalidLectureRange},
		{"foreign course", env.other.ID, func(r *interfaces.SessionCreation) {}, interfaces.ErrCourseNotFound},
		{"student caller", env.student.ID, func(r *interfaces.SessionCreation) {}, interfaces.ErrLecturerNotFound},
		{"unknown hall", env.lecturer.ID, func(r *interfaces.SessionCreation) { r.LectureHallID = 999 }, interfaces.ErrLectureHallNotFound},
		{"unknown course", env.lecturer.ID, func(r *interfaces.SessionCreation) { r.CourseID = 999 }, interfaces.ErrCourseNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := env.request()
			tt.mutate(&req)
			_, err := env.manager.CreateSession(ctx, tt.userID, req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestManager_CreateSession_FatalRandom(t *testing.T) {
	env := setupEnv(t)
	env.manager.SetGenerator(codegen.NewGeneratorWithSource(time.UTC, strings.NewReader("")))

	_, err := env.manager.CreateSession(context.Background(), env.lecturer.ID, env.request())
	if !errors.Is(err, interfaces.ErrFatal) {
		t.Errorf("Expected ErrFatal, got %v", err)
	}
}

func TestManager_GetActiveSession(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	if _, err := env.manager.GetActiveSession(ctx, env.lecturer.ID); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	created, err := env.manager.CreateSession(ctx, env.lecturer.ID, env.request())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	env.clock = colomboMorning.Add(90 * time.Second)
	active, err := env.manager.GetActiveSession(ctx, env.lecturer.ID)
	if err != nil {
		t.Fatalf("GetActiveSession failed: %v", err)
	}
	if active.SessionCode != created.Code || active.RemainingSeconds != 210 {
		t.Errorf("Unexpected active session: %+v", active)
	}

	env.clock = created.ExpirationTime
	if _, err := env.manager.GetActiveSession(ctx, env.lecturer.ID); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expired session should not be active, got %v", err)
	}
}

func TestManager_EndSession(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	created, err := env.manager.CreateSession(ctx, env.lecturer.ID, env.request())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := env.manager.EndSession(ctx, created.ID, env.other.ID); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Foreign lecturer should not end session, got %v", err)
	}
	if len(env.publisher.events[created.Code]) != 0 {
		t.Error("Failed end should publish nothing")
	}

	ended, err := env.manager.EndSession(ctx, created.ID, env.lecturer.ID)
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if ended.ID != created.ID {
		t.Errorf("Expected ended id %d, got %d", created.ID, ended.ID)
	}

	events := env.publisher.events[created.Code]
	if len(events) != 1 || events[0].Type != types.EventSessionEnded {
		t.Errorf("Expected one SessionEnded event, got %+v", events)
	}

	if _, err := env.manager.ListCheckedIn(ctx, created.Code); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after end, got %v", err)
	}
}

func TestManager_AuthorizeSubscription(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	created, err := env.manager.CreateSession(ctx, env.lecturer.ID, env.request())
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := env.manager.AuthorizeSubscription(ctx, env.lecturer.ID, created.Code); err != nil {
		t.Errorf("Owner should be authorized, got %v", err)
	}
	if err := env.manager.AuthorizeSubscription(ctx, env.other.ID, created.Code); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Foreign lecturer should see not found, got %v", err)
	}
	if err := env.manager.AuthorizeSubscription(ctx, env.lecturer.ID, "nope"); !errors.Is(err, interfaces.ErrSessionNotFound) {
		t.Errorf("Unknown code should be not found, got %v", err)
	}
}

func TestManager_TodayCourseTime(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	// Wednesday in Colombo: earliest Wednesday slot wins
	slot, err := env.manager.TodayCourseTime(ctx, env.lecturer.ID, env.course.ID)
	if err != nil {
		t.Fatalf("TodayCourseTime failed: %v", err)
	}
	if slot.Start != 10*60 || slot.End != 11*60 {
		t.Errorf("Expected 10:00-11:00, got %+v", slot)
	}

	// Thursday has no slot
	env.clock = colomboMorning.Add(24 * time.Hour)
	if _, err := env.manager.TodayCourseTime(ctx, env.lecturer.ID, env.course.ID); !errors.Is(err, interfaces.ErrCourseTimeNotFound) {
		t.Errorf("Expected ErrCourseTimeNotFound, got %v", err)
	}

	if _, err := env.manager.TodayCourseTime(ctx, env.other.ID, env.course.ID); !errors.Is(err, interfaces.ErrCourseNotFound) {
		t.Errorf("Foreign course should be not found, got %v", err)
	}
}

func TestManager_Listings(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	courses, err := env.manager.ListCourses(ctx, env.lecturer.ID)
	if err != nil || len(courses) != 1 || len(courses[0].TimeSlots) != 3 {
		t.Errorf("ListCourses returned %+v, %v", courses, err)
	}
	courses, err = env.manager.ListCourses(ctx, env.other.ID)
	if err != nil || len(courses) != 0 {
		t.Errorf("Other lecturer should have no courses, got %+v, %v", courses, err)
	}

	halls, err := env.manager.ListLectureHalls(ctx)
	if err != nil || len(halls) != 1 {
		t.Errorf("ListLectureHalls returned %+v, %v", halls, err)
	}
}

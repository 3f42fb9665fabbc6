package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"sams/internal/codegen"
	"sams/pkg/interfaces"
	"sams/pkg/types"
)

const dateLayout = "2006-01-02"

// Config carries the institution settings the lifecycle depends on
type Config struct {
	Location                 *time.Location
	MaxCodeExpirationMinutes int
	CodeAttempts             int
}

// Manager implements the SessionManager interface. It keeps no session
// state of its own; expiration is evaluated against the store on every read.
type Manager struct {
	dbManager interfaces.DatabaseManager
	publisher interfaces.Publisher
	codes     *codegen.Generator
	config    Config
	now       func() time.Time
}

// NewManager creates a new session manager
func NewManager(dbManager interfaces.DatabaseManager, publisher interfaces.Publisher, config Config) *Manager {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.CodeAttempts < 1 {
		config.CodeAttempts = 1
	}
	return &Manager{
		dbManager: dbManager,
		publisher: publisher,
		codes:     codegen.NewGenerator(config.Location),
		config:    config,
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// SetGenerator replaces the code generator
func (m *Manager) SetGenerator(g *codegen.Generator) {
	m.codes = g
}

// CreateSession opens a check-in window for a course the lecturer owns.
// Date and lecture times are wall-clock values in the institution zone and
// are stored as UTC instants.
func (m *Manager) CreateSession(ctx context.Context, lecturerUserID int64, req interfaces.SessionCreation) (*types.Session, error) {
	if req.CodeExpirationMinutes < 1 || req.CodeExpirationMinutes > m.config.MaxCodeExpirationMinutes {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidExpiration, m.config.MaxCodeExpirationMinutes)
	}

	start, end, err := m.lectureWindow(req)
	if err != nil {
		return nil, err
	}

	course, err := m.ownedCourse(ctx, lecturerUserID, req.CourseID)
	if err != nil {
		return nil, err
	}
	hall, err := m.dbManager.GetLectureHall(ctx, req.LectureHallID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC().Truncate(time.Millisecond)
	session := &types.Session{
		CourseID:         course.ID,
		LectureHallID:    hall.ID,
		CreationTime:     now,
		ExpirationTime:   now.Add(time.Duration(req.CodeExpirationMinutes) * time.Minute),
		LectureStartTime: start,
		LectureEndTime:   end,
	}

	codes := m.codes.For(course.ID, hall.ID, now)
	if err := m.dbManager.CreateSession(ctx, session, codes, m.config.CodeAttempts); err != nil {
		return nil, err
	}

	log.Printf("Created session: id=%d code=%s course=%d hall=%d expires=%s",
		session.ID, session.Code, session.CourseID, session.LectureHallID, session.ExpirationTime.Format(time.RFC3339))
	return session, nil
}

// lectureWindow resolves the request's local date and times to UTC instants
func (m *Manager) lectureWindow(req interfaces.SessionCreation) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, req.Date, m.config.Location)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidDate
	}
	startMin, err := types.ParseTimeOfDay(req.LectureStartTime)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidLectureTime
	}
	endMin, err := types.ParseTimeOfDay(req.LectureEndTime)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidLectureTime
	}
	if startMin >= endMin {
		return time.Time{}, time.Time{}, ErrInvalidLectureRange
	}

	at := func(minutes int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, m.config.Location).UTC()
	}
	return at(startMin), at(endMin), nil
}

// ownedCourse loads a course and hides it when the caller does not own it
func (m *Manager) ownedCourse(ctx context.Context, lecturerUserID, courseID int64) (*types.Course, error) {
	lecturer, err := m.dbManager.GetLecturerByUserID(ctx, lecturerUserID)
	if err != nil {
		return nil, err
	}
	course, err := m.dbManager.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.LecturerID != lecturer.ID {
		return nil, interfaces.ErrCourseNotFound
	}
	return course, nil
}

// GetActiveSession returns the lecturer's newest unexpired session
func (m *Manager) GetActiveSession(ctx context.Context, lecturerUserID int64) (*types.ActiveSession, error) {
	now := m.now().UTC()
	session, err := m.dbManager.GetActiveSession(ctx, lecturerUserID, now)
	if err != nil {
		return nil, err
	}
	return &types.ActiveSession{
		SessionID:        session.ID,
		SessionCode:      session.Code,
		CourseID:         session.CourseID,
		LectureHallID:    session.LectureHallID,
		CreationTime:     session.CreationTime,
		ExpirationTime:   session.ExpirationTime,
		LectureEndTime:   session.LectureEndTime,
		RemainingSeconds: session.RemainingSeconds(now),
	}, nil
}

// EndSession deletes the session with its attendances and tells live
// subscribers of its code that it is gone.
func (m *Manager) EndSession(ctx context.Context, sessionID, lecturerUserID int64) (*types.Session, error) {
	session, err := m.dbManager.DeleteOwnedSession(ctx, sessionID, lecturerUserID)
	if err != nil {
		return nil, err
	}

	delivered := 0
	if m.publisher != nil {
		delivered = m.publisher.Publish(session.Code, types.Event{
			Type:        types.EventSessionEnded,
			SessionCode: session.Code,
			Payload:     map[string]int64{"sessionId": session.ID},
			Timestamp:   m.now().UTC(),
		})
	}

	log.Printf("Ended session: id=%d code=%s notified=%d", session.ID, session.Code, delivered)
	return session, nil
}

// ListCheckedIn returns who has checked in for code, oldest first
func (m *Manager) ListCheckedIn(ctx context.Context, code string) ([]types.CheckedInStudent, error) {
	return m.dbManager.ListCheckedIn(ctx, code)
}

// AuthorizeSubscription lets a lecturer watch only codes of their own
// courses. Foreign codes look exactly like unknown ones.
func (m *Manager) AuthorizeSubscription(ctx context.Context, lecturerUserID int64, code string) error {
	owned, err := m.dbManager.GetSessionByCode(ctx, code)
	if err != nil {
		return err
	}
	if owned.LecturerUserID != lecturerUserID {
		return interfaces.ErrSessionNotFound
	}
	return nil
}

// ListCourses returns the lecturer's courses with their slots
func (m *Manager) ListCourses(ctx context.Context, lecturerUserID int64) ([]*types.Course, error) {
	lecturer, err := m.dbManager.GetLecturerByUserID(ctx, lecturerUserID)
	if err != nil {
		return nil, err
	}
	return m.dbManager.ListLecturerCourses(ctx, lecturer.ID)
}

// ListLectureHalls returns every venue
func (m *Manager) ListLectureHalls(ctx context.Context) ([]*types.LectureHall, error) {
	return m.dbManager.ListLectureHalls(ctx)
}

// TodayCourseTime returns the earliest slot of an owned course that falls on
// today's weekday in the institution zone.
func (m *Manager) TodayCourseTime(ctx context.Context, lecturerUserID, courseID int64) (*types.CourseTimeSlot, error) {
	course, err := m.ownedCourse(ctx, lecturerUserID, courseID)
	if err != nil {
		return nil, err
	}

	today := m.now().In(m.config.Location).Weekday()
	var found *types.CourseTimeSlot
	for i := range course.TimeSlots {
		slot := course.TimeSlots[i]
		if slot.Day != today {
			continue
		}
		if found == nil || slot.Start < found.Start {
			found = &slot
		}
	}
	if found == nil {
		return nil, interfaces.ErrCourseTimeNotFound
	}
	return found, nil
}

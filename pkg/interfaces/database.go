package interfaces

import (
	"context"
	"time"

	"sams/pkg/types"
)

// CodeFunc produces one candidate session code
type CodeFunc func() (string, error)

// SlotCheck inspects a lecturer's existing slots inside the write transaction
// and returns a non-nil error to abort it.
type SlotCheck func(existing []types.CourseTimeSlot) error

// DatabaseManager handles all persistence. It is the only serialization
// point for data invariants.
type DatabaseManager interface {
	// Identity records (owned by the surrounding system, read here by id)
	GetUser(ctx context.Context, userID int64) (*types.User, error)
	GetStudentByUserID(ctx context.Context, userID int64) (*types.Student, error)
	GetLecturerByUserID(ctx context.Context, userID int64) (*types.Lecturer, error)

	// RegisterUser inserts the identity row and its role profile atomically
	RegisterUser(ctx context.Context, user *types.User, passwordHash string) error

	// Courses and their weekly slots
	GetCourse(ctx context.Context, courseID int64) (*types.Course, error)
	ListLecturerCourses(ctx context.Context, lecturerID int64) ([]*types.Course, error)
	ListLecturerSlots(ctx context.Context, lecturerID, excludeCourseID int64) ([]types.CourseTimeSlot, error)
	CreateCourse(ctx context.Context, course *types.Course, check SlotCheck) error
	ReplaceCourse(ctx context.Context, course *types.Course, check SlotCheck) error

	// Lecture halls
	GetLectureHall(ctx context.Context, hallID int64) (*types.LectureHall, error)
	ListLectureHalls(ctx context.Context) ([]*types.LectureHall, error)
	CreateLectureHall(ctx context.Context, hall *types.LectureHall) error

	// CreateSession re-reads overlapping sessions for the hall, draws up to
	// attempts candidate codes until one is unexpired-unique, and inserts,
	// all in one transaction.
	CreateSession(ctx context.Context, session *types.Session, newCode CodeFunc, attempts int) error

	// GetActiveSession returns the lecturer's most recently created unexpired session
	GetActiveSession(ctx context.Context, lecturerUserID int64, now time.Time) (*types.Session, error)

	// GetSessionByCode resolves a code regardless of expiration
	GetSessionByCode(ctx context.Context, code string) (*types.SessionOwnership, error)

	// DeleteOwnedSession removes the session and its attendances atomically
	DeleteOwnedSession(ctx context.Context, sessionID, lecturerUserID int64) (*types.Session, error)

	// ListCheckedIn returns attendances for a code in check-in order
	ListCheckedIn(ctx context.Context, code string) ([]types.CheckedInStudent, error)

	// CheckIn validates and records one attendance in a single transaction
	CheckIn(ctx context.Context, userID int64, code string, now time.Time) (*types.CheckInRecord, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

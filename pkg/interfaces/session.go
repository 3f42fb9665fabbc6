package interfaces

import (
	"context"

	"sams/pkg/types"
)

// SessionCreation is the lecturer's create request. Date and times are local
// wall-clock values in the institution time zone.
type SessionCreation struct {
	CourseID              int64  `json:"courseId" validate:"required,gt=0"`
	LectureHallID         int64  `json:"lectureHallId" validate:"required,gt=0"`
	Date                  string `json:"date" validate:"required"`
	LectureStartTime      string `json:"lectureStartTime" validate:"required"`
	LectureEndTime        string `json:"lectureEndTime" validate:"required"`
	CodeExpirationMinutes int    `json:"codeExpirationMinutes" validate:"required,gt=0"`
}

// SessionManager handles session lifecycle operations for lecturers
type SessionManager interface {
	CreateSession(ctx context.Context, lecturerUserID int64, req SessionCreation) (*types.Session, error)
	GetActiveSession(ctx context.Context, lecturerUserID int64) (*types.ActiveSession, error)
	EndSession(ctx context.Context, sessionID, lecturerUserID int64) (*types.Session, error)
	ListCheckedIn(ctx context.Context, code string) ([]types.CheckedInStudent, error)

	// AuthorizeSubscription succeeds only for the lecturer owning the code's course
	AuthorizeSubscription(ctx context.Context, lecturerUserID int64, code string) error

	ListCourses(ctx context.Context, lecturerUserID int64) ([]*types.Course, error)
	ListLectureHalls(ctx context.Context) ([]*types.LectureHall, error)
	TodayCourseTime(ctx context.Context, lecturerUserID, courseID int64) (*types.CourseTimeSlot, error)
}

// CheckInProcessor records student attendance
type CheckInProcessor interface {
	CheckIn(ctx context.Context, studentUserID int64, code string) (*types.CheckInRecord, error)
}

// SlotInput is one weekly slot as sent by clients
type SlotInput struct {
	Day       int    `json:"day" validate:"min=0,max=6"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

// CourseInput is the create/replace payload for a course
type CourseInput struct {
	CourseName  string      `json:"courseName" validate:"required,max=200"`
	Semester    *int        `json:"semester,omitempty" validate:"omitempty,min=1,max=12"`
	CourseTimes []SlotInput `json:"courseTimes" validate:"dive"`
}

// CourseManager schedules a lecturer's courses without overlapping slots
type CourseManager interface {
	CreateCourse(ctx context.Context, lecturerUserID int64, in CourseInput) (*types.Course, error)
	UpdateCourse(ctx context.Context, lecturerUserID, courseID int64, in CourseInput) (*types.Course, error)
}

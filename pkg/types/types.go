package types

import (
	"time"
)

// Role claim values carried in bearer tokens
const (
	RoleStudent  = "Student"
	RoleLecturer = "Lecturer"
)

// Server push event names delivered over the live connection
const (
	EventNewCheckIn   = "NewCheckIn"
	EventSessionEnded = "SessionEnded"
	EventSubscribed   = "Subscribed"
	EventUnsubscribed = "Unsubscribed"
	EventError        = "Error"
)

// User is the identity record shared by students and lecturers
type User struct {
	ID       int64  `json:"userId"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	UserType string `json:"userType"`
}

// Student profile attached to a User
type Student struct {
	ID              int64 `json:"studentId"`
	UserID          int64 `json:"userId"`
	CurrentSemester *int  `json:"currentSemester,omitempty"`
}

// Lecturer profile attached to a User
type Lecturer struct {
	ID     int64 `json:"lecturerId"`
	UserID int64 `json:"userId"`
}

// Course is owned by exactly one lecturer
// FUNCTIONAL DISCOVERY: Slots are loaded by explicit query, never lazily
type Course struct {
	ID         int64            `json:"courseId"`
	Name       string           `json:"courseName"`
	Semester   *int             `json:"semester,omitempty"`
	LecturerID int64            `json:"lecturerId"`
	TimeSlots  []CourseTimeSlot `json:"courseTimes"`
}

// CourseTimeSlot is a weekly recurring range with no date component.
// Start and End are minutes after midnight; Day follows time.Weekday (0 = Sunday).
type CourseTimeSlot struct {
	ID       int64        `json:"-"`
	CourseID int64        `json:"-"`
	Day      time.Weekday `json:"day"`
	Start    int          `json:"-"`
	End      int          `json:"-"`
}

// LectureHall carries a bounding box used by proximity checks elsewhere
type LectureHall struct {
	ID           int64   `json:"lectureHallId"`
	Name         string  `json:"name"`
	MinLatitude  float64 `json:"minLatitude"`
	MaxLatitude  float64 `json:"maxLatitude"`
	MinLongitude float64 `json:"minLongitude"`
	MaxLongitude float64 `json:"maxLongitude"`
}

// Session is a single class meeting with a time-bounded check-in code.
// All instants are UTC.
type Session struct {
	ID               int64     `json:"sessionId"`
	CourseID         int64     `json:"courseId"`
	LectureHallID    int64     `json:"lectureHallId"`
	Code             string    `json:"sessionCode"`
	CreationTime     time.Time `json:"creationTime"`
	ExpirationTime   time.Time `json:"expirationTime"`
	LectureStartTime time.Time `json:"lectureStartTime"`
	LectureEndTime   time.Time `json:"lectureEndTime"`
}

// SessionState is recomputed on every read; nothing transitions it in the background
type SessionState string

const (
	SessionActive  SessionState = "active"
	SessionExpired SessionState = "expired"
)

// StateAt reports whether the session code is still usable at now
func (s *Session) StateAt(now time.Time) SessionState {
	if s.ExpirationTime.After(now) {
		return SessionActive
	}
	return SessionExpired
}

// RemainingSeconds returns whole seconds until expiration, never negative
func (s *Session) RemainingSeconds(now time.Time) int {
	remaining := int(s.ExpirationTime.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Attendance is at most one row per (SessionID, UserID)
type Attendance struct {
	ID          int64     `json:"attendanceId"`
	SessionID   int64     `json:"sessionId"`
	UserID      int64     `json:"userId"`
	CheckInTime time.Time `json:"checkInTime"`
}

// CheckInRecord is both the check-in acknowledgement and the NewCheckIn payload
type CheckInRecord struct {
	StudentName string    `json:"studentName"`
	CheckInTime time.Time `json:"checkInTime"`
	CourseName  string    `json:"courseName"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// CheckedInStudent is one row of ListCheckedIn
type CheckedInStudent struct {
	StudentName string    `json:"studentName"`
	CheckInTime time.Time `json:"checkInTime"`
}

// ActiveSession is the GetActive projection
type ActiveSession struct {
	SessionID        int64     `json:"sessionId"`
	SessionCode      string    `json:"sessionCode"`
	CourseID         int64     `json:"courseId"`
	LectureHallID    int64     `json:"lectureHallId"`
	CreationTime     time.Time `json:"creationTime"`
	ExpirationTime   time.Time `json:"expirationTime"`
	LectureEndTime   time.Time `json:"lectureEndTime"`
	RemainingSeconds int       `json:"remainingSeconds"`
}

// SessionOwnership pairs a session with the user id of the lecturer who owns its course
type SessionOwnership struct {
	Session        *Session
	LecturerUserID int64
}

// Event is a frame pushed to live subscribers
type Event struct {
	Type        string      `json:"type"`
	SessionCode string      `json:"sessionCode,omitempty"`
	Payload     interface{} `json:"payload,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

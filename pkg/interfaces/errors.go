package interfaces

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned across a component boundary wraps exactly
// one of these so callers classify with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRateLimited     = errors.New("rate limited")
	ErrTransient       = errors.New("transient store error")
	ErrFatal           = errors.New("fatal error")
)

// Specific errors shared by the session, check-in and course components
var (
	ErrSessionNotFound      = fmt.Errorf("%w: session not found", ErrNotFound)
	ErrCourseNotFound       = fmt.Errorf("%w: course not found", ErrNotFound)
	ErrLectureHallNotFound  = fmt.Errorf("%w: lecture hall not found", ErrNotFound)
	ErrLecturerNotFound     = fmt.Errorf("%w: lecturer not found", ErrNotFound)
	ErrStudentNotFound      = fmt.Errorf("%w: student not found for the current user", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrCourseTimeNotFound   = fmt.Errorf("%w: no course time found for today", ErrNotFound)
	ErrInvalidOrExpiredCode = fmt.Errorf("%w: invalid or expired session code", ErrValidation)
	ErrAlreadyCheckedIn     = fmt.Errorf("%w: already checked in for this session", ErrConflict)
	ErrHallBusy             = fmt.Errorf("%w: there is already a session scheduled in this lecture hall during the specified time", ErrConflict)
	ErrScheduleConflict     = fmt.Errorf("%w: scheduling conflict detected", ErrConflict)
	ErrDuplicateEmail       = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrCodeExhausted        = fmt.Errorf("%w: could not allocate a unique session code", ErrTransient)
	ErrWrongRole            = fmt.Errorf("%w: role not permitted for this operation", ErrForbidden)
	ErrCheckInThrottled     = fmt.Errorf("%w: too many check-in attempts, try again shortly", ErrRateLimited)
)

// Validationf builds a validation error with a human-readable reason
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsClientError reports whether err should be surfaced to the caller as-is
// and never retried automatically.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrRateLimited)
}

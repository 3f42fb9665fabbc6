package types

import "errors"

// Validation errors raised at the type level
var (
	ErrInvalidSlotRange  = errors.New("time slot start must be before end")
	ErrInvalidSlotDay    = errors.New("time slot day must be between 0 and 6")
	ErrInvalidTimeOfDay  = errors.New("time of day must be HH:mm between 00:00 and 23:59")
	ErrInvalidCourseName = errors.New("course name must be 1-200 characters")
	ErrInvalidRole       = errors.New("role must be 'Student' or 'Lecturer'")
)

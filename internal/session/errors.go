package session

import (
	"fmt"

	"sams/pkg/interfaces"
)

// Session request validation errors
var (
	ErrInvalidDate         = fmt.Errorf("%w: date must be yyyy-MM-dd", interfaces.ErrValidation)
	ErrInvalidLectureTime  = fmt.Errorf("%w: lecture times must be HH:mm", interfaces.ErrValidation)
	ErrInvalidLectureRange = fmt.Errorf("%w: lecture start time must be before end time", interfaces.ErrValidation)
	ErrInvalidExpiration   = fmt.Errorf("%w: code expiration minutes out of range", interfaces.ErrValidation)
)

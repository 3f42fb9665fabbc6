package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeOfDay parses "HH:mm" into minutes after midnight
func ParseTimeOfDay(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, ErrInvalidTimeOfDay
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, ErrInvalidTimeOfDay
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, ErrInvalidTimeOfDay
	}
	return h*60 + m, nil
}

// FormatTimeOfDay renders minutes after midnight as "HH:mm"
func FormatTimeOfDay(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Validate rejects degenerate and out-of-range slots before they reach the conflict detector
func (s CourseTimeSlot) Validate() error {
	if s.Day < time.Sunday || s.Day > time.Saturday {
		return ErrInvalidSlotDay
	}
	if s.Start < 0 || s.End > 24*60 {
		return ErrInvalidTimeOfDay
	}
	if s.Start >= s.End {
		return ErrInvalidSlotRange
	}
	return nil
}

// Validate checks course fields and every slot
func (c *Course) Validate() error {
	if name := strings.TrimSpace(c.Name); len(name) < 1 || len(name) > 200 {
		return ErrInvalidCourseName
	}
	for _, slot := range c.TimeSlots {
		if err := slot.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsValidRole checks the role claim against the two known roles
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleLecturer
}

// MarshalJSON renders the slot with "HH:mm" times, the form clients send
func (s CourseTimeSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        int64        `json:"courseTimeId,omitempty"`
		Day       time.Weekday `json:"day"`
		StartTime string       `json:"startTime"`
		EndTime   string       `json:"endTime"`
	}{s.ID, s.Day, FormatTimeOfDay(s.Start), FormatTimeOfDay(s.End)})
}

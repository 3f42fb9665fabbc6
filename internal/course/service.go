// Package course schedules a lecturer's courses so that no two of their
// weekly slots overlap.
package course

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"sams/internal/schedule"
	"sams/internal/validate"
	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// Service implements interfaces.CourseManager
type Service struct {
	dbManager interfaces.DatabaseManager
}

// NewService creates a course service
func NewService(dbManager interfaces.DatabaseManager) *Service {
	return &Service{dbManager: dbManager}
}

// CreateCourse adds a course for the calling lecturer after checking its
// slots against each other and against the lecturer's existing courses.
func (s *Service) CreateCourse(ctx context.Context, lecturerUserID int64, in interfaces.CourseInput) (*types.Course, error) {
	lecturer, err := s.dbManager.GetLecturerByUserID(ctx, lecturerUserID)
	if err != nil {
		return nil, err
	}

	course, err := buildCourse(in)
	if err != nil {
		return nil, err
	}
	course.LecturerID = lecturer.ID

	if err := s.dbManager.CreateCourse(ctx, course, schedule.Check(course.TimeSlots)); err != nil {
		return nil, err
	}
	return course, nil
}

// UpdateCourse replaces an owned course's name, semester and slots. The
// course's current slots are excluded from the conflict check.
func (s *Service) UpdateCourse(ctx context.Context, lecturerUserID, courseID int64, in interfaces.CourseInput) (*types.Course, error) {
	lecturer, err := s.dbManager.GetLecturerByUserID(ctx, lecturerUserID)
	if err != nil {
		return nil, err
	}

	course, err := buildCourse(in)
	if err != nil {
		return nil, err
	}
	course.ID = courseID
	course.LecturerID = lecturer.ID

	if err := s.dbManager.ReplaceCourse(ctx, course, schedule.Check(course.TimeSlots)); err != nil {
		return nil, err
	}
	log.Printf("Updated course: course_id=%d lecturer_id=%d", course.ID, lecturer.ID)
	return course, nil
}

// buildCourse validates the payload and converts it to a course with parsed slots
func buildCourse(in interfaces.CourseInput) (*types.Course, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	course := &types.Course{
		Name:      strings.TrimSpace(in.CourseName),
		Semester:  in.Semester,
		TimeSlots: make([]types.CourseTimeSlot, 0, len(in.CourseTimes)),
	}
	for i, slotIn := range in.CourseTimes {
		slot, err := parseSlot(slotIn)
		if err != nil {
			return nil, interfaces.Validationf("courseTimes[%d]: %v", i, err)
		}
		course.TimeSlots = append(course.TimeSlots, slot)
	}

	if err := course.Validate(); err != nil {
		return nil, interfaces.Validationf("%v", err)
	}
	if c, found := schedule.FindSelfConflict(course.TimeSlots); found {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrScheduleConflict, c.Error())
	}
	return course, nil
}

func parseSlot(in interfaces.SlotInput) (types.CourseTimeSlot, error) {
	start, err := types.ParseTimeOfDay(in.StartTime)
	if err != nil {
		return types.CourseTimeSlot{}, err
	}
	end, err := types.ParseTimeOfDay(in.EndTime)
	if err != nil {
		return types.CourseTimeSlot{}, err
	}
	slot := types.CourseTimeSlot{Day: time.Weekday(in.Day), Start: start, End: end}
	return slot, slot.Validate()
}

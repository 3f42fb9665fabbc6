package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// GetCourse retrieves a course with its weekly slots
func (m *Manager) GetCourse(ctx context.Context, courseID int64) (*types.Course, error) {
	course, err := scanCourse(m.db.QueryRowContext(ctx,
		`SELECT id, name, semester, lecturer_id FROM courses WHERE id = ?`, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query course: %w", err)
	}

	slots, err := querySlots(ctx, m.db,
		`SELECT id, course_id, day, start_minute, end_minute FROM course_times WHERE course_id = ? ORDER BY day, start_minute`,
		courseID)
	if err != nil {
		return nil, err
	}
	course.TimeSlots = slots
	return course, nil
}

// ListLecturerCourses returns every course the lecturer owns, slots included
func (m *Manager) ListLecturerCourses(ctx context.Context, lecturerID int64) ([]*types.Course, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, semester, lecturer_id FROM courses WHERE lecturer_id = ? ORDER BY id`, lecturerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	courses := make([]*types.Course, 0)
	byID := make(map[int64]*types.Course)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course row: %w", err)
		}
		course.TimeSlots = []types.CourseTimeSlot{}
		courses = append(courses, course)
		byID[course.ID] = course
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating course rows: %w", err)
	}

	slots, err := m.ListLecturerSlots(ctx, lecturerID, 0)
	if err != nil {
		return nil, err
	}
	for _, slot := range slots {
		if course, ok := byID[slot.CourseID]; ok {
			course.TimeSlots = append(course.TimeSlots, slot)
		}
	}
	return courses, nil
}

// ListLecturerSlots returns the slots of every course the lecturer owns
// except excludeCourseID (0 excludes nothing).
func (m *Manager) ListLecturerSlots(ctx context.Context, lecturerID, excludeCourseID int64) ([]types.CourseTimeSlot, error) {
	return querySlots(ctx, m.db, lecturerSlotsQuery, lecturerID, excludeCourseID)
}

const lecturerSlotsQuery = `
	SELECT ct.id, ct.course_id, ct.day, ct.start_minute, ct.end_minute
	FROM course_times ct
	JOIN courses c ON c.id = ct.course_id
	WHERE c.lecturer_id = ? AND c.id != ?
	ORDER BY ct.day, ct.start_minute
`

// CreateCourse inserts a course and its slots. check sees the lecturer's
// current slots inside the same transaction, so two concurrent creates
// cannot both pass it.
func (m *Manager) CreateCourse(ctx context.Context, course *types.Course, check interfaces.SlotCheck) error {
	return m.withTx(ctx, "create course", func(tx *sql.Tx) error {
		existing, err := querySlots(ctx, tx, lecturerSlotsQuery, course.LecturerID, 0)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(existing); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO courses (name, semester, lecturer_id) VALUES (?, ?, ?)`,
			course.Name, nullableInt(course.Semester), course.LecturerID)
		if err != nil {
			return fmt.Errorf("failed to insert course: %w", err)
		}
		if course.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read course id: %w", err)
		}

		if err := insertSlots(ctx, tx, course); err != nil {
			return err
		}
		log.Printf("Created course: course_id=%d lecturer_id=%d slots=%d", course.ID, course.LecturerID, len(course.TimeSlots))
		return nil
	})
}

// ReplaceCourse overwrites name, semester and the full slot set of an owned course
func (m *Manager) ReplaceCourse(ctx context.Context, course *types.Course, check interfaces.SlotCheck) error {
	return m.withTx(ctx, "replace course", func(tx *sql.Tx) error {
		var owner int64
		err := tx.QueryRowContext(ctx, `SELECT lecturer_id FROM courses WHERE id = ?`, course.ID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != course.LecturerID) {
			return interfaces.ErrCourseNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query course owner: %w", err)
		}

		existing, err := querySlots(ctx, tx, lecturerSlotsQuery, course.LecturerID, course.ID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(existing); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE courses SET name = ?, semester = ? WHERE id = ?`,
			course.Name, nullableInt(course.Semester), course.ID); err != nil {
			return fmt.Errorf("failed to update course: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM course_times WHERE course_id = ?`, course.ID); err != nil {
			return fmt.Errorf("failed to clear course times: %w", err)
		}
		if err := insertSlots(ctx, tx, course); err != nil {
			return err
		}
		log.Printf("Replaced course: course_id=%d slots=%d", course.ID, len(course.TimeSlots))
		return nil
	})
}

// GetLectureHall retrieves a lecture hall by id
func (m *Manager) GetLectureHall(ctx context.Context, hallID int64) (*types.LectureHall, error) {
	hall, err := scanHall(m.db.QueryRowContext(ctx,
		`SELECT id, name, min_latitude, max_latitude, min_longitude, max_longitude FROM lecture_halls WHERE id = ?`, hallID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrLectureHallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lecture hall: %w", err)
	}
	return hall, nil
}

// ListLectureHalls returns all halls ordered by name
func (m *Manager) ListLectureHalls(ctx context.Context) ([]*types.LectureHall, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, min_latitude, max_latitude, min_longitude, max_longitude FROM lecture_halls ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lecture halls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	halls := make([]*types.LectureHall, 0)
	for rows.Next() {
		hall, err := scanHall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lecture hall row: %w", err)
		}
		halls = append(halls, hall)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lecture hall rows: %w", err)
	}
	return halls, nil
}

// CreateLectureHall seeds a venue
func (m *Manager) CreateLectureHall(ctx context.Context, hall *types.LectureHall) error {
	return m.executeWrite(ctx, "create lecture hall", func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO lecture_halls (name, min_latitude, max_latitude, min_longitude, max_longitude) VALUES (?, ?, ?, ?, ?)`,
			hall.Name, hall.MinLatitude, hall.MaxLatitude, hall.MinLongitude, hall.MaxLongitude)
		if err != nil {
			return fmt.Errorf("failed to insert lecture hall: %w", err)
		}
		hall.ID, err = res.LastInsertId()
		return err
	})
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func querySlots(ctx context.Context, q queryer, query string, args ...interface{}) ([]types.CourseTimeSlot, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query course times: %w", err)
	}
	defer func() { _ = rows.Close() }()

	slots := make([]types.CourseTimeSlot, 0)
	for rows.Next() {
		var slot types.CourseTimeSlot
		var day int
		if err := rows.Scan(&slot.ID, &slot.CourseID, &day, &slot.Start, &slot.End); err != nil {
			return nil, fmt.Errorf("failed to scan course time row: %w", err)
		}
		slot.Day = time.Weekday(day)
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating course time rows: %w", err)
	}
	return slots, nil
}

func insertSlots(ctx context.Context, tx *sql.Tx, course *types.Course) error {
	for i := range course.TimeSlots {
		slot := &course.TimeSlots[i]
		res, err := tx.ExecContext(ctx,
			`INSERT INTO course_times (course_id, day, start_minute, end_minute) VALUES (?, ?, ?, ?)`,
			course.ID, int(slot.Day), slot.Start, slot.End)
		if err != nil {
			return fmt.Errorf("failed to insert course time: %w", err)
		}
		slot.CourseID = course.ID
		if slot.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read course time id: %w", err)
		}
	}
	return nil
}

func scanCourse(row rowScanner) (*types.Course, error) {
	var course types.Course
	var semester sql.NullInt64
	if err := row.Scan(&course.ID, &course.Name, &semester, &course.LecturerID); err != nil {
		return nil, err
	}
	if semester.Valid {
		v := int(semester.Int64)
		course.Semester = &v
	}
	return &course, nil
}

func scanHall(row rowScanner) (*types.LectureHall, error) {
	var hall types.LectureHall
	err := row.Scan(&hall.ID, &hall.Name, &hall.MinLatitude, &hall.MaxLatitude, &hall.MinLongitude, &hall.MaxLongitude)
	if err != nil {
		return nil, err
	}
	return &hall, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

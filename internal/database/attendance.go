package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// CheckIn records one attendance. The student, code and duplicate checks and
// the insert share one IMMEDIATE transaction, and UNIQUE(session_id, user_id)
// rejects a concurrent duplicate even if the reads raced.
func (m *Manager) CheckIn(ctx context.Context, userID int64, code string, now time.Time) (*types.CheckInRecord, error) {
	var record *types.CheckInRecord

	err := m.withTx(ctx, "check in", func(tx *sql.Tx) error {
		var studentID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM students WHERE user_id = ?`, userID).Scan(&studentID)
		if errors.Is(err, sql.ErrNoRows) {
			return interfaces.ErrStudentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query student: %w", err)
		}

		// Expired and unknown codes are indistinguishable to the caller
		var sessionID, courseID, start, end int64
		err = tx.QueryRowContext(ctx, `
			SELECT id, course_id, lecture_start_time, lecture_end_time
			FROM sessions
			WHERE session_code = ? AND expiration_time > ?
			ORDER BY creation_time DESC
			LIMIT 1`, code, toMillis(now),
		).Scan(&sessionID, &courseID, &start, &end)
		if errors.Is(err, sql.ErrNoRows) {
			return interfaces.ErrInvalidOrExpiredCode
		}
		if err != nil {
			return fmt.Errorf("failed to query session: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO attendances (session_id, user_id, check_in_time) VALUES (?, ?, ?)`,
			sessionID, userID, toMillis(now))
		if isUniqueViolation(err) {
			return interfaces.ErrAlreadyCheckedIn
		}
		if err != nil {
			return fmt.Errorf("failed to insert attendance: %w", err)
		}

		var studentName string
		err = tx.QueryRowContext(ctx, `SELECT COALESCE(name, '') FROM users WHERE id = ?`, userID).Scan(&studentName)
		if errors.Is(err, sql.ErrNoRows) {
			return interfaces.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query user: %w", err)
		}

		var courseName string
		if err := tx.QueryRowContext(ctx, `SELECT name FROM courses WHERE id = ?`, courseID).Scan(&courseName); err != nil {
			return fmt.Errorf("failed to query course: %w", err)
		}

		record = &types.CheckInRecord{
			StudentName: studentName,
			CheckInTime: fromMillis(toMillis(now)),
			CourseName:  courseName,
			StartTime:   fromMillis(start),
			EndTime:     fromMillis(end),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListCheckedIn returns the attendances of the newest session holding code,
// oldest check-in first. An unknown code is ErrSessionNotFound.
func (m *Manager) ListCheckedIn(ctx context.Context, code string) ([]types.CheckedInStudent, error) {
	var sessionID int64
	err := m.db.QueryRowContext(ctx, `
		SELECT id FROM sessions WHERE session_code = ?
		ORDER BY creation_time DESC, id DESC LIMIT 1`, code,
	).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session by code: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT COALESCE(u.name, ''), a.check_in_time
		FROM attendances a
		JOIN users u ON u.id = a.user_id
		WHERE a.session_id = ?
		ORDER BY a.check_in_time, a.id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	students := make([]types.CheckedInStudent, 0)
	for rows.Next() {
		var entry types.CheckedInStudent
		var at int64
		if err := rows.Scan(&entry.StudentName, &at); err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		entry.CheckInTime = fromMillis(at)
		students = append(students, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance rows: %w", err)
	}
	return students, nil
}

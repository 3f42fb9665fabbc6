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

const sessionColumns = `s.id, s.course_id, s.lecture_hall_id, s.session_code,
	s.creation_time, s.expiration_time, s.lecture_start_time, s.lecture_end_time`

// CreateSession inserts a session after re-reading the hall's overlapping
// sessions and drawing an unexpired-unique code, all in one transaction.
// An existing session occupies its hall from creation until lecture end.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session, newCode interfaces.CodeFunc, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}

	return m.withTx(ctx, "create session", func(tx *sql.Tx) error {
		var overlapping int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sessions
			WHERE lecture_hall_id = ? AND creation_time < ? AND ? < lecture_end_time`,
			session.LectureHallID, toMillis(session.LectureEndTime), toMillis(session.LectureStartTime),
		).Scan(&overlapping)
		if err != nil {
			return fmt.Errorf("failed to check hall availability: %w", err)
		}
		if overlapping > 0 {
			return interfaces.ErrHallBusy
		}

		code, err := drawUniqueCode(ctx, tx, newCode, attempts, session.CreationTime)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (course_id, lecture_hall_id, session_code, creation_time, expiration_time, lecture_start_time, lecture_end_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			session.CourseID, session.LectureHallID, code,
			toMillis(session.CreationTime), toMillis(session.ExpirationTime),
			toMillis(session.LectureStartTime), toMillis(session.LectureEndTime))
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read session id: %w", err)
		}

		session.ID = id
		session.Code = code
		return nil
	})
}

// drawUniqueCode asks for candidates until one is not held by an unexpired session
func drawUniqueCode(ctx context.Context, tx *sql.Tx, newCode interfaces.CodeFunc, attempts int, now time.Time) (string, error) {
	for i := 0; i < attempts; i++ {
		code, err := newCode()
		if err != nil {
			return "", err
		}

		var taken int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sessions WHERE session_code = ? AND expiration_time > ?`,
			code, toMillis(now),
		).Scan(&taken)
		if err != nil {
			return "", fmt.Errorf("failed to check session code: %w", err)
		}
		if taken == 0 {
			return code, nil
		}
		log.Printf("Session code collision: attempt=%d code=%s", i+1, code)
	}
	return "", interfaces.ErrCodeExhausted
}

// GetActiveSession returns the lecturer's most recently created unexpired session
func (m *Manager) GetActiveSession(ctx context.Context, lecturerUserID int64, now time.Time) (*types.Session, error) {
	session, err := scanSession(m.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions s
		JOIN courses c ON c.id = s.course_id
		JOIN lecturers l ON l.id = c.lecturer_id
		WHERE l.user_id = ? AND s.expiration_time > ?
		ORDER BY s.creation_time DESC, s.id DESC
		LIMIT 1`, lecturerUserID, toMillis(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return session, nil
}

// GetSessionByCode resolves a code regardless of expiration. When an expired
// session shares its code with a newer one the newest wins.
func (m *Manager) GetSessionByCode(ctx context.Context, code string) (*types.SessionOwnership, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`, l.user_id
		FROM sessions s
		JOIN courses c ON c.id = s.course_id
		JOIN lecturers l ON l.id = c.lecturer_id
		WHERE s.session_code = ?
		ORDER BY s.creation_time DESC, s.id DESC
		LIMIT 1`, code)

	var owner int64
	session, err := scanSession(row, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session by code: %w", err)
	}
	return &types.SessionOwnership{Session: session, LecturerUserID: owner}, nil
}

// DeleteOwnedSession removes a session the lecturer owns together with its
// attendances. A session owned by someone else is reported as not found.
func (m *Manager) DeleteOwnedSession(ctx context.Context, sessionID, lecturerUserID int64) (*types.Session, error) {
	var deleted *types.Session

	err := m.withTx(ctx, "delete session", func(tx *sql.Tx) error {
		session, err := scanSession(tx.QueryRowContext(ctx, `
			SELECT `+sessionColumns+`
			FROM sessions s
			JOIN courses c ON c.id = s.course_id
			JOIN lecturers l ON l.id = c.lecturer_id
			WHERE s.id = ? AND l.user_id = ?`, sessionID, lecturerUserID))
		if errors.Is(err, sql.ErrNoRows) {
			return interfaces.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM attendances WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to delete attendances: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return interfaces.ErrSessionNotFound
		}

		deleted = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func scanSession(row rowScanner, extra ...interface{}) (*types.Session, error) {
	var s types.Session
	var created, expires, start, end int64
	dest := append([]interface{}{
		&s.ID, &s.CourseID, &s.LectureHallID, &s.Code,
		&created, &expires, &start, &end,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	s.CreationTime = fromMillis(created)
	s.ExpirationTime = fromMillis(expires)
	s.LectureStartTime = fromMillis(start)
	s.LectureEndTime = fromMillis(end)
	return &s, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"sams/pkg/interfaces"
	"sams/pkg/types"
)

// GetUser retrieves an identity record by id
func (m *Manager) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	var user types.User
	err := m.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(name, ''), email, user_type FROM users WHERE id = ?`, userID,
	).Scan(&user.ID, &user.Name, &user.Email, &user.UserType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// GetUserCredentials retrieves an identity record and its password hash by email
func (m *Manager) GetUserCredentials(ctx context.Context, email string) (*types.User, string, error) {
	var user types.User
	var passwordHash string
	err := m.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(name, ''), email, user_type, password_hash FROM users WHERE email = ?`, email,
	).Scan(&user.ID, &user.Name, &user.Email, &user.UserType, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to query credentials: %w", err)
	}
	return &user, passwordHash, nil
}

// GetStudentByUserID resolves the Student profile of a user
func (m *Manager) GetStudentByUserID(ctx context.Context, userID int64) (*types.Student, error) {
	student, err := scanStudent(m.db.QueryRowContext(ctx,
		`SELECT id, user_id, current_semester FROM students WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query student: %w", err)
	}
	return student, nil
}

// GetLecturerByUserID resolves the Lecturer profile of a user
func (m *Manager) GetLecturerByUserID(ctx context.Context, userID int64) (*types.Lecturer, error) {
	var lecturer types.Lecturer
	err := m.db.QueryRowContext(ctx,
		`SELECT id, user_id FROM lecturers WHERE user_id = ?`, userID,
	).Scan(&lecturer.ID, &lecturer.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrLecturerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lecturer: %w", err)
	}
	return &lecturer, nil
}

// RegisterUser inserts the identity and its role profile in one transaction.
// A failed profile insert leaves no login-only account behind.
func (m *Manager) RegisterUser(ctx context.Context, user *types.User, passwordHash string) error {
	if !types.IsValidRole(user.UserType) {
		return interfaces.Validationf("user type must be %s or %s", types.RoleStudent, types.RoleLecturer)
	}

	return m.withTx(ctx, "register user", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (name, email, password_hash, user_type) VALUES (?, ?, ?, ?)`,
			user.Name, user.Email, passwordHash, user.UserType)
		if isUniqueViolation(err) {
			return interfaces.ErrDuplicateEmail
		}
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		userID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read user id: %w", err)
		}

		profile := `INSERT INTO lecturers (user_id) VALUES (?)`
		if user.UserType == types.RoleStudent {
			profile = `INSERT INTO students (user_id) VALUES (?)`
		}
		if _, err := tx.ExecContext(ctx, profile, userID); err != nil {
			return fmt.Errorf("failed to insert %s profile: %w", user.UserType, err)
		}

		user.ID = userID
		log.Printf("Registered user: user_id=%d type=%s", userID, user.UserType)
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStudent(row rowScanner) (*types.Student, error) {
	var student types.Student
	var semester sql.NullInt64
	if err := row.Scan(&student.ID, &student.UserID, &semester); err != nil {
		return nil, err
	}
	if semester.Valid {
		v := int(semester.Int64)
		student.CurrentSemester = &v
	}
	return &student, nil
}

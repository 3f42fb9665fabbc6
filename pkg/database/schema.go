package database

import (
	"database/sql"
	"errors"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables deployment
// verification without coupling to the migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check in order and stops at the first failure
func (v *SchemaValidator) Validate() error {
	checks := []func() error{
		v.ValidateTablesExist,
		v.ValidateTableStructure,
		v.ValidateIndexes,
		v.ValidateConstraints,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"users":             "Identity records",
		"students":          "Student profiles",
		"lecturers":         "Lecturer profiles",
		"courses":           "Course ownership",
		"course_times":      "Weekly course slots",
		"lecture_halls":     "Physical venues",
		"sessions":          "Attendance sessions",
		"attendances":       "Check-in records",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies the columns the manager scans into
// TECHNICAL DISCOVERY: Instants are INTEGER unix milliseconds, so a TEXT or
// DATETIME column here means an old schema
func (v *SchemaValidator) ValidateTableStructure() error {
	sessionColumns := map[string]string{
		"id":                 "INTEGER",
		"course_id":          "INTEGER",
		"lecture_hall_id":    "INTEGER",
		"session_code":       "TEXT",
		"creation_time":      "INTEGER",
		"expiration_time":    "INTEGER",
		"lecture_start_time": "INTEGER",
		"lecture_end_time":   "INTEGER",
	}
	if err := v.validateColumns("sessions", sessionColumns); err != nil {
		return fmt.Errorf("sessions table structure invalid: %w", err)
	}

	attendanceColumns := map[string]string{
		"id":            "INTEGER",
		"session_id":    "INTEGER",
		"user_id":       "INTEGER",
		"check_in_time": "INTEGER",
	}
	if err := v.validateColumns("attendances", attendanceColumns); err != nil {
		return fmt.Errorf("attendances table structure invalid: %w", err)
	}

	slotColumns := map[string]string{
		"course_id":    "INTEGER",
		"day":          "INTEGER",
		"start_minute": "INTEGER",
		"end_minute":   "INTEGER",
	}
	if err := v.validateColumns("course_times", slotColumns); err != nil {
		return fmt.Errorf("course_times table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_sessions_code":           "Check-in code lookups",
		"idx_sessions_hall_time":      "Hall overlap checks",
		"idx_sessions_course_created": "Active session lookups",
		"idx_attendances_session":     "Checked-in listing",
		"idx_course_times_course":     "Course slot loading",
		"idx_courses_lecturer":        "Lecturer course queries",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that the database enforces referential
// integrity and one attendance per student per session. Sentinel rows are
// written inside a transaction that is always rolled back.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin constraint check: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// attendances.session_id -> sessions.id
	if _, err := tx.Exec(`INSERT INTO attendances (session_id, user_id, check_in_time) VALUES (-1, -1, 0)`); err == nil {
		return errors.New("foreign key constraint not enforced: attendances.session_id")
	}

	res, err := tx.Exec(`INSERT INTO users (name, email, password_hash, user_type) VALUES ('sentinel', 'sentinel@schema.invalid', 'x', 'Lecturer')`)
	if err != nil {
		return fmt.Errorf("failed to create sentinel user: %w", err)
	}
	userID, _ := res.LastInsertId()

	if _, err := tx.Exec(`INSERT INTO users (name, email, password_hash, user_type) VALUES ('sentinel', 'sentinel2@schema.invalid', 'x', 'Admin')`); err == nil {
		return errors.New("check constraint not enforced: users.user_type")
	}

	res, err = tx.Exec(`INSERT INTO lecturers (user_id) VALUES (?)`, userID)
	if err != nil {
		return fmt.Errorf("failed to create sentinel lecturer: %w", err)
	}
	lecturerID, _ := res.LastInsertId()

	res, err = tx.Exec(`INSERT INTO courses (name, lecturer_id) VALUES ('sentinel', ?)`, lecturerID)
	if err != nil {
		return fmt.Errorf("failed to create sentinel course: %w", err)
	}
	courseID, _ := res.LastInsertId()

	res, err = tx.Exec(`INSERT INTO lecture_halls (name) VALUES ('sentinel')`)
	if err != nil {
		return fmt.Errorf("failed to create sentinel hall: %w", err)
	}
	hallID, _ := res.LastInsertId()

	res, err = tx.Exec(`
		INSERT INTO sessions (course_id, lecture_hall_id, session_code, creation_time, expiration_time, lecture_start_time, lecture_end_time)
		VALUES (?, ?, 'sentinel', 0, 1, 0, 1)`, courseID, hallID)
	if err != nil {
		return fmt.Errorf("failed to create sentinel session: %w", err)
	}
	sessionID, _ := res.LastInsertId()

	if _, err := tx.Exec(`INSERT INTO attendances (session_id, user_id, check_in_time) VALUES (?, ?, 0)`, sessionID, userID); err != nil {
		return fmt.Errorf("failed to create sentinel attendance: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO attendances (session_id, user_id, check_in_time) VALUES (?, ?, 1)`, sessionID, userID); err == nil {
		return errors.New("unique constraint not enforced: attendances(session_id, user_id)")
	}

	return nil
}

// tableExists checks if a table exists in the database
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database
func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}

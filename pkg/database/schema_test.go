package database

import (
	"strings"
	"testing"
)

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db)

	if err := validator.ValidateTablesExist(); err == nil {
		t.Error("ValidateTablesExist should fail on empty database")
	}
	if err := validator.ValidateIndexes(); err == nil {
		t.Error("ValidateIndexes should fail on empty database")
	}
}

func TestSchemaValidator_MigratedDatabase(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	validator := NewSchemaValidator(db)
	if err := validator.Validate(); err != nil {
		t.Fatalf("Validate failed on migrated database: %v", err)
	}

	// Sentinel rows never survive validation
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected constraint check to roll back, found %d users", count)
	}
}

func TestSchemaValidator_DetectsWrongColumnType(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`CREATE TABLE sessions (
		id INTEGER PRIMARY KEY, course_id INTEGER, lecture_hall_id INTEGER,
		session_code TEXT, creation_time DATETIME, expiration_time INTEGER,
		lecture_start_time INTEGER, lecture_end_time INTEGER)`)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err = NewSchemaValidator(db).ValidateTableStructure()
	if err == nil || !strings.Contains(err.Error(), "creation_time") {
		t.Errorf("Expected creation_time type mismatch, got %v", err)
	}
}

func TestSchemaValidator_DetectsMissingUniqueAttendance(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db).ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	// Rebuild attendances without the unique pair
	stmts := []string{
		"DROP TABLE attendances",
		`CREATE TABLE attendances (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id),
			check_in_time INTEGER NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Exec %q failed: %v", stmt, err)
		}
	}

	err := NewSchemaValidator(db).ValidateConstraints()
	if err == nil || !strings.Contains(err.Error(), "unique") {
		t.Errorf("Expected unique constraint failure, got %v", err)
	}
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	dbconfig "sams/pkg/database"
	"sams/pkg/interfaces"
)

var _ interfaces.DatabaseManager = (*Manager)(nil)

// Manager implements the DatabaseManager interface
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation is one queued write carrying its caller's context
type writeOperation struct {
	ctx       context.Context
	name      string
	operation func(ctx context.Context, db *sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the embedded migrations and starts
// the writer goroutine.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
// A busy or locked failure is retried once after BusyRetryDelay, and only
// while the caller is still waiting.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := m.runWrite(op)
			if isBusy(err) && op.ctx.Err() == nil {
				log.Printf("Database write busy, retrying: op=%s err=%v", op.name, err)
				select {
				case <-time.After(m.config.BusyRetryDelay):
					err = m.runWrite(op)
				case <-op.ctx.Done():
				}
				if err != nil {
					log.Printf("Database write failed after retry: op=%s err=%v", op.name, err)
				}
			}
			op.result <- classify(err)

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

func (m *Manager) runWrite(op writeOperation) error {
	if err := op.ctx.Err(); err != nil {
		return err
	}
	return op.operation(op.ctx, m.db)
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, name string, operation func(context.Context, *sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	op := writeOperation{ctx: ctx, name: name, operation: operation, result: result}

	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	select {
	case m.writeChannel <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: write operation %s timed out in queue", interfaces.ErrTransient, name)
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}

	// The operation itself observes ctx through BeginTx/ExecContext, so the
	// result always arrives unless the loop shuts down first.
	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// withTx runs fn inside one IMMEDIATE transaction on the writer
func (m *Manager) withTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	return m.executeWrite(ctx, name, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit %s: %w", name, err)
		}
		return nil
	})
}

// isBusy reports SQLite lock contention
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// isUniqueViolation reports a UNIQUE constraint failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// classify tags lock contention and timeouts as transient so callers know a
// retry is safe. Everything else passes through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, interfaces.ErrTransient):
		return err
	case isBusy(err):
		return fmt.Errorf("%w: %v", interfaces.ErrTransient, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", interfaces.ErrTransient, err)
	}
	return err
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection for schema validation
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// applySQLiteOptimizations applies performance optimizations
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent readers
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA cache_size = -64000",  // 64MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON", // Cascade attendances with their session
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

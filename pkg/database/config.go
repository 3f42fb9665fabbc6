package database

import (
	"errors"
	"time"
)

// Config holds database configuration
type Config struct {
	DatabasePath    string        `json:"database_path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	// WriteTimeout bounds how long a write waits for the single writer
	WriteTimeout time.Duration `json:"write_timeout"`
	// BusyRetryDelay is the pause before the one retry of a busy/locked write
	BusyRetryDelay time.Duration `json:"busy_retry_delay"`
}

// DefaultConfig returns production-ready database configuration
// FUNCTIONAL DISCOVERY: SQLite performs well with 10 connections at
// department scale (a few hundred concurrent check-ins)
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/sams.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
		WriteTimeout:    30 * time.Second,
		BusyRetryDelay:  250 * time.Millisecond,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be greater than 0")
	}
	if c.BusyRetryDelay < 0 {
		return errors.New("busy retry delay cannot be negative")
	}
	return nil
}

// DSN builds the go-sqlite3 connection string.
// ARCHITECTURAL DISCOVERY: _txlock=immediate makes every BeginTx take the
// write lock up front, so read-then-insert sequences inside a transaction
// cannot interleave with another writer.
func (c *Config) DSN() string {
	return "file:" + c.DatabasePath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate"
}

// Package storage persists the ledger in SQLite. One SQLiteRepository owns
// the connection; schema changes go through embedded migrations.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"splitledger/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrDuplicateRow   = errors.New("row already exists")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// UserAccount is a user row including credentials. Handlers convert it to
// core.User before anything leaves the process.
type UserAccount struct {
	core.User
	PasswordHash string
	CreatedAt    time.Time
}

// Session is a bearer token row.
type Session struct {
	Token     string
	UserID    core.UserID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Notification is one activity row fanned out to a group member.
type Notification struct {
	ID        int64       `json:"id"`
	UserID    core.UserID `json:"user_id"`
	GroupID   int64       `json:"group_id"`
	ExpenseID int64       `json:"expense_id,omitempty"`
	Action    string      `json:"action"`
	ActorID   core.UserID `json:"actor_id"`
	Read      bool        `json:"read"`
	CreatedAt time.Time   `json:"created_at"`
}

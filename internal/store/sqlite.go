// Package store provides storage backends for FastTrack.
//
// This file implements the SQLite-backed store, the default for a single
// installation.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/FastTrack/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the SQLite database file; the containing
// directory is created if it does not exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveRunState stores or replaces the singleton run state snapshot.
func (s *SQLiteStore) SaveRunState(state models.RunState) error {
	query := `
		INSERT OR REPLACE INTO run_state
		(id, is_running, time_left_seconds, active_plan_id, start_time, end_time, notifications_enabled, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, state.IsRunning, state.TimeLeftSeconds, state.ActivePlanID,
		formatTimePtr(state.StartTime), formatTimePtr(state.EndTime),
		state.NotificationsEnabled, formatTime(time.Now()))
	if err != nil {
		slog.Error("SQLiteStore SaveRunState failed", "error", err, "plan", state.ActivePlanID)
		return fmt.Errorf("failed to save run state: %w", err)
	}
	slog.Debug("SQLiteStore SaveRunState succeeded", "plan", state.ActivePlanID, "running", state.IsRunning)
	return nil
}

// LoadRunState returns the persisted snapshot, or nil if none has been saved.
func (s *SQLiteStore) LoadRunState() (*models.RunState, error) {
	row := s.db.QueryRow(`
		SELECT is_running, time_left_seconds, active_plan_id, start_time, end_time, notifications_enabled, updated_at
		FROM run_state WHERE id = 1`)
	state, err := scanRunState(row)
	if err != nil {
		slog.Error("SQLiteStore LoadRunState failed", "error", err)
		return nil, err
	}
	if state == nil {
		slog.Debug("SQLiteStore LoadRunState: no snapshot")
		return nil, nil
	}
	slog.Debug("SQLiteStore LoadRunState succeeded", "plan", state.ActivePlanID, "running", state.IsRunning)
	return state, nil
}

// AddSession appends a session record.
func (s *SQLiteStore) AddSession(session models.Session) error {
	if err := session.Validate(); err != nil {
		slog.Error("SQLiteStore AddSession rejected invalid session", "error", err, "id", session.ID)
		return err
	}
	query := `
		INSERT INTO sessions
		(id, plan_id, start_time, end_time, actual_duration_minutes, target_duration_minutes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, session.ID, session.PlanID,
		formatTime(session.StartTime), formatTime(session.EndTime),
		session.ActualDurationMinutes, session.TargetDurationMinutes,
		string(session.Status), formatTime(session.CreatedAt), formatTime(session.UpdatedAt))
	if err != nil {
		slog.Error("SQLiteStore AddSession failed", "error", err, "id", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	slog.Debug("SQLiteStore AddSession succeeded", "id", session.ID, "status", session.Status)
	return nil
}

// GetSessions returns all sessions in insertion order.
func (s *SQLiteStore) GetSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, plan_id, start_time, end_time, actual_duration_minutes, target_duration_minutes, status, created_at, updated_at
		FROM sessions ORDER BY rowid`)
	if err != nil {
		slog.Error("SQLiteStore GetSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			slog.Error("SQLiteStore GetSessions scan failed", "error", err)
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("SQLiteStore GetSessions succeeded", "count", len(sessions))
	return sessions, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

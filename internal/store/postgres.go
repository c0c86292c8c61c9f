// Package store provides storage backends for FastTrack.
//
// This file implements the PostgreSQL-backed store, selected when the DSN
// looks like a PostgreSQL connection string.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/FastTrack/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// SaveRunState stores or replaces the singleton run state snapshot.
func (s *PostgresStore) SaveRunState(state models.RunState) error {
	query := `
		INSERT INTO run_state
		(id, is_running, time_left_seconds, active_plan_id, start_time, end_time, notifications_enabled, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			is_running = EXCLUDED.is_running,
			time_left_seconds = EXCLUDED.time_left_seconds,
			active_plan_id = EXCLUDED.active_plan_id,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			notifications_enabled = EXCLUDED.notifications_enabled,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.Exec(query, state.IsRunning, state.TimeLeftSeconds, state.ActivePlanID,
		formatTimePtr(state.StartTime), formatTimePtr(state.EndTime),
		state.NotificationsEnabled, formatTime(time.Now()))
	if err != nil {
		slog.Error("PostgresStore SaveRunState failed", "error", err, "plan", state.ActivePlanID)
		return fmt.Errorf("failed to save run state: %w", err)
	}
	slog.Debug("PostgresStore SaveRunState succeeded", "plan", state.ActivePlanID, "running", state.IsRunning)
	return nil
}

// LoadRunState returns the persisted snapshot, or nil if none has been saved.
func (s *PostgresStore) LoadRunState() (*models.RunState, error) {
	row := s.db.QueryRow(`
		SELECT is_running, time_left_seconds, active_plan_id, start_time, end_time, notifications_enabled, updated_at
		FROM run_state WHERE id = 1`)
	state, err := scanRunState(row)
	if err != nil {
		slog.Error("PostgresStore LoadRunState failed", "error", err)
		return nil, err
	}
	if state == nil {
		slog.Debug("PostgresStore LoadRunState: no snapshot")
		return nil, nil
	}
	slog.Debug("PostgresStore LoadRunState succeeded", "plan", state.ActivePlanID, "running", state.IsRunning)
	return state, nil
}

// AddSession appends a session record.
func (s *PostgresStore) AddSession(session models.Session) error {
	if err := session.Validate(); err != nil {
		slog.Error("PostgresStore AddSession rejected invalid session", "error", err, "id", session.ID)
		return err
	}
	query := `
		INSERT INTO sessions
		(id, plan_id, start_time, end_time, actual_duration_minutes, target_duration_minutes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.Exec(query, session.ID, session.PlanID,
		formatTime(session.StartTime), formatTime(session.EndTime),
		session.ActualDurationMinutes, session.TargetDurationMinutes,
		string(session.Status), formatTime(session.CreatedAt), formatTime(session.UpdatedAt))
	if err != nil {
		slog.Error("PostgresStore AddSession failed", "error", err, "id", session.ID)
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	slog.Debug("PostgresStore AddSession succeeded", "id", session.ID, "status", session.Status)
	return nil
}

// GetSessions returns all sessions in insertion order.
func (s *PostgresStore) GetSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, plan_id, start_time, end_time, actual_duration_minutes, target_duration_minutes, status, created_at, updated_at
		FROM sessions ORDER BY seq`)
	if err != nil {
		slog.Error("PostgresStore GetSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			slog.Error("PostgresStore GetSessions scan failed", "error", err)
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("PostgresStore GetSessions succeeded", "count", len(sessions))
	return sessions, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

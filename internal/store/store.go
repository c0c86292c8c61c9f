// Package store provides storage backends for FastTrack.
//
// It persists the singleton run state snapshot and the append-only session
// ledger. Backends: in-memory (tests, ephemeral runs), SQLite (default), and
// PostgreSQL. The DSN decides which SQL backend is used.
package store

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/FastTrack/internal/models"
)

// Store is the persistence gateway consumed by the engine and the ledger.
// LoadRunState returns nil when no snapshot has ever been saved.
type Store interface {
	SaveRunState(state models.RunState) error
	LoadRunState() (*models.RunState, error)
	AddSession(session models.Session) error
	GetSessions() ([]models.Session, error)
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore keeps state and sessions in process memory. Used by tests
// and when no DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	state    *models.RunState
	sessions []models.Session
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// SaveRunState stores a copy of the run state snapshot.
func (s *InMemoryStore) SaveRunState(state models.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := state
	s.state = &snapshot
	return nil
}

// LoadRunState returns the last saved snapshot, or nil if none exists.
func (s *InMemoryStore) LoadRunState() (*models.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, nil
	}
	snapshot := *s.state
	return &snapshot, nil
}

// AddSession appends a session record.
func (s *InMemoryStore) AddSession(session models.Session) error {
	if err := session.Validate(); err != nil {
		slog.Error("InMemoryStore AddSession rejected invalid session", "error", err, "id", session.ID)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
	return nil
}

// GetSessions returns all sessions in insertion order.
func (s *InMemoryStore) GetSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Session, len(s.sessions))
	copy(out, s.sessions)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

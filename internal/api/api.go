// Package api provides HTTP handlers and the main API server logic for
// FastTrack.
//
// It exposes RESTful endpoints for the fasting state machine, the plan
// catalog, and the session ledger. The API integrates with the engine,
// ledger, and store modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/FastTrack/internal/engine"
	"github.com/BTreeMap/FastTrack/internal/ledger"
	"github.com/BTreeMap/FastTrack/internal/notify"
	"github.com/BTreeMap/FastTrack/internal/plans"
	"github.com/BTreeMap/FastTrack/internal/scheduler"
	"github.com/BTreeMap/FastTrack/internal/store"
)

// Default configuration constants
const (
	// DefaultAPIAddr is the default address the API server listens on.
	DefaultAPIAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown of in-flight requests.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP endpoints to the engine, catalog, and ledger.
type Server struct {
	addr    string
	engine  *engine.Engine
	catalog *plans.Catalog
	ledger  *ledger.Ledger
}

// NewServer creates an API server around existing modules.
func NewServer(eng *engine.Engine, catalog *plans.Catalog, led *ledger.Ledger, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAPIAddr
	}
	return &Server{addr: cfg.Addr, engine: eng, catalog: catalog, ledger: led}
}

// Handler returns the routed HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/state", s.stateHandler)
	mux.HandleFunc("/start", s.startHandler)
	mux.HandleFunc("/pause", s.pauseHandler)
	mux.HandleFunc("/reset", s.resetHandler)
	mux.HandleFunc("/plan", s.planHandler)
	mux.HandleFunc("/notifications", s.notificationsHandler)
	mux.HandleFunc("/reconcile", s.reconcileHandler)
	mux.HandleFunc("/plans", s.plansHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/stats/weekly", s.statsWeeklyHandler)
}

// Run bootstraps every module from the given options and serves the API
// until the process receives an interrupt or termination signal.
func Run(storeOpts []store.Option, notifyOpts []notify.LocalOption, engineOpts []engine.Option, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Error("Server.Run: failed to close store", "error", cerr)
		}
	}()

	catalog := plans.Default()
	led := ledger.New(st)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	gateway := notify.NewLocalGateway(sched, notifyOpts...)
	service := notify.NewService(gateway)
	defer service.Close()

	eng, err := engine.NewEngine(catalog, st, led, service, engineOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			slog.Error("Server.Run: failed to close engine", "error", cerr)
		}
	}()

	srv := NewServer(eng, catalog, led, apiOpts...)
	httpSrv := &http.Server{Addr: srv.addr, Handler: srv.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: FastTrack API listening", "addr", srv.addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Server.Run: shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
	}
	return nil
}

// buildStore selects the storage backend from the configured DSN. No DSN
// means an in-memory store that does not survive restarts.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Warn("Server.buildStore: no DSN configured, state will not survive restarts")
		return store.NewInMemoryStore(), nil
	}
	switch store.DetectDSNType(cfg.DSN) {
	case "postgres":
		slog.Debug("Server.buildStore: using PostgreSQL backend")
		return store.NewPostgresStore(storeOpts...)
	default:
		slog.Debug("Server.buildStore: using SQLite backend", "path", cfg.DSN)
		return store.NewSQLiteStore(storeOpts...)
	}
}

// Package api provides HTTP handlers for FastTrack endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/FastTrack/internal/ledger"
	"github.com/BTreeMap/FastTrack/internal/models"
)

// changePlanRequest selects a new active plan.
type changePlanRequest struct {
	PlanID string `json:"plan_id"`
}

// notificationsRequest toggles the notification preference.
type notificationsRequest struct {
	Enabled bool `json:"enabled"`
}

// reconcileRequest optionally carries the client's wall clock. An empty body
// reconciles against the server clock.
type reconcileRequest struct {
	Now *time.Time `json:"now,omitempty"`
}

// statsResult is the aggregate statistics payload.
type statsResult struct {
	ledger.Summary
	CurrentStreakDays int `json:"current_streak_days"`
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.stateHandler: processing state request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.stateHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.Snapshot()))
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.startHandler: processing start request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.startHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap := s.engine.Start()
	slog.Info("Server.startHandler: fast started", "plan", snap.ActivePlanID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Fast started", snap))
}

func (s *Server) pauseHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.pauseHandler: processing pause request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.pauseHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap := s.engine.Pause()
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Fast paused", snap))
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.resetHandler: processing reset request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.resetHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap := s.engine.Reset()
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Fast reset", snap))
}

func (s *Server) planHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.planHandler: processing plan change request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.planHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req changePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.planHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.PlanID == "" {
		slog.Warn("Server.planHandler: missing plan id")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: plan_id"))
		return
	}

	snap, err := s.engine.ChangePlan(req.PlanID)
	if err != nil {
		if errors.Is(err, models.ErrPlanNotFound) {
			slog.Warn("Server.planHandler: unknown plan", "plan", req.PlanID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Plan not found"))
			return
		}
		slog.Error("Server.planHandler: plan change failed", "error", err, "plan", req.PlanID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to change plan"))
		return
	}
	slog.Info("Server.planHandler: plan changed", "plan", req.PlanID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Plan changed", snap))
}

func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.notificationsHandler: processing notifications request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.notificationsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req notificationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.notificationsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	snap := s.engine.ToggleNotifications(req.Enabled)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Notification preference updated", snap))
}

func (s *Server) reconcileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.reconcileHandler: processing reconcile request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.reconcileHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Server.reconcileHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	now := time.Now()
	if req.Now != nil {
		now = *req.Now
	}
	snap := s.engine.ReconcileOnResume(now)
	writeJSONResponse(w, http.StatusOK, models.Success(snap))
}

func (s *Server) plansHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.plansHandler: processing plans request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.plansHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.catalog.ListByCategory()))
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sessionsHandler: processing sessions request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.sessionsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessions, err := s.ledger.All()
	if err != nil {
		slog.Error("Server.sessionsHandler: failed to read sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read sessions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statsHandler: processing stats request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.statsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summary, err := s.ledger.Summarize()
	if err != nil {
		slog.Error("Server.statsHandler: failed to summarize ledger", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute statistics"))
		return
	}
	streak, err := s.ledger.Streak(time.Now())
	if err != nil {
		slog.Error("Server.statsHandler: failed to compute streak", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute statistics"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(statsResult{Summary: summary, CurrentStreakDays: streak}))
}

func (s *Server) statsWeeklyHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statsWeeklyHandler: processing weekly stats request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.statsWeeklyHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Default window is the trailing 7 days ending today.
	weekStart := time.Now().AddDate(0, 0, -6)
	if raw := r.URL.Query().Get("week_start"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			slog.Warn("Server.statsWeeklyHandler: invalid week start date", "week_start", raw)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid week_start date, expected YYYY-MM-DD"))
			return
		}
		weekStart = parsed
	}

	buckets, err := s.ledger.WeeklyBuckets(weekStart)
	if err != nil {
		slog.Error("Server.statsWeeklyHandler: failed to bucket sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute weekly statistics"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(buckets))
}

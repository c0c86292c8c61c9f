// Package engine implements the fasting state machine: the singleton run
// state, its transition operations, and the clock reconciliation that keeps
// the countdown honest across process restarts.
//
// The absolute end time is the ground truth for an armed fast. The countdown
// shown to callers is always derived from it, never from accumulated ticks,
// so a fast completes on schedule no matter how long the process was away.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FastTrack/internal/ledger"
	"github.com/BTreeMap/FastTrack/internal/models"
	"github.com/BTreeMap/FastTrack/internal/notify"
	"github.com/BTreeMap/FastTrack/internal/plans"
	"github.com/BTreeMap/FastTrack/internal/store"
	"github.com/BTreeMap/FastTrack/internal/util"
	"github.com/google/uuid"
)

// DefaultTickInterval is how often a running fast refreshes its countdown.
const DefaultTickInterval = time.Second

// Opts holds configuration options for the engine.
type Opts struct {
	TickInterval time.Duration
	Now          func() time.Time
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithTickInterval overrides the countdown refresh interval.
func WithTickInterval(d time.Duration) Option {
	return func(o *Opts) {
		if d > 0 {
			o.TickInterval = d
		}
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		if now != nil {
			o.Now = now
		}
	}
}

// Snapshot is a read-only view of the run state plus derived progress.
type Snapshot struct {
	models.RunState
	ProgressPercent float64 `json:"progress_percent"`
}

// Engine owns the singleton RunState. All transitions go through its methods;
// each one mutates under the lock, emits notification intents, and persists
// the new state.
type Engine struct {
	catalog  *plans.Catalog
	store    store.Store
	ledger   *ledger.Ledger
	notifier *notify.Service

	tickInterval time.Duration
	now          func() time.Time

	mu            sync.Mutex
	state         models.RunState
	runKey        string
	gen           uint64
	milestoneMark int
}

// NewEngine restores the run state from the store and returns a ready engine.
// A persisted plan id that no longer resolves falls back to the default plan
// with the run cleared. A restored running fast is reconciled against the
// clock immediately.
func NewEngine(catalog *plans.Catalog, st store.Store, led *ledger.Ledger, notifier *notify.Service, opts ...Option) (*Engine, error) {
	cfg := Opts{TickInterval: DefaultTickInterval, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		catalog:       catalog,
		store:         st,
		ledger:        led,
		notifier:      notifier,
		tickInterval:  cfg.TickInterval,
		now:           cfg.Now,
		milestoneMark: -1,
	}

	saved, err := st.LoadRunState()
	if err != nil {
		return nil, fmt.Errorf("failed to restore run state: %w", err)
	}

	defaultPlan := catalog.DefaultPlan()
	if saved == nil {
		e.state = models.RunState{
			ActivePlanID:    defaultPlan.ID,
			TimeLeftSeconds: defaultPlan.DurationSeconds,
		}
		slog.Debug("Engine.NewEngine: no saved state, starting fresh", "plan", defaultPlan.ID)
		return e, nil
	}

	e.state = *saved
	activePlan, planErr := catalog.Get(saved.ActivePlanID)
	if planErr != nil {
		slog.Warn("Engine.NewEngine: saved plan no longer exists, falling back to default",
			"saved_plan", saved.ActivePlanID, "default_plan", defaultPlan.ID)
		e.state = models.RunState{
			ActivePlanID:         defaultPlan.ID,
			TimeLeftSeconds:      defaultPlan.DurationSeconds,
			NotificationsEnabled: saved.NotificationsEnabled,
		}
		if saved.NotificationsEnabled {
			notifier.EnableDaily()
		}
		e.persistAsync()
		return e, nil
	}

	// A corrupted snapshot (running without times) must not crash or start a
	// phantom run; clear it back to an idle full duration.
	if err := e.state.Validate(); err != nil {
		slog.Warn("Engine.NewEngine: saved state is invalid, clearing run",
			"error", err, "plan", activePlan.ID)
		e.state = models.RunState{
			ActivePlanID:         activePlan.ID,
			TimeLeftSeconds:      activePlan.DurationSeconds,
			NotificationsEnabled: saved.NotificationsEnabled,
		}
		e.persistAsync()
	}

	// Scheduled reminders did not survive the restart; rebuild them from the
	// restored state.
	if e.state.NotificationsEnabled {
		notifier.EnableDaily()
	}
	if e.state.IsRunning {
		e.mu.Lock()
		e.runKey = uuid.NewString()
		e.reconcileLocked(e.now())
		if e.state.IsRunning {
			if e.state.NotificationsEnabled {
				e.scheduleRunRemindersLocked(e.now())
			}
			e.startTickLoop(e.gen)
		}
		// The reconcile may have completed the fast; persist before returning
		// so a later restart does not replay the completion.
		if err := st.SaveRunState(e.state); err != nil {
			slog.Error("Engine.NewEngine: failed to persist reconciled state", "error", err)
		}
		e.mu.Unlock()
	}
	slog.Debug("Engine.NewEngine: state restored",
		"plan", e.state.ActivePlanID, "running", e.state.IsRunning, "time_left", e.state.TimeLeftSeconds)
	return e, nil
}

// Start arms a fast on the active plan for its full duration. Starting while
// a fast is already armed restarts it from scratch without recording a
// session.
func (e *Engine) Start() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan := e.activePlanLocked()
	if e.state.IsRunning || e.state.StartTime != nil {
		slog.Debug("Engine.Start: restarting armed fast", "plan", plan.ID)
		e.notifier.CancelRun(e.runKey)
	}

	now := e.now()
	end := now.Add(plan.Duration())
	e.state.IsRunning = true
	e.state.TimeLeftSeconds = plan.DurationSeconds
	e.state.StartTime = &now
	e.state.EndTime = &end
	e.milestoneMark = -1
	e.gen++
	e.runKey = uuid.NewString()

	if e.state.NotificationsEnabled {
		e.notifier.SendNow(models.NotificationPayload{
			Kind:  models.NotificationFastStarted,
			Title: "Fast started",
			Body:  fmt.Sprintf("Your %s fast has begun. Stay strong!", plan.Name),
			Plan:  plan.Name,
		})
		e.scheduleRunRemindersLocked(now)
	}

	e.startTickLoop(e.gen)
	e.persistAsync()
	slog.Info("Engine.Start: fast started", "plan", plan.ID, "end_time", end)
	return e.snapshotLocked()
}

// Pause freezes the countdown. The start and end times are kept so the run
// can be inspected; no session is recorded.
func (e *Engine) Pause() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.IsRunning {
		slog.Debug("Engine.Pause: no running fast")
		return e.snapshotLocked()
	}

	e.state.TimeLeftSeconds = e.remainingLocked(e.now())
	e.state.IsRunning = false
	e.gen++
	e.milestoneMark = -1
	e.notifier.CancelRun(e.runKey)

	if e.state.NotificationsEnabled {
		e.notifier.SendNow(models.NotificationPayload{
			Kind:  models.NotificationFastPaused,
			Title: "Fast paused",
			Body:  "Your fast is paused. Resume when you're ready.",
		})
	}

	e.persistAsync()
	slog.Info("Engine.Pause: fast paused", "plan", e.state.ActivePlanID, "time_left", e.state.TimeLeftSeconds)
	return e.snapshotLocked()
}

// Reset abandons the current run, recording a cancelled session if a run was
// armed, and restores the full plan duration.
func (e *Engine) Reset() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan := e.activePlanLocked()
	if e.state.StartTime != nil {
		if e.state.IsRunning {
			e.state.TimeLeftSeconds = e.remainingLocked(e.now())
		}
		e.appendSessionLocked(plan, models.SessionCancelled)
	}
	e.clearRunLocked(plan)

	if e.state.NotificationsEnabled {
		e.notifier.SendNow(models.NotificationPayload{
			Kind:  models.NotificationFastReset,
			Title: "Fast reset",
			Body:  "Your fast was reset. A fresh start is a click away.",
		})
	}

	e.persistAsync()
	slog.Info("Engine.Reset: fast reset", "plan", plan.ID)
	return e.snapshotLocked()
}

// ChangePlan switches the active plan. An unknown id leaves the state
// untouched. Switching away from an armed run records a cancelled session.
func (e *Engine) ChangePlan(id string) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, err := e.catalog.Get(id)
	if err != nil {
		slog.Warn("Engine.ChangePlan: unknown plan, state unchanged", "plan", id)
		return e.snapshotLocked(), err
	}

	if e.state.StartTime != nil {
		old := e.activePlanLocked()
		if e.state.IsRunning {
			e.state.TimeLeftSeconds = e.remainingLocked(e.now())
		}
		e.appendSessionLocked(old, models.SessionCancelled)
	}
	e.state.ActivePlanID = plan.ID
	e.clearRunLocked(plan)

	e.persistAsync()
	slog.Info("Engine.ChangePlan: plan changed", "plan", plan.ID)
	return e.snapshotLocked(), nil
}

// ToggleNotifications enables or disables all notifications. Enabling while a
// fast is running reschedules its outstanding reminders; disabling cancels
// every scheduled notification.
func (e *Engine) ToggleNotifications(enabled bool) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.NotificationsEnabled = enabled
	if enabled {
		e.notifier.EnableDaily()
		if e.state.IsRunning {
			e.scheduleRunRemindersLocked(e.now())
		}
	} else {
		e.notifier.DisableDaily()
	}

	e.persistAsync()
	slog.Info("Engine.ToggleNotifications: notifications toggled", "enabled", enabled)
	return e.snapshotLocked()
}

// ReconcileOnResume recomputes the countdown from the persisted end time.
// It is called when a client comes back to the foreground; a fast whose end
// time has passed completes immediately.
func (e *Engine) ReconcileOnResume(now time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.IsRunning {
		return e.snapshotLocked()
	}
	e.reconcileLocked(now)
	e.persistAsync()
	return e.snapshotLocked()
}

// Snapshot returns the current state with the countdown freshly derived from
// the end time.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.IsRunning {
		e.state.TimeLeftSeconds = e.remainingLocked(e.now())
	}
	return e.snapshotLocked()
}

// Close stops the tick loop and persists the final state synchronously.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if e.state.IsRunning {
		e.state.TimeLeftSeconds = e.remainingLocked(e.now())
	}
	if err := e.store.SaveRunState(e.state); err != nil {
		slog.Error("Engine.Close: failed to persist state", "error", err)
		return err
	}
	return nil
}

// reconcileLocked derives the countdown from the end time and completes the
// fast when it has elapsed. Caller holds e.mu and has checked IsRunning.
func (e *Engine) reconcileLocked(now time.Time) {
	e.state.TimeLeftSeconds = e.remainingLocked(now)
	if e.state.TimeLeftSeconds == 0 {
		e.completeLocked()
		return
	}
	e.checkMilestonesLocked()
}

// remainingLocked clamps the seconds until the end time to [0, plan duration],
// absorbing clock anomalies in either direction. Caller holds e.mu.
func (e *Engine) remainingLocked(now time.Time) int64 {
	if e.state.EndTime == nil {
		return e.state.TimeLeftSeconds
	}
	plan := e.activePlanLocked()
	remaining := int64(e.state.EndTime.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > plan.DurationSeconds {
		slog.Warn("Engine: clock moved backward, clamping countdown to plan duration",
			"remaining", remaining, "duration", plan.DurationSeconds)
		remaining = plan.DurationSeconds
	}
	return remaining
}

// completeLocked records the completed session and clears the run. It runs at
// most once per armed fast: the generation bump stops the tick loop, and the
// cleared run makes later reconciles no-ops. Caller holds e.mu.
func (e *Engine) completeLocked() {
	plan := e.activePlanLocked()
	e.state.TimeLeftSeconds = 0
	e.appendSessionLocked(plan, models.SessionCompleted)
	e.clearRunLocked(plan)
	slog.Info("Engine: fast completed", "plan", plan.ID)
}

// clearRunLocked stops ticking and returns the state to idle with the full
// plan duration. Caller holds e.mu.
func (e *Engine) clearRunLocked(plan models.Plan) {
	e.gen++
	e.notifier.CancelRun(e.runKey)
	e.state.IsRunning = false
	e.state.StartTime = nil
	e.state.EndTime = nil
	e.state.TimeLeftSeconds = plan.DurationSeconds
	e.milestoneMark = -1
}

// appendSessionLocked writes the session record for the run being closed.
// Appends are synchronous so the ledger never misses a finished fast; a
// storage failure is logged and does not block the transition. Caller holds
// e.mu with StartTime set.
func (e *Engine) appendSessionLocked(plan models.Plan, status models.SessionStatus) {
	now := e.now()
	start := *e.state.StartTime
	end := now
	actualMinutes := (float64(plan.DurationSeconds) - float64(e.state.TimeLeftSeconds)) / 60
	if status == models.SessionCompleted {
		// Completion can be discovered long after the end time (resume,
		// restart); the record keeps the wall-clock elapsed, not the plan
		// target.
		actualMinutes = end.Sub(start).Minutes()
	}
	if actualMinutes < 0 {
		actualMinutes = 0
	}

	session := models.Session{
		ID:                    util.GenerateSessionID(),
		PlanID:                plan.ID,
		StartTime:             start,
		EndTime:               end,
		ActualDurationMinutes: actualMinutes,
		TargetDurationMinutes: plan.TargetMinutes(),
		Status:                status,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := e.ledger.Append(session); err != nil {
		slog.Error("Engine: failed to record session", "error", err, "id", session.ID, "status", status)
	}
}

// scheduleRunRemindersLocked schedules the end-of-fast reminder at the end
// time and, if still ahead, the midpoint motivation. Caller holds e.mu with
// a running fast armed.
func (e *Engine) scheduleRunRemindersLocked(now time.Time) {
	plan := e.activePlanLocked()
	e.notifier.ScheduleForRun(e.runKey, models.NotificationPayload{
		Kind:  models.NotificationFastEnd,
		Title: "Fast complete!",
		Body:  fmt.Sprintf("Congratulations! Your %s fast is complete. You can now break your fast.", plan.Name),
		Plan:  plan.Name,
	}, *e.state.EndTime)
	mid := e.state.StartTime.Add(plan.Duration() / 2)
	if mid.After(now) {
		e.notifier.ScheduleForRun(e.runKey, models.NotificationPayload{
			Kind:  models.NotificationMidpoint,
			Title: "Halfway there!",
			Body:  fmt.Sprintf("You're halfway through your %s fast. Keep going!", plan.Name),
			Plan:  plan.Name,
		}, mid)
	}
}

// checkMilestonesLocked announces the highest milestone at or below the
// current progress, once per marker change. Caller holds e.mu.
func (e *Engine) checkMilestonesLocked() {
	plan := e.activePlanLocked()
	if len(plan.Milestones) == 0 {
		return
	}
	progress := e.progressLocked(plan)
	idx := -1
	for i, m := range plan.Milestones {
		if float64(m.Percentage) <= progress {
			idx = i
		}
	}
	if idx <= e.milestoneMark {
		return
	}
	m := plan.Milestones[idx]
	e.milestoneMark = idx
	if !e.state.NotificationsEnabled {
		return
	}
	e.notifier.SendNow(models.NotificationPayload{
		Kind:  models.NotificationMilestone,
		Title: fmt.Sprintf("%s %s", m.Icon, m.Name),
		Body:  m.Description,
		Plan:  plan.Name,
	})
}

func (e *Engine) progressLocked(plan models.Plan) float64 {
	if plan.DurationSeconds <= 0 {
		return 0
	}
	p := float64(plan.DurationSeconds-e.state.TimeLeftSeconds) / float64(plan.DurationSeconds) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// activePlanLocked resolves the active plan. The id is validated on every
// write path, so resolution cannot fail here; the default plan covers the
// impossible case. Caller holds e.mu.
func (e *Engine) activePlanLocked() models.Plan {
	p, err := e.catalog.Get(e.state.ActivePlanID)
	if err != nil {
		slog.Error("Engine: active plan missing from catalog", "plan", e.state.ActivePlanID)
		return e.catalog.DefaultPlan()
	}
	return p
}

func (e *Engine) snapshotLocked() Snapshot {
	plan := e.activePlanLocked()
	return Snapshot{RunState: e.state, ProgressPercent: e.progressLocked(plan)}
}

// startTickLoop refreshes a running fast's countdown until the generation
// changes or the fast completes. Caller holds e.mu.
func (e *Engine) startTickLoop(gen uint64) {
	go func() {
		ticker := time.NewTicker(e.tickInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !e.handleTick(gen) {
				return
			}
		}
	}()
}

// handleTick processes one tick; false stops the loop.
func (e *Engine) handleTick(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || !e.state.IsRunning {
		return false
	}
	e.reconcileLocked(e.now())
	e.persistAsync()
	return e.state.IsRunning
}

// persistAsync saves the state without blocking the transition that caused
// it. Session appends stay synchronous; losing the very last countdown write
// only costs a reconcile on the next load.
func (e *Engine) persistAsync() {
	snapshot := e.state
	go func() {
		if err := e.store.SaveRunState(snapshot); err != nil {
			slog.Error("Engine: failed to persist run state", "error", err)
		}
	}()
}

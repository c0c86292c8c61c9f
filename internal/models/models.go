// Package models defines the core data structures for FastTrack.
//
// It includes fasting plans, the singleton run state, session records, and
// the notification payloads shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// PlanCategory groups plans by experience level. Categories are rendered in
// the order declared here.
type PlanCategory string

const (
	// CategoryBeginner is for users new to intermittent fasting.
	CategoryBeginner PlanCategory = "beginner"
	// CategoryIntermediate is for users comfortable with daily fasting windows.
	CategoryIntermediate PlanCategory = "intermediate"
	// CategoryAdvanced is for extended fasts such as 24:0 and OMAD.
	CategoryAdvanced PlanCategory = "advanced"
)

// CategoryOrder defines the fixed display order of plan categories.
var CategoryOrder = []PlanCategory{CategoryBeginner, CategoryIntermediate, CategoryAdvanced}

// IsValidPlanCategory checks if the given category is one of the fixed set.
func IsValidPlanCategory(c PlanCategory) bool {
	switch c {
	case CategoryBeginner, CategoryIntermediate, CategoryAdvanced:
		return true
	default:
		return false
	}
}

// SessionStatus describes how a fasting session ended.
type SessionStatus string

const (
	// SessionCompleted means the fast ran its full planned duration.
	SessionCompleted SessionStatus = "completed"
	// SessionCancelled means the fast was stopped before completion.
	SessionCancelled SessionStatus = "cancelled"
)

// IsValidSessionStatus checks if the given session status is supported.
func IsValidSessionStatus(s SessionStatus) bool {
	return s == SessionCompleted || s == SessionCancelled
}

// Error variables for better error handling and testability
var (
	ErrPlanNotFound          = errors.New("plan not found in catalog")
	ErrEmptyPlanID           = errors.New("plan id cannot be empty")
	ErrNonPositiveDuration   = errors.New("plan duration must be positive")
	ErrInvalidCategory       = errors.New("plan category is not in the fixed set")
	ErrMilestoneOutOfRange   = errors.New("milestone percentage must be in [0,100]")
	ErrMilestonesNotOrdered  = errors.New("milestone percentages must be strictly increasing")
	ErrDuplicateMilestone    = errors.New("milestone names must be unique within a plan")
	ErrNoActiveRun           = errors.New("no active run")
	ErrInvalidSessionStatus  = errors.New("invalid session status")
	ErrSessionMissingPlan    = errors.New("session plan id cannot be empty")
	ErrSessionTimesInvalid   = errors.New("session end time precedes start time")
	ErrPermissionDenied      = errors.New("notification permission denied")
	ErrNotificationsDisabled = errors.New("notifications are disabled")
)

// Milestone represents a progress-based event within a fast, such as
// "fat burning" at 50%. Milestones have no lifecycle of their own; they are
// owned by their Plan.
type Milestone struct {
	Percentage  int    `json:"percentage"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// Plan is a named fasting template. Plans are immutable and loaded once at
// startup from the catalog.
type Plan struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Category        PlanCategory `json:"category"`
	FastingHours    int          `json:"fasting_hours"`
	EatingHours     int          `json:"eating_hours"`
	Description     string       `json:"description"`
	Tips            []string     `json:"tips,omitempty"`
	DurationSeconds int64        `json:"duration_seconds"`
	Milestones      []Milestone  `json:"milestones,omitempty"`
}

// Duration returns the plan duration as a time.Duration.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationSeconds) * time.Second
}

// TargetMinutes returns the plan duration in minutes, as recorded on sessions.
func (p Plan) TargetMinutes() float64 {
	return float64(p.DurationSeconds) / 60
}

// Validate performs comprehensive validation on a Plan structure.
// Catalog construction refuses plans that fail validation.
func (p Plan) Validate() error {
	if p.ID == "" {
		return ErrEmptyPlanID
	}
	if p.DurationSeconds <= 0 {
		return fmt.Errorf("plan %s: %w", p.ID, ErrNonPositiveDuration)
	}
	if !IsValidPlanCategory(p.Category) {
		return fmt.Errorf("plan %s: %w", p.ID, ErrInvalidCategory)
	}
	seen := make(map[string]bool, len(p.Milestones))
	prev := -1
	for _, m := range p.Milestones {
		if m.Percentage < 0 || m.Percentage > 100 {
			return fmt.Errorf("plan %s milestone %q: %w", p.ID, m.Name, ErrMilestoneOutOfRange)
		}
		if m.Percentage <= prev {
			return fmt.Errorf("plan %s milestone %q: %w", p.ID, m.Name, ErrMilestonesNotOrdered)
		}
		if seen[m.Name] {
			return fmt.Errorf("plan %s milestone %q: %w", p.ID, m.Name, ErrDuplicateMilestone)
		}
		seen[m.Name] = true
		prev = m.Percentage
	}
	return nil
}

// RunState is the single source of truth for the current fast. Exactly one
// RunState exists per installation; it is mutated only through the engine's
// transition operations and persisted after every mutation.
type RunState struct {
	IsRunning            bool       `json:"is_running"`
	TimeLeftSeconds      int64      `json:"time_left_seconds"`
	ActivePlanID         string     `json:"active_plan_id"`
	StartTime            *time.Time `json:"start_time,omitempty"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
}

// Validate checks the RunState internal invariant: a running fast always has
// absolute start and end times.
func (s RunState) Validate() error {
	if s.IsRunning && (s.StartTime == nil || s.EndTime == nil) {
		return errors.New("running state requires start and end times")
	}
	if s.TimeLeftSeconds < 0 {
		return errors.New("time left cannot be negative")
	}
	return nil
}

// Session is the immutable record of a finished fast, appended to the ledger
// exactly once when a run ends naturally or is cancelled.
type Session struct {
	ID                    string        `json:"id"`
	PlanID                string        `json:"plan_id"`
	StartTime             time.Time     `json:"start_time"`
	EndTime               time.Time     `json:"end_time"`
	ActualDurationMinutes float64       `json:"actual_duration_minutes"`
	TargetDurationMinutes float64       `json:"target_duration_minutes"`
	Status                SessionStatus `json:"status"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

// Validate performs validation on a Session before it is appended.
func (s Session) Validate() error {
	if s.PlanID == "" {
		return ErrSessionMissingPlan
	}
	if !IsValidSessionStatus(s.Status) {
		return ErrInvalidSessionStatus
	}
	if s.EndTime.Before(s.StartTime) {
		return ErrSessionTimesInvalid
	}
	return nil
}

// NotificationKind classifies outbound notifications for logging and for
// channel routing by gateway implementations.
type NotificationKind string

const (
	// NotificationFastStarted is the immediate "fast started" message.
	NotificationFastStarted NotificationKind = "fast_started"
	// NotificationFastPaused is the immediate "fast paused" message.
	NotificationFastPaused NotificationKind = "fast_paused"
	// NotificationFastReset is the immediate "fast reset" message.
	NotificationFastReset NotificationKind = "fast_reset"
	// NotificationFastEnd is the reminder scheduled for the planned end time.
	NotificationFastEnd NotificationKind = "fast_end"
	// NotificationMidpoint is the motivation reminder at half the duration.
	NotificationMidpoint NotificationKind = "midpoint"
	// NotificationMilestone announces a crossed progress milestone.
	NotificationMilestone NotificationKind = "milestone"
	// NotificationDailyMotivation is the recurring 18:00 motivational message.
	NotificationDailyMotivation NotificationKind = "daily_motivation"
	// NotificationDailyHydration is the recurring 12:00 hydration reminder.
	NotificationDailyHydration NotificationKind = "daily_hydration"
)

// NotificationPayload is the content handed to the notification gateway.
// Delivery is best-effort; payloads carry no engine state.
type NotificationPayload struct {
	Kind  NotificationKind `json:"kind"`
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Plan  string           `json:"plan,omitempty"`
}

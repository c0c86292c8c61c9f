// Package notify provides the notification gateway for FastTrack.
//
// The engine never talks to a delivery platform directly: it emits intents
// into a Service queue, and a worker applies them against a Gateway. Every
// gateway operation is best-effort; failures are logged and never reach the
// state transition that caused them.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/FastTrack/internal/models"
)

// Gateway is the platform-facing notification capability. Implementations
// must be safe for use from a single worker goroutine.
type Gateway interface {
	// RequestPermission asks the platform for notification permission.
	// Returns false when the user denied it; errors are platform failures.
	RequestPermission(ctx context.Context) (bool, error)

	// ScheduleOnce schedules a one-shot notification at the given time.
	// Returns an opaque notification id, or "" with an error on failure.
	ScheduleOnce(payload models.NotificationPayload, at time.Time) (string, error)

	// ScheduleDailyRecurring schedules a notification repeating every day at
	// the given local time.
	ScheduleDailyRecurring(payload models.NotificationPayload, hour, minute int) (string, error)

	// Cancel cancels a scheduled notification by id. Cancelling an unknown
	// id is not an error.
	Cancel(id string) error

	// CancelAll cancels every outstanding scheduled notification.
	CancelAll() error

	// SendImmediate delivers a notification right away.
	SendImmediate(payload models.NotificationPayload) (string, error)
}

// Sender delivers a payload to the user through some channel (log line, SMS).
// It is the last hop behind the local gateway.
type Sender interface {
	Send(payload models.NotificationPayload) error
}

// LogSender writes notifications to the structured log. It is the default
// delivery channel when no external channel is configured.
type LogSender struct{}

// Send logs the payload at info level.
func (LogSender) Send(payload models.NotificationPayload) error {
	slog.Info("notification", "kind", payload.Kind, "title", payload.Title, "body", payload.Body, "plan", payload.Plan)
	return nil
}

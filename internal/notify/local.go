package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FastTrack/internal/models"
	"github.com/BTreeMap/FastTrack/internal/scheduler"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// localEntry tracks one scheduled notification: either a one-shot timer or
// a recurring cron entry.
type localEntry struct {
	timer  *time.Timer
	cronID cron.EntryID
	daily  bool
}

// LocalGateway implements Gateway with in-process scheduling. One-shot
// notifications use time.AfterFunc; daily recurring ones use the cron
// scheduler. Delivery goes through a pluggable Sender.
type LocalGateway struct {
	sender  Sender
	sched   *scheduler.Scheduler
	mu      sync.Mutex
	entries map[string]*localEntry
}

// LocalOption configures a LocalGateway.
type LocalOption func(*LocalGateway)

// WithSender sets the delivery channel. Defaults to LogSender.
func WithSender(s Sender) LocalOption {
	return func(g *LocalGateway) { g.sender = s }
}

// NewLocalGateway creates a LocalGateway using the given scheduler for
// recurring notifications.
func NewLocalGateway(sched *scheduler.Scheduler, opts ...LocalOption) *LocalGateway {
	g := &LocalGateway{
		sender:  LogSender{},
		sched:   sched,
		entries: make(map[string]*localEntry),
	}
	for _, opt := range opts {
		opt(g)
	}
	slog.Debug("NewLocalGateway created")
	return g
}

// RequestPermission always grants: an in-process gateway needs no platform
// permission. Channel-specific senders perform their own configuration
// checks at construction time.
func (g *LocalGateway) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

// ScheduleOnce schedules a one-shot notification at the given time. Times in
// the past deliver immediately.
func (g *LocalGateway) ScheduleOnce(payload models.NotificationPayload, at time.Time) (string, error) {
	id := uuid.NewString()
	delay := time.Until(at)
	if delay < 0 {
		slog.Warn("LocalGateway ScheduleOnce: time is in the past, delivering immediately", "kind", payload.Kind, "at", at)
		delay = 0
	}

	timer := time.AfterFunc(delay, func() {
		g.deliver(payload)
		g.mu.Lock()
		delete(g.entries, id)
		g.mu.Unlock()
	})

	g.mu.Lock()
	g.entries[id] = &localEntry{timer: timer}
	g.mu.Unlock()

	slog.Debug("LocalGateway ScheduleOnce succeeded", "id", id, "kind", payload.Kind, "delay", delay)
	return id, nil
}

// ScheduleDailyRecurring schedules a notification repeating every day at the
// given local time.
func (g *LocalGateway) ScheduleDailyRecurring(payload models.NotificationPayload, hour, minute int) (string, error) {
	cronID, err := g.sched.AddDaily(hour, minute, func() {
		g.deliver(payload)
	})
	if err != nil {
		return "", fmt.Errorf("failed to schedule daily notification: %w", err)
	}

	id := uuid.NewString()
	g.mu.Lock()
	g.entries[id] = &localEntry{cronID: cronID, daily: true}
	g.mu.Unlock()

	slog.Debug("LocalGateway ScheduleDailyRecurring succeeded", "id", id, "kind", payload.Kind, "hour", hour, "minute", minute)
	return id, nil
}

// Cancel cancels a scheduled notification by id.
func (g *LocalGateway) Cancel(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, exists := g.entries[id]
	if !exists {
		slog.Debug("LocalGateway Cancel: notification not found", "id", id)
		return nil
	}
	g.remove(id, entry)
	slog.Debug("LocalGateway Cancel succeeded", "id", id)
	return nil
}

// CancelAll cancels every outstanding scheduled notification.
func (g *LocalGateway) CancelAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	slog.Debug("LocalGateway cancelling all notifications", "count", len(g.entries))
	for id, entry := range g.entries {
		g.remove(id, entry)
	}
	return nil
}

// SendImmediate delivers a notification right away.
func (g *LocalGateway) SendImmediate(payload models.NotificationPayload) (string, error) {
	if err := g.sender.Send(payload); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// PendingCount reports the number of outstanding scheduled notifications.
func (g *LocalGateway) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// remove stops an entry and forgets it. Caller holds g.mu.
func (g *LocalGateway) remove(id string, entry *localEntry) {
	if entry.daily {
		g.sched.Remove(entry.cronID)
	} else if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(g.entries, id)
}

func (g *LocalGateway) deliver(payload models.NotificationPayload) {
	if err := g.sender.Send(payload); err != nil {
		slog.Error("LocalGateway delivery failed", "error", err, "kind", payload.Kind)
	}
}

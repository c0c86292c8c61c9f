package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FastTrack/internal/models"
)

// Daily reminder times, fixed local times from the product definition.
const (
	DailyMotivationHour   = 18
	DailyMotivationMinute = 0
	DailyHydrationHour    = 12
	DailyHydrationMinute  = 0
)

// DefaultQueueSize is the intent queue capacity. Overflowing intents are
// dropped with a warning rather than blocking a state transition.
const DefaultQueueSize = 64

type intentKind int

const (
	intentSendNow intentKind = iota
	intentScheduleRun
	intentCancelRun
	intentEnableDaily
	intentDisableDaily
)

type intent struct {
	kind    intentKind
	runKey  string
	payload models.NotificationPayload
	at      time.Time
}

// Service is the message-passing boundary between the engine and the
// notification gateway. The engine enqueues intents without blocking or
// awaiting results; a single worker goroutine applies them in order against
// the gateway and logs failures. Because the queue is FIFO, a cancel intent
// enqueued after a run's schedule intents always observes their recorded ids.
type Service struct {
	gateway Gateway
	intents chan intent
	done    chan struct{}

	mu     sync.Mutex
	closed bool

	// Worker-owned bookkeeping; only the worker goroutine touches these.
	runIDs map[string][]string
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOpts)

type serviceOpts struct {
	queueSize int
}

// WithQueueSize overrides the intent queue capacity.
func WithQueueSize(n int) ServiceOption {
	return func(o *serviceOpts) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// NewService creates a Service and starts its worker.
func NewService(gateway Gateway, opts ...ServiceOption) *Service {
	cfg := serviceOpts{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Service{
		gateway: gateway,
		intents: make(chan intent, cfg.queueSize),
		done:    make(chan struct{}),
		runIDs:  make(map[string][]string),
	}
	go s.worker()
	slog.Debug("notify.NewService: worker started", "queue_size", cfg.queueSize)
	return s
}

// SendNow delivers an immediate notification, fire-and-forget.
func (s *Service) SendNow(payload models.NotificationPayload) {
	s.enqueue(intent{kind: intentSendNow, payload: payload})
}

// ScheduleForRun schedules a one-shot reminder tied to a run key, so a later
// CancelRun for the same key cancels it.
func (s *Service) ScheduleForRun(runKey string, payload models.NotificationPayload, at time.Time) {
	s.enqueue(intent{kind: intentScheduleRun, runKey: runKey, payload: payload, at: at})
}

// CancelRun cancels every reminder previously scheduled under the run key.
func (s *Service) CancelRun(runKey string) {
	s.enqueue(intent{kind: intentCancelRun, runKey: runKey})
}

// EnableDaily requests permission and, if granted, schedules the recurring
// daily motivational and hydration reminders.
func (s *Service) EnableDaily() {
	s.enqueue(intent{kind: intentEnableDaily})
}

// DisableDaily cancels all outstanding scheduled notifications.
func (s *Service) DisableDaily() {
	s.enqueue(intent{kind: intentDisableDaily})
}

// Close drains the queue, applies the remaining intents, and stops the
// worker. Intents enqueued after Close are dropped.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.intents)
	s.mu.Unlock()
	<-s.done
}

func (s *Service) enqueue(it intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		slog.Warn("notify.Service: intent dropped after close", "kind", it.kind)
		return
	}
	select {
	case s.intents <- it:
	default:
		slog.Warn("notify.Service: intent queue full, dropping intent", "kind", it.kind, "run_key", it.runKey)
	}
}

func (s *Service) worker() {
	defer close(s.done)
	for it := range s.intents {
		s.apply(it)
	}
}

func (s *Service) apply(it intent) {
	switch it.kind {
	case intentSendNow:
		if _, err := s.gateway.SendImmediate(it.payload); err != nil {
			slog.Error("notify.Service: immediate send failed", "error", err, "kind", it.payload.Kind)
		}
	case intentScheduleRun:
		id, err := s.gateway.ScheduleOnce(it.payload, it.at)
		if err != nil {
			slog.Error("notify.Service: schedule failed", "error", err, "kind", it.payload.Kind, "run_key", it.runKey)
			return
		}
		if id != "" {
			s.runIDs[it.runKey] = append(s.runIDs[it.runKey], id)
		}
	case intentCancelRun:
		for _, id := range s.runIDs[it.runKey] {
			if err := s.gateway.Cancel(id); err != nil {
				slog.Error("notify.Service: cancel failed", "error", err, "id", id, "run_key", it.runKey)
			}
		}
		delete(s.runIDs, it.runKey)
	case intentEnableDaily:
		granted, err := s.gateway.RequestPermission(context.Background())
		if err != nil {
			slog.Error("notify.Service: permission request failed", "error", err)
			return
		}
		if !granted {
			slog.Warn("notify.Service: notification permission denied, daily reminders not scheduled")
			return
		}
		s.scheduleDaily(models.NotificationPayload{
			Kind:  models.NotificationDailyMotivation,
			Title: "Motivation",
			Body:  "Discipline is freedom. Keep your fasting goal in sight today!",
		}, DailyMotivationHour, DailyMotivationMinute)
		s.scheduleDaily(models.NotificationPayload{
			Kind:  models.NotificationDailyHydration,
			Title: "Stay hydrated",
			Body:  "Remember to drink plenty of water during your fast.",
		}, DailyHydrationHour, DailyHydrationMinute)
	case intentDisableDaily:
		if err := s.gateway.CancelAll(); err != nil {
			slog.Error("notify.Service: cancel all failed", "error", err)
		}
		s.runIDs = make(map[string][]string)
	}
}

func (s *Service) scheduleDaily(payload models.NotificationPayload, hour, minute int) {
	if _, err := s.gateway.ScheduleDailyRecurring(payload, hour, minute); err != nil {
		slog.Error("notify.Service: daily schedule failed", "error", err, "kind", payload.Kind)
	}
}

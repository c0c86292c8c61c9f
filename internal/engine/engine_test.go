package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/FastTrack/internal/ledger"
	"github.com/BTreeMap/FastTrack/internal/models"
	"github.com/BTreeMap/FastTrack/internal/notify"
	"github.com/BTreeMap/FastTrack/internal/plans"
	"github.com/BTreeMap/FastTrack/internal/store"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recorderGateway records notification traffic for assertions.
type recorderGateway struct {
	mu        sync.Mutex
	nextID    int
	immediate []models.NotificationKind
	scheduled []models.NotificationKind
	cancelled int
	daily     []models.NotificationKind
	cancelAll int
}

func (g *recorderGateway) RequestPermission(ctx context.Context) (bool, error) { return true, nil }

func (g *recorderGateway) ScheduleOnce(p models.NotificationPayload, at time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.scheduled = append(g.scheduled, p.Kind)
	return fmt.Sprintf("n-%d", g.nextID), nil
}

func (g *recorderGateway) ScheduleDailyRecurring(p models.NotificationPayload, hour, minute int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.daily = append(g.daily, p.Kind)
	return fmt.Sprintf("n-%d", g.nextID), nil
}

func (g *recorderGateway) Cancel(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled++
	return nil
}

func (g *recorderGateway) CancelAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelAll++
	return nil
}

func (g *recorderGateway) SendImmediate(p models.NotificationPayload) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.immediate = append(g.immediate, p.Kind)
	return fmt.Sprintf("n-%d", g.nextID), nil
}

func (g *recorderGateway) immediateKinds() []models.NotificationKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.NotificationKind, len(g.immediate))
	copy(out, g.immediate)
	return out
}

type testRig struct {
	engine  *Engine
	store   *store.InMemoryStore
	ledger  *ledger.Ledger
	gateway *recorderGateway
	service *notify.Service
	clock   *fakeClock
}

func newTestRig(t *testing.T, catalog *plans.Catalog, opts ...Option) *testRig {
	t.Helper()
	st := store.NewInMemoryStore()
	led := ledger.New(st)
	gw := &recorderGateway{}
	svc := notify.NewService(gw)
	clock := newFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))

	allOpts := append([]Option{WithClock(clock.now), WithTickInterval(time.Hour)}, opts...)
	eng, err := NewEngine(catalog, st, led, svc, allOpts...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(func() {
		eng.Close()
		svc.Close()
	})
	return &testRig{engine: eng, store: st, ledger: led, gateway: gw, service: svc, clock: clock}
}

func defaultCatalog(t *testing.T) *plans.Catalog {
	t.Helper()
	return plans.Default()
}

func sessions(t *testing.T, r *testRig) []models.Session {
	t.Helper()
	out, err := r.ledger.All()
	if err != nil {
		t.Fatalf("ledger read failed: %v", err)
	}
	return out
}

func TestStartSetsAbsoluteTimes(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	snap := r.engine.Start()

	if !snap.IsRunning {
		t.Fatal("expected running state")
	}
	if snap.StartTime == nil || snap.EndTime == nil {
		t.Fatal("running state must carry start and end times")
	}
	plan, _ := defaultCatalog(t).Get(plans.DefaultPlanID)
	if got := snap.EndTime.Sub(*snap.StartTime); got != plan.Duration() {
		t.Errorf("end-start = %v, want %v", got, plan.Duration())
	}
	if snap.TimeLeftSeconds != plan.DurationSeconds {
		t.Errorf("time left = %d, want %d", snap.TimeLeftSeconds, plan.DurationSeconds)
	}
}

func TestReconcileDerivesCountdownFromEndTime(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()

	r.clock.advance(time.Hour)
	snap := r.engine.ReconcileOnResume(r.clock.now())
	if snap.TimeLeftSeconds != 54000 {
		t.Errorf("after 1h of a 16h fast, time left = %d, want 54000", snap.TimeLeftSeconds)
	}

	// Reconciling again at the same instant changes nothing.
	again := r.engine.ReconcileOnResume(r.clock.now())
	if again.TimeLeftSeconds != snap.TimeLeftSeconds {
		t.Errorf("reconcile not idempotent: %d then %d", snap.TimeLeftSeconds, again.TimeLeftSeconds)
	}
}

func TestReconcileClampsClockMovedBackward(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()

	// A clock jump to before the start would otherwise inflate the countdown.
	snap := r.engine.ReconcileOnResume(r.clock.now().Add(-3 * time.Hour))
	plan, _ := defaultCatalog(t).Get(plans.DefaultPlanID)
	if snap.TimeLeftSeconds != plan.DurationSeconds {
		t.Errorf("time left = %d, want clamp to %d", snap.TimeLeftSeconds, plan.DurationSeconds)
	}
	if !snap.IsRunning {
		t.Error("clock anomaly must not stop the fast")
	}
}

func TestReconcilePastEndCompletesExactlyOnce(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()

	r.clock.advance(17 * time.Hour)
	snap := r.engine.ReconcileOnResume(r.clock.now())
	if snap.IsRunning {
		t.Fatal("fast past its end time must complete")
	}
	if snap.StartTime != nil || snap.EndTime != nil {
		t.Error("completed fast should clear its times")
	}

	// Further reconciles must not record more sessions.
	r.engine.ReconcileOnResume(r.clock.now().Add(time.Hour))
	got := sessions(t, r)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 session, got %d", len(got))
	}
	s := got[0]
	if s.Status != models.SessionCompleted {
		t.Errorf("status = %q, want completed", s.Status)
	}
	if s.TargetDurationMinutes != 960 {
		t.Errorf("target minutes = %v, want 960", s.TargetDurationMinutes)
	}
	// Completion was discovered 1h late; the record keeps the wall-clock
	// elapsed, not the plan target.
	if s.ActualDurationMinutes != 1020 {
		t.Errorf("actual minutes = %v, want 1020", s.ActualDurationMinutes)
	}
}

func TestTickLoopCompletesShortFast(t *testing.T) {
	short := models.Plan{
		ID:              "blitz",
		Name:            "Blitz",
		Category:        models.CategoryBeginner,
		DurationSeconds: 1,
	}
	catalog, err := plans.NewCatalog(short)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	st := store.NewInMemoryStore()
	led := ledger.New(st)
	gw := &recorderGateway{}
	svc := notify.NewService(gw)
	defer svc.Close()

	eng, err := NewEngine(catalog, st, led, svc, WithTickInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer eng.Close()

	eng.Start()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !eng.Snapshot().IsRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	snap := eng.Snapshot()
	if snap.IsRunning {
		t.Fatal("1-second fast did not complete within 3s")
	}
	got, err := led.All()
	if err != nil {
		t.Fatalf("ledger read failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 session, got %d", len(got))
	}
	if got[0].Status != models.SessionCompleted {
		t.Errorf("status = %q, want completed", got[0].Status)
	}
	wantMinutes := 1.0 / 60
	if got[0].TargetDurationMinutes != wantMinutes {
		t.Errorf("target minutes = %v, want %v", got[0].TargetDurationMinutes, wantMinutes)
	}
	if snap.TimeLeftSeconds != short.DurationSeconds {
		t.Errorf("completed fast should restore full duration, got %d", snap.TimeLeftSeconds)
	}
}

func TestResetRecordsCancelledSession(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()
	r.clock.advance(2 * time.Hour)

	snap := r.engine.Reset()
	if snap.IsRunning {
		t.Error("reset must stop the fast")
	}
	if snap.StartTime != nil || snap.EndTime != nil {
		t.Error("reset must clear times")
	}
	if snap.TimeLeftSeconds != 57600 {
		t.Errorf("reset should restore full duration, got %d", snap.TimeLeftSeconds)
	}

	got := sessions(t, r)
	if len(got) != 1 {
		t.Fatalf("expected 1 cancelled session, got %d", len(got))
	}
	if got[0].Status != models.SessionCancelled {
		t.Errorf("status = %q, want cancelled", got[0].Status)
	}
	if got[0].ActualDurationMinutes != 120 {
		t.Errorf("2h of elapsed fast should record 120 minutes, got %v", got[0].ActualDurationMinutes)
	}
	if got[0].TargetDurationMinutes != 960 {
		t.Errorf("target minutes = %v, want 960", got[0].TargetDurationMinutes)
	}
}

func TestResetWhileIdleRecordsNothing(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Reset()
	if got := sessions(t, r); len(got) != 0 {
		t.Errorf("idle reset must not record a session, got %d", len(got))
	}
}

func TestPauseKeepsTimesAndRecordsNothing(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()
	r.clock.advance(30 * time.Minute)

	snap := r.engine.Pause()
	if snap.IsRunning {
		t.Error("pause must stop the countdown")
	}
	if snap.StartTime == nil || snap.EndTime == nil {
		t.Error("pause must keep start and end times")
	}
	if snap.TimeLeftSeconds != 57600-1800 {
		t.Errorf("paused time left = %d, want %d", snap.TimeLeftSeconds, 57600-1800)
	}
	if got := sessions(t, r); len(got) != 0 {
		t.Errorf("pause must not record a session, got %d", len(got))
	}

	// A paused fast does not drift.
	r.clock.advance(5 * time.Hour)
	if got := r.engine.Snapshot().TimeLeftSeconds; got != 57600-1800 {
		t.Errorf("paused countdown moved to %d", got)
	}
}

func TestPauseClearsMilestoneMarker(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.ToggleNotifications(true)
	r.engine.Start()
	r.clock.advance(16 * time.Hour * 55 / 100)
	r.engine.ReconcileOnResume(r.clock.now())

	r.engine.mu.Lock()
	mark := r.engine.milestoneMark
	r.engine.mu.Unlock()
	if mark < 0 {
		t.Fatal("expected a milestone marker after passing 50%")
	}

	r.engine.Pause()
	r.engine.mu.Lock()
	mark = r.engine.milestoneMark
	r.engine.mu.Unlock()
	if mark != -1 {
		t.Errorf("milestone marker after pause = %d, want -1", mark)
	}

	// A fresh run after a pause announces its milestones again.
	r.engine.Start()
	r.clock.advance(16 * time.Hour * 55 / 100)
	r.engine.ReconcileOnResume(r.clock.now())

	r.service.Close()
	count := 0
	for _, k := range r.gateway.immediateKinds() {
		if k == models.NotificationMilestone {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected one milestone announcement per run, got %d total", count)
	}
}

func TestChangePlanUnknownIDLeavesStateUntouched(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()
	before := r.engine.Snapshot()

	_, err := r.engine.ChangePlan("bogus-id")
	if !errors.Is(err, models.ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}

	after := r.engine.Snapshot()
	if after.ActivePlanID != before.ActivePlanID || after.IsRunning != before.IsRunning {
		t.Error("unknown plan id must not mutate state")
	}
	if got := sessions(t, r); len(got) != 0 {
		t.Errorf("unknown plan id must not record a session, got %d", len(got))
	}
}

func TestChangePlanCancelsArmedRun(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()
	r.clock.advance(time.Hour)

	snap, err := r.engine.ChangePlan("20:4")
	if err != nil {
		t.Fatalf("ChangePlan failed: %v", err)
	}
	if snap.ActivePlanID != "20:4" {
		t.Errorf("active plan = %q, want 20:4", snap.ActivePlanID)
	}
	if snap.IsRunning || snap.StartTime != nil {
		t.Error("plan change must clear the run")
	}
	if snap.TimeLeftSeconds != 20*3600 {
		t.Errorf("time left = %d, want %d", snap.TimeLeftSeconds, 20*3600)
	}

	got := sessions(t, r)
	if len(got) != 1 || got[0].Status != models.SessionCancelled {
		t.Fatalf("expected 1 cancelled session, got %+v", got)
	}
	if got[0].PlanID != plans.DefaultPlanID {
		t.Errorf("cancelled session plan = %q, want %q", got[0].PlanID, plans.DefaultPlanID)
	}
}

func TestMilestonesAnnouncedOncePerMarker(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.ToggleNotifications(true)
	r.engine.Start()

	// 16h fast: advance through 26%, 55%, then 90% progress. Repeats at the
	// same marker must not re-announce.
	steps := []time.Duration{
		16 * time.Hour * 26 / 100,
		16 * time.Hour * 27 / 100,
		16 * time.Hour * 55 / 100,
		16 * time.Hour * 90 / 100,
	}
	start := r.clock.now()
	for _, d := range steps {
		r.engine.ReconcileOnResume(start.Add(d))
	}

	r.service.Close()
	var milestones []models.NotificationKind
	for _, k := range r.gateway.immediateKinds() {
		if k == models.NotificationMilestone {
			milestones = append(milestones, k)
		}
	}
	if len(milestones) != 3 {
		t.Fatalf("expected 3 milestone notifications, got %d", len(milestones))
	}
}

func TestMilestoneSkippedThresholdsAnnounceHighestOnly(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.ToggleNotifications(true)
	r.engine.Start()

	// Jumping straight to 90% progress crosses 25, 50 and 85 at once; only
	// the highest is announced.
	start := r.clock.now()
	r.engine.ReconcileOnResume(start.Add(16 * time.Hour * 90 / 100))

	r.service.Close()
	count := 0
	for _, k := range r.gateway.immediateKinds() {
		if k == models.NotificationMilestone {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected 1 milestone notification, got %d", count)
	}
}

func TestStartEmitsReminders(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.ToggleNotifications(true)
	r.engine.Start()
	r.service.Close()

	r.gateway.mu.Lock()
	defer r.gateway.mu.Unlock()
	if len(r.gateway.daily) != 2 {
		t.Errorf("expected 2 daily reminders, got %d", len(r.gateway.daily))
	}
	var hasEnd, hasMid bool
	for _, k := range r.gateway.scheduled {
		switch k {
		case models.NotificationFastEnd:
			hasEnd = true
		case models.NotificationMidpoint:
			hasMid = true
		}
	}
	if !hasEnd || !hasMid {
		t.Errorf("expected end and midpoint reminders, got %v", r.gateway.scheduled)
	}
	found := false
	for _, k := range r.gateway.immediate {
		if k == models.NotificationFastStarted {
			found = true
		}
	}
	if !found {
		t.Error("expected immediate fast started notification")
	}
}

func TestNotificationsDisabledEmitsNothing(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()
	r.engine.Reset()
	r.service.Close()

	r.gateway.mu.Lock()
	defer r.gateway.mu.Unlock()
	if len(r.gateway.immediate) != 0 || len(r.gateway.scheduled) != 0 {
		t.Errorf("disabled notifications must emit nothing, got immediate=%v scheduled=%v",
			r.gateway.immediate, r.gateway.scheduled)
	}
}

func TestRestoreRunningFastFromStore(t *testing.T) {
	catalog := defaultCatalog(t)
	st := store.NewInMemoryStore()
	clock := newFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))

	start := clock.now().Add(-2 * time.Hour)
	end := start.Add(16 * time.Hour)
	saved := models.RunState{
		IsRunning:       true,
		TimeLeftSeconds: 57600,
		ActivePlanID:    plans.DefaultPlanID,
		StartTime:       &start,
		EndTime:         &end,
	}
	if err := st.SaveRunState(saved); err != nil {
		t.Fatalf("seed state failed: %v", err)
	}

	svc := notify.NewService(&recorderGateway{})
	defer svc.Close()
	eng, err := NewEngine(catalog, st, ledger.New(st), svc, WithClock(clock.now), WithTickInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer eng.Close()

	snap := eng.Snapshot()
	if !snap.IsRunning {
		t.Fatal("restored fast should still be running")
	}
	if snap.TimeLeftSeconds != 14*3600 {
		t.Errorf("restored countdown = %d, want %d", snap.TimeLeftSeconds, 14*3600)
	}
}

func TestRestoreCompletionPersistsAndRecordsOnce(t *testing.T) {
	catalog := defaultCatalog(t)
	st := store.NewInMemoryStore()
	clock := newFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))

	// A running fast whose end time passed while the process was down.
	start := clock.now().Add(-17 * time.Hour)
	end := start.Add(16 * time.Hour)
	saved := models.RunState{
		IsRunning:       true,
		TimeLeftSeconds: 57600,
		ActivePlanID:    plans.DefaultPlanID,
		StartTime:       &start,
		EndTime:         &end,
	}
	if err := st.SaveRunState(saved); err != nil {
		t.Fatalf("seed state failed: %v", err)
	}
	led := ledger.New(st)

	svc1 := notify.NewService(&recorderGateway{})
	defer svc1.Close()
	eng1, err := NewEngine(catalog, st, led, svc1, WithClock(clock.now), WithTickInterval(time.Hour))
	if err != nil {
		t.Fatalf("first NewEngine failed: %v", err)
	}
	defer eng1.Close()

	if eng1.Snapshot().IsRunning {
		t.Fatal("restored fast past its end time must complete")
	}
	persisted, err := st.LoadRunState()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if persisted == nil || persisted.IsRunning {
		t.Fatal("restore-time completion must persist the cleared state")
	}

	// A second restart from the same store must not replay the completion.
	svc2 := notify.NewService(&recorderGateway{})
	defer svc2.Close()
	eng2, err := NewEngine(catalog, st, led, svc2, WithClock(clock.now), WithTickInterval(time.Hour))
	if err != nil {
		t.Fatalf("second NewEngine failed: %v", err)
	}
	defer eng2.Close()

	got, err := led.All()
	if err != nil {
		t.Fatalf("ledger read failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 session across restarts, got %d", len(got))
	}
	if got[0].Status != models.SessionCompleted {
		t.Errorf("status = %q, want completed", got[0].Status)
	}
}

func TestRestoreInvalidStateClearsRun(t *testing.T) {
	catalog := defaultCatalog(t)
	st := store.NewInMemoryStore()

	// Running without times should never come out of a healthy store, but a
	// corrupted row must not panic or start a phantom run.
	saved := models.RunState{
		IsRunning:       true,
		TimeLeftSeconds: 100,
		ActivePlanID:    plans.DefaultPlanID,
	}
	if err := st.SaveRunState(saved); err != nil {
		t.Fatalf("seed state failed: %v", err)
	}

	svc := notify.NewService(&recorderGateway{})
	defer svc.Close()
	eng, err := NewEngine(catalog, st, ledger.New(st), svc, WithTickInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer eng.Close()

	snap := eng.Snapshot()
	if snap.IsRunning || snap.StartTime != nil || snap.EndTime != nil {
		t.Error("invalid snapshot must be cleared to idle")
	}
	if snap.TimeLeftSeconds != 57600 {
		t.Errorf("time left = %d, want full plan duration", snap.TimeLeftSeconds)
	}
}

func TestRestoreUnknownPlanFallsBackToDefault(t *testing.T) {
	catalog := defaultCatalog(t)
	st := store.NewInMemoryStore()
	saved := models.RunState{
		ActivePlanID:         "removed-plan",
		TimeLeftSeconds:      123,
		NotificationsEnabled: true,
	}
	if err := st.SaveRunState(saved); err != nil {
		t.Fatalf("seed state failed: %v", err)
	}

	svc := notify.NewService(&recorderGateway{})
	defer svc.Close()
	eng, err := NewEngine(catalog, st, ledger.New(st), svc, WithTickInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer eng.Close()

	snap := eng.Snapshot()
	if snap.ActivePlanID != plans.DefaultPlanID {
		t.Errorf("active plan = %q, want default %q", snap.ActivePlanID, plans.DefaultPlanID)
	}
	if snap.IsRunning || snap.StartTime != nil {
		t.Error("fallback state must be idle")
	}
	if snap.TimeLeftSeconds != 57600 {
		t.Errorf("time left = %d, want full default duration", snap.TimeLeftSeconds)
	}
	if !snap.NotificationsEnabled {
		t.Error("notification preference should survive the fallback")
	}
}

func TestRestartWhileRunningRecordsNoSession(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()
	r.clock.advance(3 * time.Hour)

	snap := r.engine.Start()
	if snap.TimeLeftSeconds != 57600 {
		t.Errorf("restart should re-arm the full duration, got %d", snap.TimeLeftSeconds)
	}
	if got := sessions(t, r); len(got) != 0 {
		t.Errorf("restart must not record a session, got %d", len(got))
	}
}

func TestProgressPercent(t *testing.T) {
	r := newTestRig(t, defaultCatalog(t))
	r.engine.Start()
	snap := r.engine.ReconcileOnResume(r.clock.now().Add(8 * time.Hour))
	if snap.ProgressPercent != 50 {
		t.Errorf("progress = %v, want 50", snap.ProgressPercent)
	}
}

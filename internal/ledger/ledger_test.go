package ledger

import (
	"testing"
	"time"

	"github.com/BTreeMap/FastTrack/internal/models"
	"github.com/BTreeMap/FastTrack/internal/store"
)

func sessionOn(id string, start time.Time, minutes float64, status models.SessionStatus) models.Session {
	end := start.Add(time.Duration(minutes) * time.Minute)
	return models.Session{
		ID:                    id,
		PlanID:                "16:8",
		StartTime:             start,
		EndTime:               end,
		ActualDurationMinutes: minutes,
		TargetDurationMinutes: 960,
		Status:                status,
		CreatedAt:             start,
		UpdatedAt:             end,
	}
}

func newTestLedger(t *testing.T, sessions ...models.Session) *Ledger {
	t.Helper()
	l := New(store.NewInMemoryStore())
	for _, s := range sessions {
		if err := l.Append(s); err != nil {
			t.Fatalf("failed to seed session %s: %v", s.ID, err)
		}
	}
	return l
}

func TestAppendAndAllPreserveOrder(t *testing.T) {
	base := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	l := newTestLedger(t,
		sessionOn("1", base, 960, models.SessionCompleted),
		sessionOn("2", base.Add(24*time.Hour), 120, models.SessionCancelled),
	)
	all, err := l.All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0].ID != "1" || all[1].ID != "2" {
		t.Errorf("sessions out of insertion order: %+v", all)
	}
}

func TestAppendRejectsInvalidSession(t *testing.T) {
	l := newTestLedger(t)
	bad := sessionOn("x", time.Now(), 10, "active")
	if err := l.Append(bad); err == nil {
		t.Error("expected invalid session to be rejected")
	}
}

func TestStreakConsecutiveDays(t *testing.T) {
	ref := time.Date(2024, 5, 10, 22, 0, 0, 0, time.UTC)
	l := newTestLedger(t,
		sessionOn("today", ref.Add(-2*time.Hour), 960, models.SessionCompleted),
		sessionOn("yesterday", ref.AddDate(0, 0, -1), 960, models.SessionCompleted),
	)
	streak, err := l.Streak(ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if streak != 2 {
		t.Errorf("expected streak 2, got %d", streak)
	}
}

func TestStreakBrokenByGap(t *testing.T) {
	ref := time.Date(2024, 5, 10, 22, 0, 0, 0, time.UTC)
	l := newTestLedger(t,
		sessionOn("today", ref.Add(-2*time.Hour), 960, models.SessionCompleted),
		// Gap on the 9th; the 8th must not count.
		sessionOn("older", ref.AddDate(0, 0, -2), 960, models.SessionCompleted),
	)
	streak, err := l.Streak(ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if streak != 1 {
		t.Errorf("expected streak 1, got %d", streak)
	}
}

func TestStreakZeroWithoutCompletionToday(t *testing.T) {
	ref := time.Date(2024, 5, 10, 22, 0, 0, 0, time.UTC)
	l := newTestLedger(t,
		sessionOn("yesterday", ref.AddDate(0, 0, -1), 960, models.SessionCompleted),
		// A cancelled fast today does not sustain the streak.
		sessionOn("today-cancelled", ref.Add(-time.Hour), 60, models.SessionCancelled),
	)
	streak, err := l.Streak(ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if streak != 0 {
		t.Errorf("expected streak 0, got %d", streak)
	}
}

func TestSuccessRate(t *testing.T) {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	empty := newTestLedger(t)
	rate, err := empty.SuccessRate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 0 {
		t.Errorf("empty ledger success rate expected 0, got %d", rate)
	}

	l := newTestLedger(t,
		sessionOn("1", base, 960, models.SessionCompleted),
		sessionOn("2", base.Add(24*time.Hour), 960, models.SessionCompleted),
		sessionOn("3", base.Add(48*time.Hour), 60, models.SessionCancelled),
	)
	rate, err = l.SuccessRate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 67 {
		t.Errorf("expected 67%% success rate, got %d", rate)
	}
}

func TestWeeklyBuckets(t *testing.T) {
	weekStart := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC) // Monday
	l := newTestLedger(t,
		// Two sessions on Monday; the longer one wins the bucket.
		sessionOn("mon-short", weekStart.Add(6*time.Hour), 120, models.SessionCancelled),
		sessionOn("mon-long", weekStart.Add(20*time.Hour), 960, models.SessionCompleted),
		sessionOn("wed", weekStart.AddDate(0, 0, 2).Add(9*time.Hour), 480, models.SessionCompleted),
		// Outside the window, must be ignored.
		sessionOn("before", weekStart.AddDate(0, 0, -1), 960, models.SessionCompleted),
		sessionOn("after", weekStart.AddDate(0, 0, 7).Add(time.Hour), 960, models.SessionCompleted),
	)

	buckets, err := l.WeeklyBuckets(weekStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buckets) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(buckets))
	}
	if buckets[0].Session == nil || buckets[0].Session.ID != "mon-long" {
		t.Errorf("Monday bucket expected mon-long, got %+v", buckets[0].Session)
	}
	if buckets[0].Session.Status != models.SessionCompleted {
		t.Errorf("bucket session must keep its status tag")
	}
	if buckets[1].Session != nil {
		t.Errorf("Tuesday bucket expected empty, got %+v", buckets[1].Session)
	}
	if buckets[2].Session == nil || buckets[2].Session.ID != "wed" {
		t.Errorf("Wednesday bucket expected wed, got %+v", buckets[2].Session)
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	l := newTestLedger(t,
		sessionOn("1", base, 960, models.SessionCompleted),
		sessionOn("2", base.Add(24*time.Hour), 1080, models.SessionCompleted),
		sessionOn("3", base.Add(48*time.Hour), 60, models.SessionCancelled),
	)
	sum, err := l.Summarize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.TotalSessions != 3 || sum.CompletedSessions != 2 || sum.CancelledSessions != 1 {
		t.Errorf("unexpected counts: %+v", sum)
	}
	if sum.SuccessRatePercent != 67 {
		t.Errorf("expected 67%%, got %d", sum.SuccessRatePercent)
	}
	if sum.AverageFastingHours != 17 {
		t.Errorf("expected 17h average, got %v", sum.AverageFastingHours)
	}
}

// Package ledger provides the append-only session history and its derived
// statistics: streaks, success rate, and weekly charting buckets.
package ledger

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/BTreeMap/FastTrack/internal/models"
	"github.com/BTreeMap/FastTrack/internal/store"
)

// maxStreakDays bounds the backward day walk of Streak. A year of
// consecutive daily fasts is far beyond any realistic streak.
const maxStreakDays = 366

// DayBucket is one day of the weekly chart: the single longest session that
// started that day, if any.
type DayBucket struct {
	Date    time.Time       `json:"date"`
	Session *models.Session `json:"session,omitempty"`
}

// Summary aggregates the whole ledger for the statistics screen.
type Summary struct {
	TotalSessions       int     `json:"total_sessions"`
	CompletedSessions   int     `json:"completed_sessions"`
	CancelledSessions   int     `json:"cancelled_sessions"`
	SuccessRatePercent  int     `json:"success_rate_percent"`
	AverageFastingHours float64 `json:"average_fasting_hours"`
}

// Ledger reads and appends session records through the persistence gateway.
type Ledger struct {
	store store.Store
}

// New creates a Ledger backed by the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Append validates and stores a finished session record.
func (l *Ledger) Append(session models.Session) error {
	if err := session.Validate(); err != nil {
		slog.Error("Ledger Append rejected invalid session", "error", err, "id", session.ID)
		return err
	}
	if err := l.store.AddSession(session); err != nil {
		return fmt.Errorf("ledger append failed: %w", err)
	}
	slog.Debug("Ledger Append succeeded", "id", session.ID, "status", session.Status, "plan", session.PlanID)
	return nil
}

// All returns every session in insertion order.
func (l *Ledger) All() ([]models.Session, error) {
	return l.store.GetSessions()
}

// Streak counts consecutive calendar days, walking backward from
// referenceDate, that contain at least one completed session. The walk stops
// at the first day without one, including the reference day itself. Day
// boundaries use the reference date's location.
func (l *Ledger) Streak(referenceDate time.Time) (int, error) {
	sessions, err := l.store.GetSessions()
	if err != nil {
		return 0, err
	}

	completedDays := make(map[string]bool)
	loc := referenceDate.Location()
	for _, s := range sessions {
		if s.Status == models.SessionCompleted {
			completedDays[s.StartTime.In(loc).Format("2006-01-02")] = true
		}
	}

	streak := 0
	day := referenceDate
	for i := 0; i < maxStreakDays; i++ {
		if !completedDays[day.Format("2006-01-02")] {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak, nil
}

// SuccessRate returns completed/total as a rounded percentage, 0 for an
// empty ledger.
func (l *Ledger) SuccessRate() (int, error) {
	sessions, err := l.store.GetSessions()
	if err != nil {
		return 0, err
	}
	if len(sessions) == 0 {
		return 0, nil
	}
	completed := 0
	for _, s := range sessions {
		if s.Status == models.SessionCompleted {
			completed++
		}
	}
	return int(math.Round(float64(completed) / float64(len(sessions)) * 100)), nil
}

// WeeklyBuckets returns 7 day buckets starting at weekStart. Each bucket
// holds the session with the largest actual duration that started that day,
// or no session at all. Day boundaries use weekStart's location.
func (l *Ledger) WeeklyBuckets(weekStart time.Time) ([]DayBucket, error) {
	sessions, err := l.store.GetSessions()
	if err != nil {
		return nil, err
	}

	loc := weekStart.Location()
	dayStart := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, loc)

	buckets := make([]DayBucket, 7)
	for i := range buckets {
		buckets[i] = DayBucket{Date: dayStart.AddDate(0, 0, i)}
	}
	weekEnd := dayStart.AddDate(0, 0, 7)

	for i := range sessions {
		s := sessions[i]
		st := s.StartTime.In(loc)
		if st.Before(dayStart) || !st.Before(weekEnd) {
			continue
		}
		idx := daysBetween(dayStart, st)
		if buckets[idx].Session == nil || s.ActualDurationMinutes > buckets[idx].Session.ActualDurationMinutes {
			buckets[idx].Session = &sessions[i]
		}
	}
	return buckets, nil
}

// Summarize computes the ledger-wide totals shown on the statistics screen.
func (l *Ledger) Summarize() (Summary, error) {
	sessions, err := l.store.GetSessions()
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	var completedMinutes float64
	for _, s := range sessions {
		sum.TotalSessions++
		switch s.Status {
		case models.SessionCompleted:
			sum.CompletedSessions++
			completedMinutes += s.ActualDurationMinutes
		case models.SessionCancelled:
			sum.CancelledSessions++
		}
	}
	if sum.TotalSessions > 0 {
		sum.SuccessRatePercent = int(math.Round(float64(sum.CompletedSessions) / float64(sum.TotalSessions) * 100))
	}
	if sum.CompletedSessions > 0 {
		sum.AverageFastingHours = completedMinutes / float64(sum.CompletedSessions) / 60
	}
	return sum, nil
}

// daysBetween returns whole calendar days from a (midnight) to t, for bucket
// indexing. t is guaranteed to be within [a, a+7d).
func daysBetween(a, t time.Time) int {
	d := 0
	day := a
	for {
		next := day.AddDate(0, 0, 1)
		if t.Before(next) {
			return d
		}
		day = next
		d++
	}
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BTreeMap/FastTrack/internal/models"
)

// timeLayout is the on-disk timestamp format. RFC 3339 with nanoseconds so
// sub-second session durations survive a round trip.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatTimePtr returns nil for nil times, for nullable columns.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Older snapshots may have been written without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// scanSession scans a Session row from the shared column set used by both
// SQL backends.
func scanSession(rows *sql.Rows) (models.Session, error) {
	var s models.Session
	var start, end, created, updated string
	var status string
	err := rows.Scan(&s.ID, &s.PlanID, &start, &end,
		&s.ActualDurationMinutes, &s.TargetDurationMinutes, &status, &created, &updated)
	if err != nil {
		return s, fmt.Errorf("scan session failed: %w", err)
	}
	s.Status = models.SessionStatus(status)
	if s.StartTime, err = parseTime(start); err != nil {
		return s, fmt.Errorf("session %s start_time: %w", s.ID, err)
	}
	if s.EndTime, err = parseTime(end); err != nil {
		return s, fmt.Errorf("session %s end_time: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTime(created); err != nil {
		return s, fmt.Errorf("session %s created_at: %w", s.ID, err)
	}
	if s.UpdatedAt, err = parseTime(updated); err != nil {
		return s, fmt.Errorf("session %s updated_at: %w", s.ID, err)
	}
	return s, nil
}

// scanRunState scans the singleton run state row.
func scanRunState(row *sql.Row) (*models.RunState, error) {
	var st models.RunState
	var start, end sql.NullString
	var updated string
	err := row.Scan(&st.IsRunning, &st.TimeLeftSeconds, &st.ActivePlanID,
		&start, &end, &st.NotificationsEnabled, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run state failed: %w", err)
	}
	if st.StartTime, err = parseTimePtr(start); err != nil {
		return nil, fmt.Errorf("run state start_time: %w", err)
	}
	if st.EndTime, err = parseTimePtr(end); err != nil {
		return nil, fmt.Errorf("run state end_time: %w", err)
	}
	return &st, nil
}

// Package scheduler provides recurring-job scheduling for FastTrack.
//
// It backs the daily reminder notifications (hydration, motivation) with a
// cron runner.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns the entry id, or an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) (cron.EntryID, error) {
	return s.cron.AddFunc(expr, task)
}

// AddDaily schedules a task to run every day at the given local time.
func (s *Scheduler) AddDaily(hour, minute int, task func()) (cron.EntryID, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid daily schedule %02d:%02d", hour, minute)
	}
	return s.AddJob(fmt.Sprintf("%d %d * * *", minute, hour), task)
}

// Remove cancels a scheduled job by entry id.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scheduler fires a job's daily schedules. Shape is grounded on the
// teacher's RolloutExecutor (an injectable collaborator behind a narrow
// interface) and on r3e-network-service_layer's automation.Scheduler
// (cancel/wg lifecycle, a test-facing wakeup seam); next-fire computation
// uses robfig/cron rather than hand-rolled date arithmetic.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/musergi/ospreid/internal/logging"
	"github.com/musergi/ospreid/internal/store"
)

// Starter is the subset of *engine.Engine the scheduler depends on.
type Starter interface {
	Start(ctx context.Context, jobID int64) (int64, error)
}

// Scheduler polls store.AllSchedules and starts a job's execution whenever
// its daily hour:minute (UTC) schedule comes due.
type Scheduler struct {
	store   store.Store
	starter Starter
	log     logging.Logger

	// wakeup lets tests (and schedule-mutating API handlers, in principle)
	// force an immediate re-read of the schedule list instead of waiting
	// out the current sleep.
	wakeup chan struct{}

	mu sync.Mutex
	// firedMinute records, per schedule id, the UTC minute bucket it was
	// last dispatched for, so a schedule already fired this minute isn't
	// re-dispatched by a subsequent loop pass landing in the same minute.
	firedMinute map[int64]time.Time
}

// New builds a Scheduler over the given store and job starter.
func New(s store.Store, starter Starter, log logging.Logger) *Scheduler {
	return &Scheduler{
		store:       s,
		starter:     starter,
		log:         log,
		wakeup:      make(chan struct{}, 1),
		firedMinute: make(map[int64]time.Time),
	}
}

// Wake forces the scheduler to re-read schedules immediately, skipping the
// remainder of its current sleep.
func (s *Scheduler) Wake() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// Run blocks, driving the poll loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		sleepFor, due := s.nextTick(ctx)
		if ctx.Err() != nil {
			return
		}
		if sleepFor > 0 {
			timer := time.NewTimer(sleepFor)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.wakeup:
				timer.Stop()
				continue
			case <-timer.C:
			}
			// Re-derive the due set at the instant the timer actually
			// fired, in case the sleep overran due to scheduler latency.
			_, due = s.nextTick(ctx)
		}
		s.dispatch(ctx, due)
	}
}

// nextTick reads the current schedule list and returns how long to sleep
// before the earliest one is due, along with the set of schedules already
// due right now (sleepFor == 0).
func (s *Scheduler) nextTick(ctx context.Context) (time.Duration, []store.Schedule) {
	schedules, err := s.store.AllSchedules(ctx)
	if err != nil {
		s.log.Error("reading schedules failed", logging.NewField("error", err))
		return time.Minute, nil
	}
	if len(schedules) == 0 {
		return time.Minute, nil
	}

	now := time.Now().UTC()
	type candidate struct {
		schedule store.Schedule
		next     time.Time
	}
	candidates := make([]candidate, 0, len(schedules))
	var earliest time.Time
	for _, sc := range schedules {
		spec, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", sc.Minute, sc.Hour))
		if err != nil {
			s.log.Error("invalid schedule", logging.NewField("schedule_id", sc.ID), logging.NewField("error", err))
			continue
		}
		next := spec.Next(now.Add(-time.Minute))
		s.mu.Lock()
		fired := s.firedMinute[sc.ID]
		s.mu.Unlock()
		if sameMinute(fired, next) {
			// Already dispatched for this minute: its next occurrence is
			// tomorrow's, so the loop sleeps instead of re-polling.
			next = spec.Next(next)
		}
		candidates = append(candidates, candidate{schedule: sc, next: next})
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	if earliest.IsZero() {
		return time.Minute, nil
	}

	var due []store.Schedule
	s.mu.Lock()
	for _, c := range candidates {
		if !sameMinute(c.next, earliest) {
			continue
		}
		if sameMinute(s.firedMinute[c.schedule.ID], earliest) {
			continue
		}
		due = append(due, c.schedule)
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })

	if !earliest.After(now) {
		return 0, due
	}
	return earliest.Sub(now), nil
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

func (s *Scheduler) dispatch(ctx context.Context, due []store.Schedule) {
	now := time.Now().UTC()
	s.mu.Lock()
	for _, sc := range due {
		s.firedMinute[sc.ID] = now
	}
	s.mu.Unlock()

	for _, sc := range due {
		sc := sc
		go func() {
			if _, err := s.starter.Start(ctx, sc.JobID); err != nil {
				s.log.Error("scheduled start failed",
					logging.NewField("schedule_id", sc.ID),
					logging.NewField("job_id", sc.JobID),
					logging.NewField("error", err))
			}
		}()
	}
}

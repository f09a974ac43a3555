// Package scheduler drives a Manager in real time: a fixed-interval tick
// loop advances the simulation, and cron schedules start tasks when due.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/internal/validation"
	"github.com/rendis/callgraph/pkg/schema"
)

// DefaultInterval is the tick period used when none is configured.
const DefaultInterval = 100 * time.Millisecond

// Driver is the part of the Manager the scheduler uses. Satisfied by
// *engine.Manager.
type Driver interface {
	Tick(ctx context.Context, delta time.Duration) int64
	Start(ctx context.Context, id string) error
	Status(id string) (engine.TaskInfo, error)
}

// Entry describes one cron schedule.
type Entry struct {
	TaskID    string     `json:"task_id"`
	Spec      string     `json:"spec"`
	NextRunAt time.Time  `json:"next_run_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type job struct {
	entry    Entry
	schedule cron.Schedule
}

// Scheduler ticks a Driver and starts scheduled tasks.
type Scheduler struct {
	driver   Driver
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	jobsMu   sync.Mutex
	jobs     map[string]*job
	lastTick time.Time
}

// NewScheduler creates a Scheduler ticking every interval. A non-positive
// interval uses DefaultInterval.
func NewScheduler(driver Driver, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		driver:   driver,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		jobs:     make(map[string]*job),
	}
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// AddSchedule starts taskID whenever spec comes due. It replaces any
// schedule the task already has.
func (s *Scheduler) AddSchedule(taskID, spec string) error {
	schedule, err := validation.ParseSchedule(spec)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "parse schedule %q: %v", spec, err).WithCause(err)
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.jobs[taskID] = &job{
		entry:    Entry{TaskID: taskID, Spec: spec, NextRunAt: schedule.Next(s.now())},
		schedule: schedule,
	}
	s.logger.Info("schedule added", slog.String("task_id", taskID), slog.String("spec", spec))
	return nil
}

// RemoveSchedule drops the schedule of taskID. It reports whether one existed.
func (s *Scheduler) RemoveSchedule(taskID string) bool {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	_, ok := s.jobs[taskID]
	delete(s.jobs, taskID)
	return ok
}

// Schedules lists the schedules ordered by next run time.
func (s *Scheduler) Schedules() []Entry {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.entry)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].NextRunAt.Equal(out[k].NextRunAt) {
			return out[i].TaskID < out[k].TaskID
		}
		return out[i].NextRunAt.Before(out[k].NextRunAt)
	})
	return out
}

// Start launches the background tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return schema.NewError(schema.ErrCodeConflict, "scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, s.now())
		}
	}
}

// tick starts the tasks due at now, then advances the driver by the time
// elapsed since the previous tick.
func (s *Scheduler) tick(ctx context.Context, now time.Time) int64 {
	for _, taskID := range s.due(now) {
		err := s.runJob(ctx, taskID)
		s.finishJob(taskID, now, err)
	}

	s.jobsMu.Lock()
	delta := s.interval
	if !s.lastTick.IsZero() {
		delta = now.Sub(s.lastTick)
	}
	s.lastTick = now
	s.jobsMu.Unlock()

	return s.driver.Tick(ctx, delta)
}

// due returns the tasks whose next run is not after now, in task id order.
func (s *Scheduler) due(now time.Time) []string {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	var ids []string
	for id, j := range s.jobs {
		if !j.entry.NextRunAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// runJob starts a scheduled task unless its previous run is still active.
func (s *Scheduler) runJob(ctx context.Context, taskID string) error {
	info, err := s.driver.Status(taskID)
	if err != nil {
		return err
	}
	if info.Status == schema.TaskStatusRunning || info.Status == schema.TaskStatusSuspended {
		s.logger.Warn("scheduled task still active, skipping run",
			slog.String("task_id", taskID),
			slog.String("status", string(info.Status)),
		)
		return nil
	}

	s.logger.Info("running scheduled task", slog.String("task_id", taskID))
	return s.driver.Start(ctx, taskID)
}

func (s *Scheduler) finishJob(taskID string, now time.Time, runErr error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	j, ok := s.jobs[taskID]
	if !ok {
		return
	}
	j.entry.LastRunAt = &now
	j.entry.NextRunAt = j.schedule.Next(now)
	j.entry.LastError = ""
	if runErr != nil {
		j.entry.LastError = runErr.Error()
		s.logger.Error("scheduled task failed to start",
			slog.String("task_id", taskID),
			slog.String("error", runErr.Error()),
		)
	}
}

// CalculateNextRun computes the next run time for a schedule spec.
func CalculateNextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := validation.ParseSchedule(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return schedule.Next(from), nil
}

// Stop shuts the loop down and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

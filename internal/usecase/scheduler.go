package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"FeedPress/internal/ports"
)

// Task is one periodic job with its own driver.
type Task struct {
	Name   string
	Driver ports.Scheduler
	Run    func(ctx context.Context) error
}

// Scheduler owns the periodic tasks. Each task runs on its own driver, so a failing or
// panicking run of one never affects the others.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(logger *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{tasks: tasks, logger: logger}
}

// SweepTask runs a full sweep of every active feed.
func SweepTask(driver ports.Scheduler, p *Pipeline) Task {
	return Task{Name: "sweep", Driver: driver, Run: func(ctx context.Context) error {
		_, err := p.SweepAll(ctx)
		return err
	}}
}

// ResetTask zeroes daily counters of feeds whose quota window rolled over.
func ResetTask(driver ports.Scheduler, p *Pipeline) Task {
	return Task{Name: "daily-reset", Driver: driver, Run: func(ctx context.Context) error {
		_, err := p.ResetDaily(ctx)
		return err
	}}
}

// DrainTask re-triggers the indexing queue drain so halted runs resume.
func DrainTask[R any](driver ports.Scheduler, drain func(ctx context.Context) (R, error)) Task {
	return Task{Name: "queue-drain", Driver: driver, Run: func(ctx context.Context) error {
		_, err := drain(ctx)
		return err
	}}
}

// Start registers every task with its driver.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, task := range s.tasks {
		if task.Driver == nil || task.Run == nil {
			continue
		}
		job := func(trigger time.Time) {
			s.runOnce(ctx, task, trigger)
		}
		if err := task.Driver.Start(ctx, job); err != nil {
			return fmt.Errorf("start %s task: %w", task.Name, err)
		}
	}
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context, task Task, trigger time.Time) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("scheduled task panicked", "task", task.Name, "panic", r)
		}
	}()

	started := time.Now()
	err := task.Run(ctx)
	if s.logger == nil {
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("scheduled task failed", "task", task.Name, "trigger", trigger, "error", err)
		return
	}
	s.logger.Debug("scheduled task finished", "task", task.Name, "duration", time.Since(started))
}

// Stop gracefully tears down every driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	var errs []error
	for _, task := range s.tasks {
		if task.Driver == nil {
			continue
		}
		if err := task.Driver.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s task: %w", task.Name, err))
		}
	}
	return errors.Join(errs...)
}

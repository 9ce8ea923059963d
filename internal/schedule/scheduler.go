// Package schedule repeats benchmark runs on a fixed interval.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"globesort/internal/timing"
)

// Task performs one benchmark; seq counts from 1.
type Task func(ctx context.Context, seq int) error

// Config holds configuration for the Scheduler.
type Config struct {
	Interval time.Duration
	// Count stops the scheduler after that many runs; zero runs until
	// the context is cancelled.
	Count int
	// FailFast stops the scheduler on the first failed run.
	FailFast bool
	// Clock drives the interval; nil uses the wall clock.
	Clock  timing.Clock
	Logger *zap.Logger
}

// Scheduler runs a task every interval, never overlapping two runs.
type Scheduler struct {
	scheduler gocron.Scheduler
	config    Config
	task      Task
	running   bool

	runs     atomic.Int64
	failures atomic.Int64

	done chan struct{}
	once sync.Once
	err  error
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg Config, task Task) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var opts []gocron.SchedulerOption
	if cfg.Clock != nil {
		opts = append(opts, gocron.WithClock(cfg.Clock))
	}

	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: scheduler,
		config:    cfg,
		task:      task,
		done:      make(chan struct{}),
	}, nil
}

// Start schedules the task, running the first iteration immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.running {
		return errors.New("scheduler is already running")
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.config.Interval),
		gocron.NewTask(func() {
			s.tick(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create benchmark job: %w", err)
	}

	s.scheduler.Start()
	s.running = true
	return nil
}

// Wait blocks until the run count is reached, a run fails under FailFast,
// or ctx is cancelled.
func (s *Scheduler) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops the scheduler, waiting for an in-flight run to finish.
func (s *Scheduler) Stop() error {
	if !s.running {
		return errors.New("scheduler is not running")
	}

	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	s.running = false
	return nil
}

// Runs returns the number of runs started.
func (s *Scheduler) Runs() int { return int(s.runs.Load()) }

// Failures returns the number of failed runs.
func (s *Scheduler) Failures() int { return int(s.failures.Load()) }

func (s *Scheduler) tick(ctx context.Context) {
	select {
	case <-s.done:
		return
	default:
	}
	if ctx.Err() != nil {
		return
	}

	seq := int(s.runs.Add(1))
	if err := s.task(ctx, seq); err != nil {
		s.failures.Add(1)
		s.config.Logger.Error("benchmark run failed", zap.Int("seq", seq), zap.Error(err))
		if s.config.FailFast {
			s.finish(err)
			return
		}
	}

	if s.config.Count > 0 && seq >= s.config.Count {
		s.finish(nil)
	}
}

func (s *Scheduler) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrInvalidCronExpression is returned when a schedule cannot be parsed as a
// standard five-field cron expression.
var ErrInvalidCronExpression = errors.New("invalid cron expression")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSpec checks a cron expression without scheduling anything.
func ValidateSpec(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCronExpression, spec, err)
	}
	return nil
}

// Runner is the unit of scheduled work; satisfied by the backup engine's
// create+retain pass.
type Runner interface {
	RunScheduled(ctx context.Context) error
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Running  bool       `json:"running"`
	Schedule string     `json:"schedule,omitempty"`
	NextRun  *time.Time `json:"nextRun,omitempty"`
}

// Scheduler fires the engine's scheduled pass on a cron timer. Starting
// replaces any previously registered entry, so two timers never run
// concurrently; an in-flight flag additionally skips a tick that arrives
// while the previous self-triggered run is still executing. It does not
// guard against a manual backup overlapping a scheduled one.
type Scheduler struct {
	runner Runner
	logger zerolog.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	entryID  cron.EntryID
	schedule string
	inFlight atomic.Bool
}

// New returns a stopped scheduler for the given runner.
func New(runner Runner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{runner: runner, logger: logger}
}

// Start begins firing on the given cron schedule. If the scheduler is
// already running, the existing entry is replaced rather than doubled.
func (s *Scheduler) Start(spec string) error {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCronExpression, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	c := cron.New(cron.WithParser(cronParser))
	s.entryID = c.Schedule(schedule, cron.FuncJob(s.run))
	s.cron = c
	s.schedule = spec
	c.Start()

	s.logger.Info().Str("schedule", spec).Msg("scheduler started")
	return nil
}

// Stop halts the timer. Safe to call when already stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.logger.Info().Msg("scheduler stopped")
	}
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.schedule = ""
}

// Status reports whether the scheduler is running and when it fires next.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return Status{}
	}
	status := Status{Running: true, Schedule: s.schedule}
	next := s.cron.Entry(s.entryID).Next
	if !next.IsZero() {
		status.NextRun = &next
	}
	return status
}

func (s *Scheduler) run() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("previous scheduled run still in flight, skipping")
		return
	}
	defer s.inFlight.Store(false)

	s.logger.Info().Msg("scheduled backup run starting")
	if err := s.runner.RunScheduled(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("scheduled backup run failed")
		return
	}
	s.logger.Info().Msg("scheduled backup run completed")
}

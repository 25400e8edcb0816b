// Package scheduler polls for due executions and hands them to the engine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/mailflow/pkg/clock"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultClaimLimit   = 100
	DefaultWorkers      = 10
	DefaultLease        = 15 * time.Minute
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// Runner evaluates a claimed execution.
type Runner interface {
	Run(ctx context.Context, execution *models.Execution) error
}

// Scheduler claims due executions on a fixed poll interval. A tick that is
// still running when the next one fires is skipped.
type Scheduler struct {
	executions persistence.ExecutionRepository
	runner     Runner
	clock      clock.Clock
	logger     *slog.Logger

	interval   time.Duration
	claimLimit int
	workers    int
	lease      time.Duration

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClaimLimit(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.claimLimit = n
		}
	}
}

// WithWorkers bounds how many claimed executions are evaluated at once.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLease sets how long an execution may stay running before a tick
// returns it to pending. Zero disables stale recovery.
func WithLease(d time.Duration) Option {
	return func(s *Scheduler) {
		s.lease = d
	}
}

func New(executions persistence.ExecutionRepository, runner Runner, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		executions: executions,
		runner:     runner,
		clock:      clock.Real{},
		logger:     logger.With("module", "scheduler"),
		interval:   DefaultPollInterval,
		claimLimit: DefaultClaimLimit,
		workers:    DefaultWorkers,
		lease:      DefaultLease,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs one tick immediately and then one per poll interval until Stop
// is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	tickCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{s.logger}

	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(logger))

	job := cron.NewChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)).Then(cron.FuncJob(func() {
		_, err := s.Tick(tickCtx)
		if err != nil && tickCtx.Err() == nil {
			s.logger.ErrorContext(tickCtx, "Scheduler tick failed", "error", err)
		}
	}))

	_, err := c.AddJob(fmt.Sprintf("@every %s", s.interval), job)
	if err != nil {
		cancel()

		return fmt.Errorf("failed to schedule poller: %w", err)
	}

	s.cron = c
	s.cancel = cancel

	c.Start()

	go job.Run()

	s.logger.InfoContext(ctx, "Scheduler started",
		"poll_interval", s.interval,
		"claim_limit", s.claimLimit,
		"workers", s.workers)

	return nil
}

// Stop cancels in-flight evaluations and waits for the running tick to
// return, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	stopped := c.Stop()
	cancel()

	select {
	case <-stopped.Done():
		s.logger.InfoContext(ctx, "Scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick resets stale executions, claims up to the claim limit of due ones and
// runs them concurrently. It returns the number claimed. Evaluation errors
// are logged; the engine has already recorded them on the execution.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.clock.Now()

	if s.lease > 0 {
		reset, err := s.executions.ResetStale(ctx, now.Add(-s.lease))
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to reset stale executions", "error", err)
		} else if reset > 0 {
			s.logger.WarnContext(ctx, "Reset stale running executions", "count", reset, "lease", s.lease)
		}
	}

	claimed, err := s.executions.ClaimDue(ctx, now, s.claimLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to claim due executions: %w", err)
	}

	if len(claimed) == 0 {
		return 0, nil
	}

	s.logger.DebugContext(ctx, "Claimed due executions", "count", len(claimed))

	var g errgroup.Group

	g.SetLimit(s.workers)

	for _, execution := range claimed {
		g.Go(func() error {
			err := s.runner.Run(ctx, execution)
			if err != nil {
				s.logger.ErrorContext(ctx, "Execution evaluation failed",
					"execution_id", execution.ID,
					"workflow_id", execution.WorkflowID,
					"error", err)
			}

			return nil
		})
	}

	_ = g.Wait()

	return len(claimed), nil
}

// cronLogger routes robfig/cron's logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

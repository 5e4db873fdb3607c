package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/validation"
)

// ErrSweepInProgress is returned when another process holds the run lock.
var ErrSweepInProgress = errors.New("validation sweep already running")

// GuardedEngine runs ValidateAll only while holding the run lock. Single
// referral operations pass through untouched.
type GuardedEngine struct {
	validation.Engine
	lock RunLock
}

func NewGuardedEngine(engine validation.Engine, lock RunLock) *GuardedEngine {
	return &GuardedEngine{Engine: engine, lock: lock}
}

func (g *GuardedEngine) ValidateAll(ctx context.Context, directory platform.MemberDirectory) (*validation.BatchReport, error) {
	release, ok, err := g.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.InfoContext(ctx, "skipping validation sweep, lock held elsewhere")
		return nil, ErrSweepInProgress
	}
	defer release(context.WithoutCancel(ctx))

	return g.Engine.ValidateAll(ctx, directory)
}

type SchedulerConfig struct {
	Interval time.Duration
}

// ValidationScheduler runs ValidateAll on a fixed interval.
type ValidationScheduler struct {
	engine    validation.Engine
	directory platform.MemberDirectory
	cfg       SchedulerConfig

	// OnReport receives the report of every sweep, including the partial
	// report of an aborted one. Optional.
	OnReport func(ctx context.Context, report *validation.BatchReport)

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewValidationScheduler(engine validation.Engine, directory platform.MemberDirectory, cfg SchedulerConfig) *ValidationScheduler {
	return &ValidationScheduler{
		engine:    engine,
		directory: directory,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is done. A non-positive interval
// returns immediately.
func (s *ValidationScheduler) Run(ctx context.Context) {
	defer close(s.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "referrals.worker.scheduler",
	})
	if s.cfg.Interval <= 0 {
		slog.InfoContext(ctx, "scheduled validation disabled")
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "validation scheduler started", "interval", s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "validation scheduler stopping")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				slog.ErrorContext(ctx, "scheduled validation failed", "error", err)
			}
		}
	}
}

// Stop must only be called once Run has been started.
func (s *ValidationScheduler) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

func (s *ValidationScheduler) RunOnce(ctx context.Context) (*validation.BatchReport, error) {
	report, err := s.engine.ValidateAll(ctx, s.directory)
	if report != nil && s.OnReport != nil {
		s.OnReport(ctx, report)
	}
	return report, err
}

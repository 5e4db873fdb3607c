package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"nrrp.app/referrals/common/id"
	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/metrics"
	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/platform"
)

// Decide is the validation rule. A member who left is rejected; a present
// member holding the role is validated; anyone else stays pending.
func Decide(hasRequiredRole, memberStillPresent bool) model.ReferralStatus {
	switch {
	case !memberStillPresent:
		return model.ReferralStatusRejected
	case hasRequiredRole:
		return model.ReferralStatusValidated
	default:
		return model.ReferralStatusPending
	}
}

// Outcome is the result of applying the rule to one referral.
type Outcome struct {
	Referral *model.Referral
	Decision model.ReferralStatus
	Changed  bool
}

type SkippedInvitee struct {
	InviteeID string `json:"invitee_id"`
	Reason    string `json:"reason"`
}

// BatchReport summarizes one ValidateAll run.
type BatchReport struct {
	RunID        int64            `json:"run_id"`
	Validated    int              `json:"validated"`
	Rejected     int              `json:"rejected"`
	StillPending int              `json:"still_pending"`
	Skipped      []SkippedInvitee `json:"skipped"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

func (r *BatchReport) Examined() int {
	return r.Validated + r.Rejected + r.StillPending + len(r.Skipped)
}

type Engine interface {
	// Validate applies the rule to one referral. Referrals that are no longer
	// pending are returned unchanged.
	Validate(ctx context.Context, inviteeID string, hasRequiredRole, memberStillPresent bool) (*Outcome, error)

	// ValidateAll evaluates every pending referral against directory. Lookup
	// failures skip the invitee; a store failure aborts the batch and the
	// partial report is returned with the error.
	ValidateAll(ctx context.Context, directory platform.MemberDirectory) (*BatchReport, error)

	// HandleLeave rejects the invitee's referral if it is still pending. An
	// invitee without a referral is not an error; the outcome is nil.
	HandleLeave(ctx context.Context, inviteeID string) (*Outcome, error)
}

type Config struct {
	Concurrency int
	Clock       func() time.Time
	NewRunID    func() int64
}

type engine struct {
	ledger      ledger.Ledger
	concurrency int
	now         func() time.Time
	newRunID    func() int64
	locks       *keyedMutex
	logger      *slog.Logger
}

func New(l ledger.Ledger, cfg Config, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = id.New
	}
	return &engine{
		ledger:      l,
		concurrency: cfg.Concurrency,
		now:         cfg.Clock,
		newRunID:    cfg.NewRunID,
		locks:       newKeyedMutex(),
		logger:      logger,
	}
}

func (e *engine) Validate(ctx context.Context, inviteeID string, hasRequiredRole, memberStillPresent bool) (*Outcome, error) {
	unlock := e.locks.Lock(inviteeID)
	defer unlock()

	return e.apply(ctx, inviteeID, Decide(hasRequiredRole, memberStillPresent))
}

func (e *engine) HandleLeave(ctx context.Context, inviteeID string) (*Outcome, error) {
	outcome, err := e.Validate(ctx, inviteeID, false, false)
	if errors.Is(err, ledger.ErrReferralNotFound) {
		e.logger.DebugContext(ctx, "leave for member without referral", "invitee_id", inviteeID)
		return nil, nil
	}
	return outcome, err
}

// apply must run under the invitee's lock.
func (e *engine) apply(ctx context.Context, inviteeID string, decision model.ReferralStatus) (*Outcome, error) {
	ref, err := e.ledger.GetReferral(ctx, inviteeID)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Referral: ref, Decision: decision}
	if ref.Status != model.ReferralStatusPending || decision == model.ReferralStatusPending {
		return outcome, nil
	}

	updated, err := e.ledger.SetStatus(ctx, inviteeID, decision)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) && updated != nil {
			// Resolved by another process since our read.
			outcome.Referral = updated
			return outcome, nil
		}
		return nil, err
	}

	outcome.Referral = updated
	outcome.Changed = true
	return outcome, nil
}

func (e *engine) ValidateAll(ctx context.Context, directory platform.MemberDirectory) (*BatchReport, error) {
	runID := e.newRunID()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     &runID,
		Component: "referrals.validation.engine",
	})
	sc := logger.StartSpan(ctx, "validation.run")
	defer sc.End()
	ctx = sc.Context()

	report := &BatchReport{RunID: runID, StartedAt: e.now(), Skipped: []SkippedInvitee{}}
	var mu sync.Mutex

	e.logger.InfoContext(ctx, "validation run started", "concurrency", e.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	var scanErr error
	for ref, err := range e.ledger.PendingReferrals(gctx) {
		if err != nil {
			scanErr = err
			break
		}
		if gctx.Err() != nil {
			break
		}

		inviteeID := ref.InviteeID
		g.Go(func() error {
			// Items already started run to completion even if the run is cancelled.
			return e.validateOne(context.WithoutCancel(gctx), directory, inviteeID, report, &mu)
		})
	}
	runErr := g.Wait()

	report.FinishedAt = e.now()
	duration := report.FinishedAt.Sub(report.StartedAt)
	metrics.ValidationRunDuration.Observe(duration.Seconds())

	// An item failure cancels gctx, which in turn fails the scan; report the cause.
	err := runErr
	if err == nil && scanErr != nil && ctx.Err() == nil {
		err = scanErr
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	attrs := []any{
		"validated", report.Validated,
		"rejected", report.Rejected,
		"still_pending", report.StillPending,
		"skipped", len(report.Skipped),
		"duration_ms", duration.Milliseconds(),
	}
	if err != nil {
		metrics.ValidationRuns.WithLabelValues("aborted").Inc()
		sc.RecordError(err)
		e.logger.ErrorContext(ctx, "validation run aborted", append(attrs, "error", err)...)
		return report, fmt.Errorf("validation run %d: %w", runID, err)
	}

	metrics.ValidationRuns.WithLabelValues("completed").Inc()
	e.logger.InfoContext(ctx, "validation run finished", attrs...)
	return report, nil
}

func (e *engine) validateOne(ctx context.Context, directory platform.MemberDirectory, inviteeID string, report *BatchReport, mu *sync.Mutex) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{InviteeID: &inviteeID})

	unlock := e.locks.Lock(inviteeID)
	defer unlock()

	status, err := directory.Lookup(ctx, inviteeID)
	if err != nil {
		metrics.LookupFailures.Inc()
		e.logger.WarnContext(ctx, "member lookup failed, leaving referral pending", "error", err)
		mu.Lock()
		report.Skipped = append(report.Skipped, SkippedInvitee{InviteeID: inviteeID, Reason: err.Error()})
		mu.Unlock()
		return nil
	}

	outcome, err := e.apply(ctx, inviteeID, Decide(status.HasRequiredRole, status.Present))
	if err != nil {
		if errors.Is(err, ledger.ErrReferralNotFound) {
			// Removed by an admin mid-run.
			return nil
		}
		return fmt.Errorf("validating %s: %w", inviteeID, err)
	}

	mu.Lock()
	defer mu.Unlock()
	switch {
	case outcome.Changed && outcome.Referral.Status == model.ReferralStatusValidated:
		report.Validated++
	case outcome.Changed && outcome.Referral.Status == model.ReferralStatusRejected:
		report.Rejected++
	case outcome.Referral.Status == model.ReferralStatusPending:
		report.StillPending++
	}
	return nil
}

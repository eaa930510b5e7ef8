package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hypercopy/internal/config"
	"hypercopy/internal/metrics"
	"hypercopy/internal/models"
	"hypercopy/internal/repository"
)

type SweepResult struct {
	Scanned   int `json:"scanned"`
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
	Errored   int `json:"errored"`
	Skipped   int `json:"skipped"`
}

func (r *SweepResult) add(o Outcome) {
	switch o {
	case OutcomeSubmitted, OutcomeTriggered:
		r.Submitted++
	case OutcomeRejected:
		r.Rejected++
	case OutcomeErrored:
		r.Errored++
	default:
		r.Skipped++
	}
}

// Scheduler dispatches created plans in FIFO order. Each plan is claimed
// first, so overlapping passes or processes never dispatch it twice.
type Scheduler struct {
	Lifecycle *Lifecycle
	Store     repository.PlanStore
	Flags     *SystemSettingsService
	Config    config.ExecutorConfig
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

// Run is the cron entry point; it honors the submission switch.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureSubmissionSweep, true) {
		return
	}
	res, err := s.SweepCreated(ctx)
	if err != nil {
		s.log().Warn("submission sweep failed", zap.Error(err))
		return
	}
	if res.Scanned > 0 {
		s.log().Info("submission sweep",
			zap.Int("scanned", res.Scanned),
			zap.Int("submitted", res.Submitted),
			zap.Int("rejected", res.Rejected),
			zap.Int("errored", res.Errored),
			zap.Int("skipped", res.Skipped),
		)
	}
}

func (s *Scheduler) SweepCreated(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	defer func() { s.Metrics.Sweep("submit", time.Since(start)) }()

	var res SweepResult
	plans, err := s.Store.ListPlansByStatuses(ctx, []models.PlanStatus{models.StatusCreated}, nil, s.batchSize())
	if err != nil {
		return res, fmt.Errorf("list created plans: %w", err)
	}
	res.Scanned = len(plans)

	var mu sync.Mutex
	record := func(o Outcome) {
		mu.Lock()
		res.add(o)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i := range plans {
		plan := plans[i]
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			record(s.process(gctx, &plan))
			return nil
		})
	}
	_ = g.Wait()

	s.Metrics.SweepOutcome("submit", "submitted", res.Submitted)
	s.Metrics.SweepOutcome("submit", "rejected", res.Rejected)
	s.Metrics.SweepOutcome("submit", "errored", res.Errored)
	s.Metrics.SweepOutcome("submit", "skipped", res.Skipped)
	return res, ctx.Err()
}

func (s *Scheduler) process(ctx context.Context, plan *models.OrderPlan) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error("sweep panic", zap.String("plan_id", plan.ID), zap.Any("panic", r))
			outcome = OutcomeErrored
		}
	}()
	owner := s.Lifecycle.owner()
	claimed, err := s.Store.ClaimPlan(ctx, plan.ID, owner, s.Lifecycle.now())
	if err != nil {
		s.log().Warn("claim failed", zap.String("plan_id", plan.ID), zap.Error(err))
		return OutcomeErrored
	}
	if !claimed {
		return OutcomeSkipped
	}
	plan.ClaimedBy = owner
	_, outcome = s.Lifecycle.Dispatch(ctx, plan)
	return outcome
}

func (s *Scheduler) batchSize() int {
	if s.Config.BatchSize <= 0 {
		return 200
	}
	return s.Config.BatchSize
}

func (s *Scheduler) concurrency() int {
	if s.Config.Concurrency <= 0 {
		return 1
	}
	return s.Config.Concurrency
}

func (s *Scheduler) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

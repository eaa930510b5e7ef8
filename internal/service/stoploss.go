package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hypercopy/internal/config"
	"hypercopy/internal/metrics"
	"hypercopy/internal/models"
	"hypercopy/internal/repository"
)

// StopLossMonitor watches armed plans and closes them once the mark
// crosses the stop. A plan triggers at most once: after the trigger it is
// terminal and drops out of the armed set.
type StopLossMonitor struct {
	Lifecycle *Lifecycle
	Store     repository.PlanStore
	Flags     *SystemSettingsService
	Config    config.ExecutorConfig
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
}

type TickResult struct {
	Scanned   int `json:"scanned"`
	Triggered int `json:"triggered"`
	Rejected  int `json:"rejected"`
	Errored   int `json:"errored"`
	Skipped   int `json:"skipped"`
}

func (m *StopLossMonitor) Run(ctx context.Context) {
	if m.Flags != nil && !m.Flags.IsEnabled(ctx, FeatureStopLossMonitor, true) {
		return
	}
	res, err := m.Tick(ctx)
	if err != nil {
		m.log().Warn("stop-loss tick failed", zap.Error(err))
		return
	}
	if res.Triggered+res.Rejected+res.Errored > 0 {
		m.log().Info("stop-loss tick",
			zap.Int("scanned", res.Scanned),
			zap.Int("triggered", res.Triggered),
			zap.Int("rejected", res.Rejected),
			zap.Int("errored", res.Errored),
		)
	}
}

// Tick evaluates every armed plan once, reading the armed set in pages of
// executor.batch_size.
func (m *StopLossMonitor) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	defer func() { m.Metrics.Sweep("stoploss", time.Since(start)) }()

	var res TickResult
	limit := m.Config.BatchSize
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var after *repository.PlanCursor
	for {
		plans, err := m.Store.ListArmedPlans(ctx, after, limit)
		if err != nil {
			return res, fmt.Errorf("list armed plans: %w", err)
		}
		res.Scanned += len(plans)
		for i := range plans {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			switch m.check(ctx, &plans[i]) {
			case OutcomeTriggered:
				res.Triggered++
			case OutcomeRejected:
				res.Rejected++
			case OutcomeErrored:
				res.Errored++
			case OutcomeSkipped:
				res.Skipped++
			}
		}
		if len(plans) < limit {
			break
		}
		after = repository.CursorAfter(&plans[len(plans)-1])
	}
	m.Metrics.SweepOutcome("stoploss", "triggered", res.Triggered)
	m.Metrics.SweepOutcome("stoploss", "rejected", res.Rejected)
	m.Metrics.SweepOutcome("stoploss", "errored", res.Errored)
	return res, nil
}

// check returns "" when the plan is priced but not triggered.
func (m *StopLossMonitor) check(ctx context.Context, plan *models.OrderPlan) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			m.log().Error("stop-loss check panic", zap.String("plan_id", plan.ID), zap.Any("panic", r))
			outcome = OutcomeErrored
		}
	}()
	if !plan.Armed() {
		return OutcomeSkipped
	}
	mark, err := m.Lifecycle.Oracle.Mark(ctx, plan.Symbol)
	if err != nil {
		m.log().Debug("stop-loss mark unavailable", zap.String("plan_id", plan.ID), zap.Error(err))
		return OutcomeSkipped
	}
	if !plan.StopTriggered(mark) {
		return ""
	}
	m.log().Info("stop-loss triggered",
		zap.String("plan_id", plan.ID),
		zap.String("side", string(plan.Side)),
		zap.String("mark", mark.String()),
		zap.String("sl_price", plan.SLPrice.String()),
	)
	_, outcome = m.Lifecycle.TriggerStop(ctx, plan, mark)
	return outcome
}

func (m *StopLossMonitor) log() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"hypercopy/internal/models"
	"hypercopy/internal/repository"
)

const resumePage = 500

type ResumeResult struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Errored int `json:"errored"`
}

// ResumeInflight reconciles every non-terminal plan with the broker after a
// restart, paging through the whole in-flight set. Each plan gets a
// resume_check annotation first; a failed refresh routes the plan to error.
// A failure on one plan never stops the others.
func (l *Lifecycle) ResumeInflight(ctx context.Context) (ResumeResult, error) {
	var res ResumeResult
	var after *repository.PlanCursor
	for {
		plans, err := l.Store.ListPlansByStatuses(ctx, models.InFlightStatuses(), after, resumePage)
		if err != nil {
			return res, fmt.Errorf("list in-flight plans: %w", err)
		}
		for i := range plans {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			l.resumeOne(ctx, &plans[i], &res)
		}
		if len(plans) < resumePage {
			break
		}
		after = repository.CursorAfter(&plans[len(plans)-1])
	}
	l.log().Info("resume in-flight done",
		zap.Int("checked", res.Checked),
		zap.Int("changed", res.Changed),
		zap.Int("errored", res.Errored),
	)
	return res, nil
}

func (l *Lifecycle) resumeOne(ctx context.Context, plan *models.OrderPlan, res *ResumeResult) {
	current := plan
	defer func() {
		if r := recover(); r != nil {
			l.log().Error("resume panic", zap.String("plan_id", plan.ID), zap.Any("panic", r))
			l.fail(ctx, current, fmt.Sprintf("resume: panic: %v", r))
			res.Errored++
		}
	}()
	checked, err := l.transition(ctx, plan, repository.Transition{
		To:     plan.Status,
		Event:  models.EventResumeCheck,
		Reason: "startup",
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return
		}
		l.log().Error("resume check not recorded", zap.String("plan_id", plan.ID), zap.Error(err))
		res.Errored++
		return
	}
	res.Checked++
	current = checked

	next, err := l.refresh(ctx, checked, "resume")
	switch {
	case errors.Is(err, ErrBrokerQuery):
		res.Errored++
	case err != nil:
		l.log().Warn("resume refresh failed", zap.String("plan_id", plan.ID), zap.Error(err))
		l.apply(ctx, checked, repository.Transition{
			To:           models.StatusError,
			Event:        models.EventError,
			Reason:       fmt.Sprintf("resume: %v", err),
			ReleaseClaim: true,
		})
		res.Errored++
	case next.Status != checked.Status:
		res.Changed++
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"hypercopy/internal/broker"
	"hypercopy/internal/events"
	"hypercopy/internal/metrics"
	"hypercopy/internal/models"
	"hypercopy/internal/oracle"
	"hypercopy/internal/repository"
	"hypercopy/internal/risk"
)

var (
	ErrPlanTerminal = errors.New("plan is in a terminal status")
	ErrClaimLost    = errors.New("plan is claimed by another dispatcher")
	// ErrBrokerQuery marks a refresh whose venue lookup failed. The plan has
	// already been routed to error when it is returned.
	ErrBrokerQuery = errors.New("broker query failed")
)

// Outcome classifies what a dispatch or trigger did to a plan.
type Outcome string

const (
	OutcomeSubmitted Outcome = "submitted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeErrored   Outcome = "errored"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeTriggered Outcome = "triggered"
)

// Lifecycle owns every status change of an order plan. All writes go
// through Store.Transition so each change lands with exactly one event.
type Lifecycle struct {
	Store   repository.PlanStore
	Broker  broker.Broker
	Oracle  oracle.PriceOracle
	Risk    *risk.Manager
	Events  events.Publisher
	Metrics *metrics.Recorder
	Logger  *zap.Logger

	// Owner identifies this process in claim columns.
	Owner       string
	PlanTimeout time.Duration
	Now         func() time.Time
}

func (l *Lifecycle) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Lifecycle) log() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *Lifecycle) owner() string {
	if strings.TrimSpace(l.Owner) == "" {
		return "executor"
	}
	return l.Owner
}

func (l *Lifecycle) load(ctx context.Context, id string) (*models.OrderPlan, error) {
	plan, err := l.Store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, repository.ErrNotFound
	}
	return plan, nil
}

// Submit claims a created plan and dispatches it to the broker.
func (l *Lifecycle) Submit(ctx context.Context, id string) (*models.OrderPlan, error) {
	plan, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Status.Terminal() {
		return plan, ErrPlanTerminal
	}
	if plan.Status != models.StatusCreated {
		return plan, fmt.Errorf("%w: submit from %s", models.ErrIllegalTransition, plan.Status)
	}
	claimed, err := l.Store.ClaimPlan(ctx, plan.ID, l.owner(), l.now())
	if err != nil {
		return nil, err
	}
	if !claimed {
		return plan, ErrClaimLost
	}
	plan.ClaimedBy = l.owner()
	next, _ := l.Dispatch(ctx, plan)
	return next, nil
}

// Dispatch runs the pre-trade pipeline for a claimed plan: mark, risk gate,
// broker placement. It writes exactly one event and never returns a plan
// still claimed by this process unless the write itself failed.
func (l *Lifecycle) Dispatch(ctx context.Context, plan *models.OrderPlan) (next *models.OrderPlan, outcome Outcome) {
	if l.PlanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.PlanTimeout)
		defer cancel()
	}
	next, outcome = plan, OutcomeErrored
	defer func() {
		if r := recover(); r != nil {
			l.log().Error("dispatch panic", zap.String("plan_id", plan.ID), zap.Any("panic", r))
			next, outcome = l.fail(ctx, plan, fmt.Sprintf("panic: %v", r)), OutcomeErrored
		}
	}()

	mark, err := l.Oracle.Mark(ctx, plan.Symbol)
	if err != nil {
		return l.fail(ctx, plan, fmt.Sprintf("mark: %v", err)), OutcomeErrored
	}
	in, err := l.Risk.Evaluate(ctx, plan.UserID, plan.Qty, mark, l.now())
	var rerr *risk.Error
	if errors.As(err, &rerr) {
		receipt := map[string]any{
			"risk":    in.Receipt(),
			"code":    rerr.Code,
			"details": rerr.Details,
		}
		return l.apply(ctx, plan, repository.Transition{
			To:           models.StatusError,
			Event:        models.EventReject,
			Reason:       rerr.Message,
			Receipt:      toJSON(receipt),
			ReleaseClaim: true,
		}), OutcomeRejected
	}
	if err != nil {
		return l.fail(ctx, plan, fmt.Sprintf("risk: %v", err)), OutcomeErrored
	}

	ack, err := l.place(ctx, broker.OrderRequest{
		Symbol:        plan.Symbol,
		Side:          plan.Side,
		Qty:           plan.Qty,
		TIF:           plan.TIF,
		ReduceOnly:    plan.ReduceOnly,
		ClientOrderID: plan.ID,
		LimitPx:       plan.LimitPx,
	})
	if err != nil {
		return l.fail(ctx, plan, fmt.Sprintf("broker: %v", err)), OutcomeErrored
	}
	receipt := map[string]any{"ack": ack.Detail, "risk": in.Receipt(), "broker": l.Broker.Name()}
	if !ack.Accepted() {
		return l.apply(ctx, plan, repository.Transition{
			To:           models.StatusError,
			Event:        models.EventReject,
			Reason:       rejectReason(ack),
			Receipt:      toJSON(receipt),
			ReleaseClaim: true,
		}), OutcomeRejected
	}
	notional := plan.Qty.Mul(mark)
	t := repository.Transition{
		To:           models.StatusSubmitted,
		Event:        models.EventAck,
		Receipt:      toJSON(receipt),
		Notional:     &notional,
		ReleaseClaim: true,
	}
	if ack.BrokerOrderID != "" {
		oid := ack.BrokerOrderID
		t.BrokerOrderID = &oid
	}
	next = l.apply(ctx, plan, t)
	if next.Status != models.StatusSubmitted {
		return next, OutcomeErrored
	}
	return next, OutcomeSubmitted
}

// Refresh asks the broker for the order's state and records the mapped
// status when it differs from the stored one. A failed venue lookup is
// recorded on the plan as an error transition, not returned.
func (l *Lifecycle) Refresh(ctx context.Context, id string) (*models.OrderPlan, error) {
	plan, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := l.refresh(ctx, plan, "refresh")
	if errors.Is(err, ErrBrokerQuery) {
		return next, nil
	}
	return next, err
}

// refresh prefixes the error reason with origin when the venue lookup fails.
func (l *Lifecycle) refresh(ctx context.Context, plan *models.OrderPlan, origin string) (*models.OrderPlan, error) {
	if plan.Status.Terminal() {
		return plan, nil
	}
	req := broker.QueryRequest{Symbol: plan.Symbol, ClientOrderID: plan.ID}
	if plan.BrokerOrderID != nil {
		req.BrokerOrderID = *plan.BrokerOrderID
	}
	start := time.Now()
	state, err := l.Broker.Query(ctx, req)
	l.Metrics.BrokerCall(l.Broker.Name(), "query", resultLabel(err), time.Since(start))
	if err != nil {
		l.log().Warn("broker query failed", zap.String("plan_id", plan.ID), zap.String("origin", origin), zap.Error(err))
		next := l.fail(ctx, plan, fmt.Sprintf("%s: broker query: %v", origin, err))
		return next, fmt.Errorf("%w: %v", ErrBrokerQuery, err)
	}

	to, ok := venueToStatus(state.Status)
	if !ok {
		if plan.Status == models.StatusCreated && plan.ClaimedBy != "" {
			if err := l.Store.ReleaseClaim(ctx, plan.ID, plan.ClaimedBy); err != nil {
				return plan, err
			}
			l.log().Info("released claim on plan unknown to venue", zap.String("plan_id", plan.ID), zap.String("owner", plan.ClaimedBy))
			plan.ClaimedBy = ""
			plan.ClaimedAt = nil
		}
		return plan, nil
	}
	if to == plan.Status {
		return plan, nil
	}
	if !models.CanTransition(plan.Status, to) {
		l.log().Warn("venue status not applicable",
			zap.String("plan_id", plan.ID),
			zap.String("status", string(plan.Status)),
			zap.String("venue_status", string(state.Status)),
		)
		return plan, nil
	}

	t := repository.Transition{
		To:      to,
		Event:   refreshEvent(to),
		Reason:  "venue status " + string(state.Status),
		Receipt: toJSON(map[string]any{"venue_status": state.Status, "filled_qty": state.FilledQty.String(), "detail": state.Detail}),
	}
	if plan.Status == models.StatusCreated {
		t.ReleaseClaim = true
		if mark, err := l.Oracle.Mark(ctx, plan.Symbol); err == nil {
			notional := plan.Qty.Mul(mark)
			t.Notional = &notional
		}
	}
	if plan.BrokerOrderID == nil && state.BrokerOrderID != "" {
		oid := state.BrokerOrderID
		t.BrokerOrderID = &oid
	}
	next, err := l.transition(ctx, plan, t)
	if err != nil {
		return plan, err
	}
	return next, nil
}

// Cancel moves an in-flight plan to canceled. The broker is only asked when
// the order may have reached the venue; a failed broker call routes the
// plan to error instead.
func (l *Lifecycle) Cancel(ctx context.Context, id, reason string) (*models.OrderPlan, error) {
	plan, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Status.Terminal() {
		return plan, ErrPlanTerminal
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "user_cancel"
	}

	var receipt map[string]any
	if plan.Status != models.StatusCreated || plan.ClaimedBy != "" {
		req := broker.CancelRequest{Symbol: plan.Symbol, ClientOrderID: plan.ID}
		if plan.BrokerOrderID != nil {
			req.BrokerOrderID = *plan.BrokerOrderID
		}
		start := time.Now()
		res, err := l.Broker.Cancel(ctx, req)
		l.Metrics.BrokerCall(l.Broker.Name(), "cancel", resultLabel(err), time.Since(start))
		if err != nil {
			return l.transition(ctx, plan, repository.Transition{
				To:           models.StatusError,
				Event:        models.EventError,
				Reason:       fmt.Sprintf("cancel: %v", err),
				ReleaseClaim: true,
			})
		}
		receipt = map[string]any{"canceled": res.Canceled, "detail": res.Detail}
	}
	return l.transition(ctx, plan, repository.Transition{
		To:           models.StatusCanceled,
		Event:        models.EventCancel,
		Reason:       reason,
		Receipt:      toJSON(receipt),
		ReleaseClaim: true,
	})
}

// TriggerStop closes an armed plan's position with a reduce-only IOC order
// on the opposite side. The caller has already checked the trigger.
func (l *Lifecycle) TriggerStop(ctx context.Context, plan *models.OrderPlan, mark decimal.Decimal) (next *models.OrderPlan, outcome Outcome) {
	next, outcome = plan, OutcomeErrored
	defer func() {
		if r := recover(); r != nil {
			l.log().Error("stop-loss panic", zap.String("plan_id", plan.ID), zap.Any("panic", r))
			next, outcome = l.fail(ctx, plan, fmt.Sprintf("panic: %v", r)), OutcomeErrored
		}
	}()

	ack, err := l.place(ctx, broker.OrderRequest{
		Symbol:        plan.Symbol,
		Side:          plan.Side.Opposite(),
		Qty:           plan.Qty,
		TIF:           "IOC",
		ReduceOnly:    true,
		ClientOrderID: plan.ID + "-sl",
	})
	if err != nil {
		return l.fail(ctx, plan, fmt.Sprintf("stop-loss broker: %v", err)), OutcomeErrored
	}
	receipt := map[string]any{"ack": ack.Detail, "mark": mark.String()}
	if plan.SLPrice != nil {
		receipt["sl_price"] = plan.SLPrice.String()
	}
	if !ack.Accepted() {
		return l.apply(ctx, plan, repository.Transition{
			To:      models.StatusError,
			Event:   models.EventReject,
			Reason:  "stop-loss close rejected: " + rejectReason(ack),
			Receipt: toJSON(receipt),
		}), OutcomeRejected
	}
	receipt["broker_order_id"] = ack.BrokerOrderID
	next = l.apply(ctx, plan, repository.Transition{
		To:      models.StatusFilled,
		Event:   models.EventSLTrigger,
		Reason:  fmt.Sprintf("mark %s crossed stop %v", mark.String(), receipt["sl_price"]),
		Receipt: toJSON(receipt),
	})
	if next.Status != models.StatusFilled {
		return next, OutcomeErrored
	}
	return next, OutcomeTriggered
}

func (l *Lifecycle) place(ctx context.Context, req broker.OrderRequest) (*broker.Ack, error) {
	start := time.Now()
	ack, err := l.Broker.PlaceMarket(ctx, req)
	result := resultLabel(err)
	if err == nil && !ack.Accepted() {
		result = "rejected"
	}
	l.Metrics.BrokerCall(l.Broker.Name(), "place", result, time.Since(start))
	if err == nil && ack == nil {
		return nil, errors.New("broker returned no ack")
	}
	return ack, err
}

// fail routes a plan to error with reason. When the write itself fails the
// stored plan is returned unchanged.
func (l *Lifecycle) fail(ctx context.Context, plan *models.OrderPlan, reason string) *models.OrderPlan {
	return l.apply(ctx, plan, repository.Transition{
		To:           models.StatusError,
		Event:        models.EventError,
		Reason:       reason,
		ReleaseClaim: true,
	})
}

// apply is transition for callers that cannot surface the error. Failures
// are logged; a concurrent change wins.
func (l *Lifecycle) apply(ctx context.Context, plan *models.OrderPlan, t repository.Transition) *models.OrderPlan {
	next, err := l.transition(context.WithoutCancel(ctx), plan, t)
	if err != nil {
		level := l.log().Error
		if errors.Is(err, repository.ErrStatusConflict) {
			level = l.log().Warn
		}
		level("transition not recorded",
			zap.String("plan_id", plan.ID),
			zap.String("from", string(plan.Status)),
			zap.String("to", string(t.To)),
			zap.String("event", string(t.Event)),
			zap.String("reason", t.Reason),
			zap.Error(err),
		)
		return plan
	}
	return next
}

func (l *Lifecycle) transition(ctx context.Context, plan *models.OrderPlan, t repository.Transition) (*models.OrderPlan, error) {
	t.PlanID = plan.ID
	t.From = plan.Status
	if t.At.IsZero() {
		t.At = l.now()
	}
	next, ev, err := l.Store.Transition(ctx, t)
	if err != nil {
		return plan, err
	}
	l.Metrics.Transition(string(ev.FromStatus), string(ev.ToStatus), string(ev.Event))
	l.log().Info("plan transition",
		zap.String("plan_id", next.ID),
		zap.String("from", string(ev.FromStatus)),
		zap.String("to", string(ev.ToStatus)),
		zap.String("event", string(ev.Event)),
		zap.String("reason", ev.Reason),
	)
	if l.Events != nil {
		l.Events.Publish(ctx, events.NewEnvelope(next, ev))
	}
	return next, nil
}

func venueToStatus(s broker.VenueStatus) (models.PlanStatus, bool) {
	switch s {
	case broker.VenueOpen:
		return models.StatusSubmitted, true
	case broker.VenuePartiallyFilled:
		return models.StatusPartiallyFilled, true
	case broker.VenueFilled:
		return models.StatusFilled, true
	case broker.VenueCanceled:
		return models.StatusCanceled, true
	case broker.VenueRejected:
		return models.StatusError, true
	}
	return "", false
}

func refreshEvent(to models.PlanStatus) models.EventKind {
	switch to {
	case models.StatusSubmitted:
		return models.EventAck
	case models.StatusPartiallyFilled, models.StatusFilled:
		return models.EventFill
	case models.StatusCanceled:
		return models.EventCancel
	}
	return models.EventReject
}

func rejectReason(ack *broker.Ack) string {
	if ack != nil {
		if r, ok := ack.Detail["reason"].(string); ok && strings.TrimSpace(r) != "" {
			return r
		}
	}
	return "rejected by broker"
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func toJSON(v map[string]any) datatypes.JSON {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

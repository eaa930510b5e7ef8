// Package events fans committed exec events out to external sinks. Delivery
// is best effort: a sink failure is logged and never reaches the caller.
package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"hypercopy/internal/metrics"
	"hypercopy/internal/models"
)

// Envelope is one exec event with enough of its plan to route it.
type Envelope struct {
	PlanID  string            `json:"plan_id"`
	UserID  string            `json:"user_id"`
	Symbol  string            `json:"symbol"`
	Side    models.Side       `json:"side"`
	Source  models.Source     `json:"source"`
	Status  models.PlanStatus `json:"status"`
	Event   models.ExecEvent  `json:"event"`
	Emitted time.Time         `json:"emitted_at"`
}

func NewEnvelope(plan *models.OrderPlan, ev *models.ExecEvent) Envelope {
	env := Envelope{Emitted: time.Now().UTC()}
	if plan != nil {
		env.PlanID = plan.ID
		env.UserID = plan.UserID
		env.Symbol = plan.Symbol
		env.Side = plan.Side
		env.Source = plan.Source
		env.Status = plan.Status
	}
	if ev != nil {
		env.Event = *ev
		env.PlanID = ev.PlanID
	}
	return env
}

type Sink interface {
	Name() string
	Send(ctx context.Context, env Envelope) error
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope)
}

// Multi delivers to every sink with a per-sink timeout.
type Multi struct {
	Sinks   []Sink
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

func (m *Multi) Publish(ctx context.Context, env Envelope) {
	if m == nil || len(m.Sinks) == 0 {
		return
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	for _, s := range m.Sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		err := s.Send(sctx, env)
		cancel()
		if err == nil {
			continue
		}
		m.Metrics.SinkFailure(s.Name())
		if m.Logger != nil {
			m.Logger.Warn("exec event sink failed",
				zap.String("sink", s.Name()),
				zap.String("plan_id", env.PlanID),
				zap.String("event", string(env.Event.Event)),
				zap.Error(err),
			)
		}
	}
}

// Close releases sinks that hold connections.
func (m *Multi) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Envelope) {}

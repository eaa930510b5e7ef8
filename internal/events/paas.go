package events

import (
	"context"

	"hypercopy/internal/models"
	"hypercopy/internal/paas"
)

// PaaSLog records exec events in the gateway's log stream. Rejections and
// errors are logged at warn/error level.
type PaaSLog struct {
	Client *paas.Client
}

func (p *PaaSLog) Name() string { return "paas" }

func (p *PaaSLog) Send(ctx context.Context, env Envelope) error {
	level := "info"
	switch env.Event.Event {
	case models.EventReject:
		level = "warn"
	case models.EventError:
		level = "error"
	}
	return p.Client.CreateLog(ctx, paas.LogEntry{
		Action: "exec_event",
		Level:  level,
		Details: map[string]any{
			"plan_id": env.PlanID,
			"user_id": env.UserID,
			"symbol":  env.Symbol,
			"event":   env.Event.Event,
			"from":    env.Event.FromStatus,
			"to":      env.Event.ToStatus,
			"reason":  env.Event.Reason,
			"at":      env.Event.At,
		},
		SessionKey: env.PlanID,
	})
}

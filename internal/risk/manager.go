package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hypercopy/internal/config"
	"hypercopy/internal/repository"
)

// Manager gathers the inputs the gate needs: configured limits and the
// user's notional already used today.
type Manager struct {
	Config config.RiskConfig
	Store  repository.PlanStore
	Logger *zap.Logger
}

// DailyLimit resolves the user's limit; a per-user override wins over the
// global value and zero means unlimited.
func (m *Manager) DailyLimit(userID string) *decimal.Decimal {
	if m == nil {
		return nil
	}
	limit := m.Config.DailyLimitUSD
	if v, ok := m.Config.UserDailyLimits[strings.ToLower(strings.TrimSpace(userID))]; ok {
		limit = v
	}
	if limit <= 0 {
		return nil
	}
	d := decimal.NewFromFloat(limit)
	return &d
}

func (m *Manager) DayUsed(ctx context.Context, userID string, now time.Time) (decimal.Decimal, error) {
	if m == nil || m.Store == nil {
		return decimal.Zero, nil
	}
	used, err := m.Store.SumNotionalSince(ctx, userID, StartOfDay(now))
	if err != nil {
		return decimal.Zero, fmt.Errorf("day used notional: %w", err)
	}
	return used, nil
}

// Evaluate builds the gate input for one order and runs Check. The input is
// returned for the audit receipt even when the check fails.
func (m *Manager) Evaluate(ctx context.Context, userID string, qty, mark decimal.Decimal, now time.Time) (Input, error) {
	in := Input{Qty: qty, MarkPrice: mark}
	if m != nil {
		in.MaxSlippageBps = m.Config.MaxSlippageBps
	}
	in.DailyLimit = m.DailyLimit(userID)
	if in.DailyLimit != nil {
		used, err := m.DayUsed(ctx, userID, now)
		if err != nil {
			return in, err
		}
		in.DayUsedNotional = used
	}
	if err := Check(in); err != nil {
		if m != nil && m.Logger != nil {
			m.Logger.Info("risk: order rejected",
				zap.String("user_id", userID),
				zap.String("qty", qty.String()),
				zap.String("mark", mark.String()),
				zap.Error(err),
			)
		}
		return in, err
	}
	return in, nil
}

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Receipt renders the gate input for an audit event.
func (in Input) Receipt() map[string]any {
	out := map[string]any{
		"qty":              in.Qty.String(),
		"mark":             in.MarkPrice.String(),
		"day_used":         in.DayUsedNotional.String(),
		"max_slippage_bps": in.MaxSlippageBps,
	}
	if in.DailyLimit != nil {
		out["daily_limit"] = in.DailyLimit.String()
	}
	return out
}

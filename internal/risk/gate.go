package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	CodeInvalidQty  = "invalid_qty"
	CodeInvalidMark = "invalid_mark"
	CodeDailyLimit  = "daily_limit_exceeded"
)

// Error is a pre-trade rejection. Its message becomes the plan's reason.
type Error struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// Input is everything the gate looks at. DailyLimit nil means no limit.
type Input struct {
	Qty             decimal.Decimal
	MarkPrice       decimal.Decimal
	DayUsedNotional decimal.Decimal
	DailyLimit      *decimal.Decimal
	// TODO: enforce MaxSlippageBps once the broker ack exposes a reference
	// price to compare fills against; it is recorded but not checked.
	MaxSlippageBps int
}

// Check is the pre-trade gate. It performs no I/O and returns a *Error when
// the order must not reach the broker.
func Check(in Input) error {
	if !in.Qty.IsPositive() {
		return &Error{
			Code:    CodeInvalidQty,
			Message: fmt.Sprintf("qty must be positive, got %s", in.Qty.String()),
			Details: map[string]any{"qty": in.Qty.String()},
		}
	}
	if !in.MarkPrice.IsPositive() {
		return &Error{
			Code:    CodeInvalidMark,
			Message: fmt.Sprintf("mark price must be positive, got %s", in.MarkPrice.String()),
			Details: map[string]any{"mark": in.MarkPrice.String()},
		}
	}
	if in.DailyLimit != nil {
		projected := in.DayUsedNotional.Add(in.Qty.Mul(in.MarkPrice))
		if projected.GreaterThan(*in.DailyLimit) {
			return &Error{
				Code: CodeDailyLimit,
				Message: fmt.Sprintf("daily notional limit exceeded: used %s + order %s > limit %s",
					in.DayUsedNotional.StringFixed(2),
					in.Qty.Mul(in.MarkPrice).StringFixed(2),
					in.DailyLimit.StringFixed(2)),
				Details: map[string]any{
					"day_used":  in.DayUsedNotional.String(),
					"order":     in.Qty.Mul(in.MarkPrice).String(),
					"projected": projected.String(),
					"limit":     in.DailyLimit.String(),
				},
			}
		}
	}
	return nil
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side that reduces a position opened on s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type Source string

const (
	SourceManual      Source = "manual"
	SourceAutoFollow  Source = "auto_follow"
	SourceAutoCounter Source = "auto_counter"
)

func (s Source) Valid() bool {
	switch s {
	case SourceManual, SourceAutoFollow, SourceAutoCounter:
		return true
	}
	return false
}

// OrderPlan is one desired order and its lifecycle. The ID doubles as the
// broker client order id.
type OrderPlan struct {
	ID        string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID    string `gorm:"type:varchar(128);not null;index:idx_order_plans_user_signal,priority:1;index:idx_order_plans_user_created,priority:1" json:"user_id"`
	Source    Source `gorm:"type:varchar(20);not null;index:idx_order_plans_user_signal,priority:3" json:"source"`
	SignalRef string `gorm:"type:varchar(128);not null;default:'';index:idx_order_plans_user_signal,priority:2" json:"signal_ref"`

	Symbol     string           `gorm:"type:varchar(32);not null;index" json:"symbol"`
	Side       Side             `gorm:"type:varchar(8);not null" json:"side"`
	Qty        decimal.Decimal  `gorm:"type:numeric(30,12);not null" json:"qty"`
	LimitPx    *decimal.Decimal `gorm:"type:numeric(30,10)" json:"limit_px,omitempty"`
	TIF        string           `gorm:"type:varchar(8);not null;default:'IOC'" json:"tif"`
	ReduceOnly bool             `gorm:"not null;default:false" json:"reduce_only"`
	SLPrice    *decimal.Decimal `gorm:"type:numeric(30,10)" json:"sl_price,omitempty"`
	Leverage   *decimal.Decimal `gorm:"type:numeric(10,4)" json:"leverage,omitempty"`

	Status         PlanStatus       `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`
	IdempotencyKey string           `gorm:"type:varchar(64);not null;uniqueIndex" json:"idempotency_key"`
	BrokerOrderID  *string          `gorm:"type:varchar(128)" json:"broker_order_id,omitempty"`
	Notional       *decimal.Decimal `gorm:"type:numeric(30,10)" json:"notional,omitempty"`

	ClaimedBy string     `gorm:"type:varchar(64);not null;default:''" json:"-"`
	ClaimedAt *time.Time `json:"-"`

	Meta datatypes.JSON `json:"meta,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_order_plans_user_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Events []ExecEvent `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE" json:"-"`
}

func (OrderPlan) TableName() string {
	return "order_plans"
}

// Armed reports whether the stop-loss monitor should watch the plan.
func (p OrderPlan) Armed() bool {
	return p.SLPrice != nil && (p.Status == StatusSubmitted || p.Status == StatusPartiallyFilled)
}

// StopTriggered applies the stop rule: longs stop out at or below the stop
// price, shorts at or above it.
func (p OrderPlan) StopTriggered(mark decimal.Decimal) bool {
	if p.SLPrice == nil {
		return false
	}
	if p.Side == SideBuy {
		return mark.LessThanOrEqual(*p.SLPrice)
	}
	return mark.GreaterThanOrEqual(*p.SLPrice)
}

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"hypercopy/internal/cache"
	"hypercopy/internal/oracle"
)

const simOrderTTL = 7 * 24 * time.Hour

// Sim fills every order immediately at the oracle mark. Orders are kept in
// a cache so Query still answers after a restart when the cache is Redis.
type Sim struct {
	Oracle oracle.PriceOracle
	Orders cache.Store
}

var _ Broker = (*Sim)(nil)

type simOrder struct {
	BrokerOrderID string          `json:"broker_order_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Qty           decimal.Decimal `json:"qty"`
	Px            decimal.Decimal `json:"px"`
	ReduceOnly    bool            `json:"reduce_only"`
	Canceled      bool            `json:"canceled"`
}

func NewSim(o oracle.PriceOracle, orders cache.Store) *Sim {
	if orders == nil {
		orders = cache.NewMemoryStore()
	}
	return &Sim{Oracle: o, Orders: cache.Prefixed{Store: orders, Prefix: "sim:order:"}}
}

func (s *Sim) Name() string { return "sim" }

func (s *Sim) PlaceMarket(ctx context.Context, req OrderRequest) (*Ack, error) {
	if !req.Qty.IsPositive() {
		return rejected("qty must be positive", nil), nil
	}
	px, err := s.Oracle.Mark(ctx, req.Symbol)
	if err != nil {
		return rejected(fmt.Sprintf("no mark: %v", err), nil), nil
	}
	order := simOrder{
		BrokerOrderID: "sim-" + req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Qty:           req.Qty,
		Px:            px,
		ReduceOnly:    req.ReduceOnly,
	}
	if err := s.save(ctx, req.ClientOrderID, order); err != nil {
		return nil, err
	}
	return &Ack{
		Status:        AckAccepted,
		BrokerOrderID: order.BrokerOrderID,
		Detail: map[string]any{
			"px":          px.String(),
			"qty":         req.Qty.String(),
			"side":        string(req.Side),
			"reduce_only": req.ReduceOnly,
			"sim":         true,
		},
	}, nil
}

func (s *Sim) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	order, ok, err := s.load(ctx, req.ClientOrderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &CancelResult{Canceled: true, Detail: map[string]any{"sim": true, "known": false}}, nil
	}
	order.Canceled = true
	if err := s.save(ctx, req.ClientOrderID, order); err != nil {
		return nil, err
	}
	return &CancelResult{Canceled: true, Detail: map[string]any{"sim": true, "broker_order_id": order.BrokerOrderID}}, nil
}

// Query reports entry orders as open: the simulated position stays live
// until a reduce-only order closes it.
func (s *Sim) Query(ctx context.Context, req QueryRequest) (*OrderState, error) {
	order, ok, err := s.load(ctx, req.ClientOrderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &OrderState{Status: VenueUnknown}, nil
	}
	state := &OrderState{
		Status:        VenueOpen,
		BrokerOrderID: order.BrokerOrderID,
		FilledQty:     order.Qty,
		Detail:        map[string]any{"px": order.Px.String(), "sim": true},
	}
	switch {
	case order.Canceled:
		state.Status = VenueCanceled
	case order.ReduceOnly:
		state.Status = VenueFilled
	}
	return state, nil
}

func (s *Sim) save(ctx context.Context, cid string, order simOrder) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	if err := s.Orders.Set(ctx, cid, raw, simOrderTTL); err != nil {
		return fmt.Errorf("sim order store: %w", err)
	}
	return nil
}

func (s *Sim) load(ctx context.Context, cid string) (simOrder, bool, error) {
	raw, ok, err := s.Orders.Get(ctx, cid)
	if err != nil {
		return simOrder{}, false, fmt.Errorf("sim order store: %w", err)
	}
	if !ok {
		return simOrder{}, false, nil
	}
	var order simOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return simOrder{}, false, fmt.Errorf("decode sim order: %w", err)
	}
	return order, true, nil
}

package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	gohl "github.com/sonirico/go-hyperliquid"

	"hypercopy/internal/client/hyperliquid"
	"hypercopy/internal/intent"
	"hypercopy/internal/models"
	"hypercopy/internal/oracle"
)

type HyperliquidOptions struct {
	AccountAddress string
	BuilderAddress string
	BuilderFeeBps  int
	SlippageBps    int
}

// Hyperliquid sends IOC limit orders priced through the mark so they behave
// as market orders with bounded slippage.
type Hyperliquid struct {
	Client *hyperliquid.Client
	Trader *hyperliquid.Trader
	Oracle oracle.PriceOracle
	Opts   HyperliquidOptions
}

var _ Broker = (*Hyperliquid)(nil)

func (h *Hyperliquid) Name() string { return "hyperliquid" }

func (h *Hyperliquid) PlaceMarket(ctx context.Context, req OrderRequest) (*Ack, error) {
	coin := intent.BaseAsset(req.Symbol)
	asset, err := h.Client.Asset(ctx, coin)
	if err != nil {
		if errors.Is(err, hyperliquid.ErrUnknownAsset) {
			return rejected(err.Error(), map[string]any{"coin": coin}), nil
		}
		return nil, fmt.Errorf("resolve asset: %w", err)
	}

	ref := decimal.Zero
	if req.LimitPx != nil && req.LimitPx.IsPositive() {
		ref = *req.LimitPx
	} else {
		ref, err = h.Oracle.Mark(ctx, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("mark for %s: %w", req.Symbol, err)
		}
	}
	px := hyperliquid.RoundPrice(h.slippagePrice(ref, req.Side), asset.SzDecimals)
	sz := hyperliquid.RoundSize(req.Qty, asset.SzDecimals)
	detail := map[string]any{
		"coin":        coin,
		"px":          hyperliquid.FloatToWire(px),
		"sz":          hyperliquid.FloatToWire(sz),
		"side":        string(req.Side),
		"reduce_only": req.ReduceOnly,
	}
	if !sz.IsPositive() {
		return rejected("size rounds to zero", detail), nil
	}
	if !px.IsPositive() {
		return rejected("price rounds to zero", detail), nil
	}

	cloid := hyperliquid.Cloid(req.ClientOrderID)
	detail["cloid"] = cloid
	action := hyperliquid.OrderAction{
		Type: "order",
		Orders: []hyperliquid.OrderWire{{
			Asset:      asset.Index,
			IsBuy:      req.Side == models.SideBuy,
			LimitPx:    hyperliquid.FloatToWire(px),
			Size:       hyperliquid.FloatToWire(sz),
			ReduceOnly: req.ReduceOnly,
			OrderType:  hyperliquid.OrderTypeWire{Limit: &hyperliquid.LimitOrderType{TIF: wireTIF(req.TIF)}},
			Cloid:      cloid,
		}},
		Grouping: "na",
	}
	if b := strings.TrimSpace(h.Opts.BuilderAddress); b != "" && h.Opts.BuilderFeeBps > 0 {
		action.Builder = &hyperliquid.BuilderInfo{Builder: strings.ToLower(b), Fee: h.Opts.BuilderFeeBps * 10}
	}

	resp, err := h.Trader.PlaceOrders(ctx, action)
	if err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return rejected(resp.ErrorMessage(), detail), nil
	}
	statuses, err := resp.Statuses()
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("exchange returned no order status")
	}
	st := statuses[0]
	switch {
	case st.Error != "":
		return rejected(st.Error, detail), nil
	case st.Filled != nil:
		detail["filled_sz"] = st.Filled.TotalSz
		detail["avg_px"] = st.Filled.AvgPx
		return &Ack{Status: AckAccepted, BrokerOrderID: strconv.FormatInt(st.Filled.Oid, 10), Detail: detail}, nil
	case st.Resting != nil:
		detail["resting"] = true
		return &Ack{Status: AckAccepted, BrokerOrderID: strconv.FormatInt(st.Resting.Oid, 10), Detail: detail}, nil
	}
	return nil, fmt.Errorf("unrecognized order status in exchange response")
}

// Cancel reports a venue refusal in the result; only failures to reach
// the venue are errors.
func (h *Hyperliquid) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	cancel := gohl.CancelOrderRequestByCloid{
		Coin:  intent.BaseAsset(req.Symbol),
		Cloid: hyperliquid.Cloid(req.ClientOrderID),
	}
	resp, err := h.Trader.CancelByCloid(ctx, cancel)
	if err != nil {
		return nil, err
	}
	detail := map[string]any{"cloid": cancel.Cloid, "coin": cancel.Coin}
	if resp.Status != "ok" {
		detail["error"] = resp.ErrorMessage()
		return &CancelResult{Canceled: false, Detail: detail}, nil
	}
	statuses, err := resp.Statuses()
	if err != nil {
		return nil, err
	}
	if len(statuses) > 0 && statuses[0].Error != "" {
		detail["error"] = statuses[0].Error
		return &CancelResult{Canceled: false, Detail: detail}, nil
	}
	return &CancelResult{Canceled: true, Detail: detail}, nil
}

func (h *Hyperliquid) Query(ctx context.Context, req QueryRequest) (*OrderState, error) {
	cloid := hyperliquid.Cloid(req.ClientOrderID)
	resp, err := h.Client.OrderStatus(ctx, h.Opts.AccountAddress, cloid)
	if err != nil {
		return nil, err
	}
	if resp.Status != "order" || resp.Order == nil {
		return &OrderState{Status: VenueUnknown, Detail: map[string]any{"cloid": cloid, "status": resp.Status}}, nil
	}
	o := resp.Order.Order
	sz, err := decimal.NewFromString(o.Sz)
	if err != nil {
		return nil, fmt.Errorf("order status %s: malformed sz %q: %w", cloid, o.Sz, err)
	}
	orig, err := decimal.NewFromString(o.OrigSz)
	if err != nil {
		return nil, fmt.Errorf("order status %s: malformed origSz %q: %w", cloid, o.OrigSz, err)
	}
	state := &OrderState{
		Status:        mapVenueStatus(resp.Order.Status, sz, orig),
		BrokerOrderID: strconv.FormatInt(int64(o.Oid), 10),
		FilledQty:     orig.Sub(sz),
		Detail: map[string]any{
			"cloid":        cloid,
			"venue_status": string(resp.Order.Status),
			"sz":           o.Sz,
			"orig_sz":      o.OrigSz,
		},
	}
	return state, nil
}

func (h *Hyperliquid) slippagePrice(mark decimal.Decimal, side models.Side) decimal.Decimal {
	slip := decimal.New(int64(h.Opts.SlippageBps), -4)
	if side == models.SideBuy {
		return mark.Mul(decimal.NewFromInt(1).Add(slip))
	}
	return mark.Mul(decimal.NewFromInt(1).Sub(slip))
}

func mapVenueStatus(status gohl.OrderStatusValue, sz, orig decimal.Decimal) VenueStatus {
	s := gohl.OrderStatusValue(strings.TrimSpace(string(status)))
	switch {
	case s == gohl.OrderStatusValueOpen || s == gohl.OrderStatusValueTriggered:
		if orig.IsPositive() && sz.LessThan(orig) {
			return VenuePartiallyFilled
		}
		return VenueOpen
	case s == gohl.OrderStatusValueFilled:
		return VenueFilled
	// marginCanceled, selfTradeCanceled and the other venue-initiated cancels
	case s == gohl.OrderStatusValueCanceled || strings.HasSuffix(string(s), "Canceled"):
		return VenueCanceled
	case s == gohl.OrderStatusValueRejected || strings.HasSuffix(string(s), "Rejected"):
		return VenueRejected
	}
	return VenueUnknown
}

func wireTIF(tif string) string {
	switch strings.ToUpper(strings.TrimSpace(tif)) {
	case "GTC":
		return "Gtc"
	case "ALO":
		return "Alo"
	}
	return "Ioc"
}

package hyperliquid

import (
	"encoding/json"
	"fmt"
	"strings"

	gohl "github.com/sonirico/go-hyperliquid"
)

// Field order and msgpack tags follow the exchange's canonical action
// encoding; the action hash depends on them.

type OrderWire struct {
	Asset      int           `json:"a" msgpack:"a"`
	IsBuy      bool          `json:"b" msgpack:"b"`
	LimitPx    string        `json:"p" msgpack:"p"`
	Size       string        `json:"s" msgpack:"s"`
	ReduceOnly bool          `json:"r" msgpack:"r"`
	OrderType  OrderTypeWire `json:"t" msgpack:"t"`
	Cloid      string        `json:"c,omitempty" msgpack:"c,omitempty"`
}

type OrderTypeWire struct {
	Limit *LimitOrderType `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

type LimitOrderType struct {
	TIF string `json:"tif" msgpack:"tif"`
}

type BuilderInfo struct {
	Builder string `json:"b" msgpack:"b"`
	// Fee is in tenths of a basis point.
	Fee int `json:"f" msgpack:"f"`
}

type OrderAction struct {
	Type     string       `json:"type" msgpack:"type"`
	Orders   []OrderWire  `json:"orders" msgpack:"orders"`
	Grouping string       `json:"grouping" msgpack:"grouping"`
	Builder  *BuilderInfo `json:"builder,omitempty" msgpack:"builder,omitempty"`
}

type CancelByCloidWire struct {
	Asset int    `json:"asset" msgpack:"asset"`
	Cloid string `json:"cloid" msgpack:"cloid"`
}

type CancelByCloidAction struct {
	Type    string              `json:"type" msgpack:"type"`
	Cancels []CancelByCloidWire `json:"cancels" msgpack:"cancels"`
}

type ApproveBuilderFeeAction struct {
	Type             string `json:"type"`
	HyperliquidChain string `json:"hyperliquidChain"`
	SignatureChainID string `json:"signatureChainId"`
	MaxFeeRate       string `json:"maxFeeRate"`
	Builder          string `json:"builder"`
	Nonce            uint64 `json:"nonce"`
}

type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V byte   `json:"v"`
}

type exchangeRequest struct {
	Action       any       `json:"action"`
	Nonce        uint64    `json:"nonce"`
	Signature    Signature `json:"signature"`
	VaultAddress *string   `json:"vaultAddress"`
}

// ExchangeResponse is the envelope of every /exchange reply. On "err" the
// response field is a plain string.
type ExchangeResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type OrderResult struct {
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Filled *struct {
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		Oid     int64  `json:"oid"`
	} `json:"filled,omitempty"`
	Error string `json:"error,omitempty"`
}

// ErrorMessage returns the rejection text of an "err" envelope.
func (r *ExchangeResponse) ErrorMessage() string {
	if r == nil || r.Status == "ok" {
		return ""
	}
	var msg string
	if err := json.Unmarshal(r.Response, &msg); err == nil {
		return msg
	}
	return strings.TrimSpace(string(r.Response))
}

// Statuses decodes per-order results of an order or cancel action. Cancel
// results are either the string "success" or {"error": "..."}.
func (r *ExchangeResponse) Statuses() ([]OrderResult, error) {
	if r == nil || r.Status != "ok" {
		return nil, fmt.Errorf("exchange status %q", statusOf(r))
	}
	var body struct {
		Type string `json:"type"`
		Data struct {
			Statuses []json.RawMessage `json:"statuses"`
		} `json:"data"`
	}
	if err := json.Unmarshal(r.Response, &body); err != nil {
		return nil, fmt.Errorf("decode exchange response: %w", err)
	}
	out := make([]OrderResult, 0, len(body.Data.Statuses))
	for _, raw := range body.Data.Statuses {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "success" {
				out = append(out, OrderResult{Error: s})
			} else {
				out = append(out, OrderResult{})
			}
			continue
		}
		var res OrderResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("decode order status: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}

func statusOf(r *ExchangeResponse) string {
	if r == nil {
		return ""
	}
	return r.Status
}

type OrderStatusResponse struct {
	// Status is "order" when found, "unknownOid" otherwise.
	Status string        `json:"status"`
	Order  *gohl.WsOrder `json:"order,omitempty"`
}

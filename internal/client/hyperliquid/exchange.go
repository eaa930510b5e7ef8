package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	gohl "github.com/sonirico/go-hyperliquid"
)

// Trader sends signed actions to /exchange on behalf of one account.
type Trader struct {
	Client  *Client
	Signer  *Signer
	Vault   string
	Mainnet bool

	mu        sync.Mutex
	lastNonce uint64
}

// nonce is a millisecond timestamp, strictly increasing per trader.
func (t *Trader) nonce() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := uint64(time.Now().UnixMilli())
	if n <= t.lastNonce {
		n = t.lastNonce + 1
	}
	t.lastNonce = n
	return n
}

func (t *Trader) PlaceOrders(ctx context.Context, action OrderAction) (*ExchangeResponse, error) {
	if action.Type == "" {
		action.Type = "order"
	}
	if action.Grouping == "" {
		action.Grouping = "na"
	}
	return t.sendL1(ctx, action)
}

// CancelByCloid resolves the request's coin to its asset index and cancels
// the order carrying that client order id.
func (t *Trader) CancelByCloid(ctx context.Context, req gohl.CancelOrderRequestByCloid) (*ExchangeResponse, error) {
	asset, err := t.Client.Asset(ctx, req.Coin)
	if err != nil {
		return nil, fmt.Errorf("resolve asset: %w", err)
	}
	return t.sendL1(ctx, CancelByCloidAction{
		Type:    "cancelByCloid",
		Cancels: []CancelByCloidWire{{Asset: asset.Index, Cloid: req.Cloid}},
	})
}

// ApproveBuilderFee authorizes builder to charge up to maxFeeBps on orders.
// It must be signed by the account's own key, not an API wallet.
func (t *Trader) ApproveBuilderFee(ctx context.Context, builder string, maxFeeBps int) (*ExchangeResponse, error) {
	if t == nil || t.Signer == nil {
		return nil, fmt.Errorf("trader has no signer")
	}
	chain := "Testnet"
	if t.Mainnet {
		chain = "Mainnet"
	}
	action := ApproveBuilderFeeAction{
		Type:             "approveBuilderFee",
		HyperliquidChain: chain,
		SignatureChainID: userSignedChainHex,
		MaxFeeRate:       decimal.New(int64(maxFeeBps), -2).String() + "%",
		Builder:          strings.ToLower(strings.TrimSpace(builder)),
		Nonce:            t.nonce(),
	}
	sig, err := t.Signer.SignApproveBuilderFee(action)
	if err != nil {
		return nil, err
	}
	return t.send(ctx, exchangeRequest{Action: action, Nonce: action.Nonce, Signature: sig})
}

func (t *Trader) sendL1(ctx context.Context, action any) (*ExchangeResponse, error) {
	if t == nil || t.Client == nil || t.Signer == nil {
		return nil, fmt.Errorf("trader is not configured")
	}
	nonce := t.nonce()
	sig, err := t.Signer.SignL1Action(action, t.Vault, nonce, t.Mainnet)
	if err != nil {
		return nil, err
	}
	req := exchangeRequest{Action: action, Nonce: nonce, Signature: sig}
	if v := strings.TrimSpace(t.Vault); v != "" {
		vault := strings.ToLower(v)
		req.VaultAddress = &vault
	}
	return t.send(ctx, req)
}

func (t *Trader) send(ctx context.Context, req exchangeRequest) (*ExchangeResponse, error) {
	body, err := t.Client.post(ctx, "/exchange", req)
	if err != nil {
		return nil, err
	}
	var resp ExchangeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode exchange response: %w", err)
	}
	if resp.Status == "" {
		return nil, fmt.Errorf("malformed exchange response: %s", strings.TrimSpace(string(body)))
	}
	return &resp, nil
}

package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hypercopy/internal/client/hyperliquid"
	"hypercopy/internal/intent"
)

type midsSource interface {
	AllMids(ctx context.Context) (map[string]decimal.Decimal, error)
}

// HyperliquidREST prices symbols from the exchange's allMids snapshot.
// Snapshots are reused for TTL to spare the API during a sweep.
type HyperliquidREST struct {
	client midsSource
	ttl    time.Duration

	mu     sync.Mutex
	mids   map[string]decimal.Decimal
	loaded time.Time
}

func NewHyperliquidREST(client *hyperliquid.Client, ttl time.Duration) *HyperliquidREST {
	return &HyperliquidREST{client: client, ttl: ttl}
}

func (o *HyperliquidREST) Mark(ctx context.Context, symbol string) (decimal.Decimal, error) {
	coin := intent.BaseAsset(symbol)
	mids, err := o.snapshot(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch mids: %w", err)
	}
	px, ok := mids[coin]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}
	if !px.IsPositive() {
		return decimal.Zero, fmt.Errorf("unpriceable mark %s for %s", px, symbol)
	}
	return px, nil
}

func (o *HyperliquidREST) snapshot(ctx context.Context) (map[string]decimal.Decimal, error) {
	o.mu.Lock()
	if o.mids != nil && o.ttl > 0 && time.Since(o.loaded) < o.ttl {
		mids := o.mids
		o.mu.Unlock()
		return mids, nil
	}
	o.mu.Unlock()

	mids, err := o.client.AllMids(ctx)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.mids = mids
	o.loaded = time.Now()
	o.mu.Unlock()
	return mids, nil
}

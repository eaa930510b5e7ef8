// Package oracle supplies mark prices for normalized symbols.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"hypercopy/internal/intent"
)

var ErrUnsupportedSymbol = errors.New("unsupported symbol")

type PriceOracle interface {
	Mark(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Static serves a fixed price table keyed by normalized symbol. Set lets
// paper runs move prices by hand.
type Static struct {
	mu    sync.RWMutex
	marks map[string]decimal.Decimal
}

func NewStatic(marks map[string]float64) *Static {
	s := &Static{marks: make(map[string]decimal.Decimal, len(marks))}
	for sym, px := range marks {
		s.marks[intent.NormalizeSymbol(sym)] = decimal.NewFromFloat(px)
	}
	return s
}

func (s *Static) Set(symbol string, px decimal.Decimal) {
	s.mu.Lock()
	s.marks[intent.NormalizeSymbol(symbol)] = px
	s.mu.Unlock()
}

func (s *Static) Mark(_ context.Context, symbol string) (decimal.Decimal, error) {
	sym := intent.NormalizeSymbol(symbol)
	s.mu.RLock()
	px, ok := s.marks[sym]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, strings.TrimSpace(symbol))
	}
	if !px.IsPositive() {
		return decimal.Zero, fmt.Errorf("unpriceable mark %s for %s", px, sym)
	}
	return px, nil
}

// Package intent canonicalizes trading intents so that retries and
// duplicates of the same logical order map to one idempotency key.
package intent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var quoteSuffixes = []string{"USDT", "USDC", "USD"}

const defaultQuote = "USDT"

// NormalizeSymbol upper-cases a symbol and appends the default quote unless
// it already carries one: "btc" -> "BTCUSDT", "ETHUSD" -> "ETHUSD".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return ""
	}
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(s, q) {
			return s
		}
	}
	return s + defaultQuote
}

// BaseAsset strips a known quote suffix: "BTCUSDT" -> "BTC".
func BaseAsset(symbol string) string {
	s := NormalizeSymbol(symbol)
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q)
		}
	}
	return s
}

// Fields are the parts of an intent that identify it.
type Fields struct {
	UserID    string
	Symbol    string
	Side      string
	Qty       decimal.Decimal
	SLPrice   *decimal.Decimal
	SignalRef string
}

type canonical struct {
	Qty       string  `json:"qty"`
	Side      string  `json:"side"`
	SignalRef string  `json:"signal_ref"`
	SLPrice   *string `json:"sl_price"`
	Symbol    string  `json:"symbol"`
	UserID    string  `json:"user_id"`
}

// Key returns the hex sha256 of the canonical JSON form of f. Quantities are
// rendered with 12 significant digits and stop prices with 10, which absorbs
// float noise from sizing arithmetic.
func Key(f Fields) string {
	c := canonical{
		Qty:       formatSig(f.Qty, 12),
		Side:      strings.ToLower(strings.TrimSpace(f.Side)),
		SignalRef: strings.TrimSpace(f.SignalRef),
		Symbol:    NormalizeSymbol(f.Symbol),
		UserID:    f.UserID,
	}
	if f.SLPrice != nil {
		sl := formatSig(*f.SLPrice, 10)
		c.SLPrice = &sl
	}
	// Struct fields are declared in sorted key order; encoding/json keeps
	// declaration order and emits compact output.
	blob, _ := json.Marshal(c)
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

func formatSig(d decimal.Decimal, digits int) string {
	return strconv.FormatFloat(d.InexactFloat64(), 'g', digits, 64)
}

package hyperliquid

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	perpMaxDecimals = 6
	priceSigFigs    = 5
)

// RoundPrice applies the venue's tick rules: at most five significant
// figures and 6-szDecimals decimals for perps.
func RoundPrice(px decimal.Decimal, szDecimals int32) decimal.Decimal {
	f := px.InexactFloat64()
	sig, err := decimal.NewFromString(strconv.FormatFloat(f, 'g', priceSigFigs, 64))
	if err != nil {
		sig = px
	}
	places := int32(perpMaxDecimals) - szDecimals
	if places < 0 {
		places = 0
	}
	return sig.Round(places)
}

func RoundSize(sz decimal.Decimal, szDecimals int32) decimal.Decimal {
	return sz.Round(szDecimals)
}

// FloatToWire renders a decimal the way the exchange hashes it: no
// exponent and no trailing zeros.
func FloatToWire(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}

// Cloid maps an arbitrary client order id onto the exchange's 16-byte
// client id. UUIDs map to their own bytes; anything else to a sha256 prefix.
func Cloid(clientOrderID string) string {
	clientOrderID = strings.TrimSpace(clientOrderID)
	if strings.HasPrefix(clientOrderID, "0x") && len(clientOrderID) == 34 {
		return strings.ToLower(clientOrderID)
	}
	if u, err := uuid.Parse(clientOrderID); err == nil {
		return "0x" + hex.EncodeToString(u[:])
	}
	sum := sha256.Sum256([]byte(clientOrderID))
	return "0x" + hex.EncodeToString(sum[:16])
}

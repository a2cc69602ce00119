// Package fees implements the arithmetic utilities of spec §4.8: fee
// extraction from a raw fill, dust carry-forward, free-balance deviation
// classification, and precision/notional checks against exchange metadata.
package fees

import (
	"dcagrid/internal/core"

	"github.com/shopspring/decimal"
)

const fallbackFeeRate = "0.001"   // 0.1% fallback when fee currency is neither base nor quote
const sellFallbackFeeRate = "0.001"

// BuyFeeBase returns the fee amount expressed in base-asset units for a
// BUY_SAFETY fill, per spec §4.8: direct if the fee currency is the base
// asset, divided by price if it is quote, else a 0.1% fallback of filled.
func BuyFeeBase(fill core.RawFill, baseAsset, quoteAsset string) decimal.Decimal {
	switch fill.FeeCurrency {
	case baseAsset:
		return fill.FeeCost
	case quoteAsset:
		if fill.Price.Sign() > 0 {
			return fill.FeeCost.Div(fill.Price)
		}
		return decimal.Zero
	default:
		return fill.Filled.Mul(decimal.RequireFromString(fallbackFeeRate))
	}
}

// SellFeeQuote returns the fee amount expressed in quote-asset units for a
// SELL_TP fill, preferring a quote-denominated fee and falling back to 0.1%
// of the reported cost.
func SellFeeQuote(fill core.RawFill, quoteAsset string) decimal.Decimal {
	if fill.FeeCurrency == quoteAsset {
		return fill.FeeCost
	}
	return fill.Cost.Mul(decimal.RequireFromString(sellFallbackFeeRate))
}

// DeviationLevel classifies |available - expected| / expected.
type DeviationLevel int

const (
	DeviationExact DeviationLevel = iota
	DeviationNormal
	DeviationWarn
	DeviationCritical
)

// BalanceThresholds are the magic-number buckets from spec §4.8/§9, exposed
// as configurable constants per the spec's Open Question on tuning.
type BalanceThresholds struct {
	ExactPct    decimal.Decimal // 0.1%
	WarnPct     decimal.Decimal // 1%
	CriticalPct decimal.Decimal // 5%
}

// DefaultBalanceThresholds mirrors the values spec.md observed in the source.
func DefaultBalanceThresholds() BalanceThresholds {
	return BalanceThresholds{
		ExactPct:    decimal.RequireFromString("0.1"),
		WarnPct:     decimal.RequireFromString("1"),
		CriticalPct: decimal.RequireFromString("5"),
	}
}

// ClassifyDeviation compares available free-base balance against expected
// inventory (cycle.total_base_qty) per spec §4.3 step 5.
func ClassifyDeviation(available, expected decimal.Decimal, t BalanceThresholds) DeviationLevel {
	if expected.IsZero() {
		return DeviationExact
	}
	pct := available.Sub(expected).Abs().Div(expected).Mul(decimal.NewFromInt(100))
	switch {
	case pct.GreaterThan(t.CriticalPct):
		return DeviationCritical
	case pct.GreaterThan(t.WarnPct):
		return DeviationWarn
	case pct.LessThan(t.ExactPct):
		return DeviationExact
	default:
		return DeviationNormal
	}
}

// AmountToSell applies spec §4.3 step 5: when expected is non-zero,
// amount_to_sell = min(available, expected).
func AmountToSell(available, expected decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		return available
	}
	if available.LessThan(expected) {
		return available
	}
	return expected
}

// DustResult is the outcome of carrying accumulated dust forward through a
// precision-floor operation.
type DustResult struct {
	Sellable decimal.Decimal
	NewDust  decimal.Decimal
}

// FloorToPrecision implements DustManager.floor_to_precision: combine the
// newly sellable amount with carried-forward dust, floor to amountPrecision,
// and carry the residue forward.
func FloorToPrecision(amount, accumulatedDust decimal.Decimal, amountPrecision int32) DustResult {
	pending := amount.Add(accumulatedDust)
	sellable := pending.Truncate(amountPrecision)
	return DustResult{
		Sellable: sellable,
		NewDust:  pending.Sub(sellable),
	}
}

// CheckMinNotional reports whether amount*price clears the exchange's
// minimum order value.
func CheckMinNotional(amount, price, minNotional decimal.Decimal) bool {
	return amount.Mul(price).GreaterThanOrEqual(minNotional)
}

// RoundAmount/RoundPrice delegate to exchange-reported precision. They are
// thin wrappers kept separate from the Exchange capability so domain code
// never needs a live exchange session just to round a number it already
// knows the precision for.
func RoundAmount(amount decimal.Decimal, precision int32) decimal.Decimal {
	return amount.Round(precision)
}

func RoundPrice(price decimal.Decimal, precision int32) decimal.Decimal {
	return price.Round(precision)
}

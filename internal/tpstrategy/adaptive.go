// Package tpstrategy implements TPStrategy (spec §4.4): the adaptive
// take-profit percentage recomputed on every buy fill, and the
// ticker-driven trailing-TP state machine with its dump-detecting
// emergency exit monitor.
package tpstrategy

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)
var roundTripFeeEstimate = decimal.RequireFromString("0.002")
var tpSafetyMultiplier = decimal.RequireFromString("1.5")
var defaultMinTPPct = decimal.RequireFromString("0.5")

// EffectiveTPPercent computes effective_tp_pct per spec §4.4: the greater
// of the configured take-profit percentage and a safety margin derived from
// precision loss and round-trip fees, so a fill is never closed at a price
// that cannot cover its own rounding and fee overhead.
func EffectiveTPPercent(configTPPct decimal.Decimal, avgPrice, totalQuoteSpent decimal.Decimal, amountPrecision int32) decimal.Decimal {
	if totalQuoteSpent.Sign() <= 0 {
		return maxDec(configTPPct, defaultMinTPPct)
	}

	step := decimal.New(1, -amountPrecision)
	roundedAvgPrice := avgPrice.Round(2)
	precisionLoss := step.Mul(roundedAvgPrice)
	feesUSD := totalQuoteSpent.Mul(roundTripFeeEstimate)
	overhead := precisionLoss.Add(feesUSD)

	minTPPct := overhead.Div(totalQuoteSpent).Mul(hundred)
	safeTPPct := minTPPct.Mul(tpSafetyMultiplier)

	return maxDec(configTPPct, safeTPPct)
}

// TPPrice computes the take-profit limit price from the average price and
// the effective TP percentage, rounded to price precision.
func TPPrice(avgPrice, effectiveTPPct decimal.Decimal, pricePrecision int32) decimal.Decimal {
	price := avgPrice.Mul(decimal.NewFromInt(1).Add(effectiveTPPct.Div(hundred)))
	return price.Round(pricePrecision)
}

func maxDec(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

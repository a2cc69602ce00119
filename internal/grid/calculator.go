// Package grid implements GridCalculator, the pure function that turns a
// user's DCA configuration and the current market price into an ordered
// ladder of safety-buy rungs (spec §4.1).
package grid

import (
	"fmt"

	"dcagrid/internal/core"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Calculate computes the ordered list of rungs for the given input.
// Rung 0 is closest to market; prices strictly decrease with index.
func Calculate(in core.GridInput) ([]core.Rung, error) {
	if in.GridLevels < 1 {
		return nil, fmt.Errorf("grid: grid_levels must be >= 1, got %d", in.GridLevels)
	}
	if in.CurrentPrice.Sign() <= 0 {
		return nil, fmt.Errorf("grid: current_price must be positive")
	}
	if in.TotalBudget.Sign() <= 0 {
		return nil, fmt.Errorf("grid: total_budget must be positive")
	}

	firstPrice := in.CurrentPrice.Mul(decimal.NewFromInt(1).Sub(in.FirstOrderOffset.Div(hundred)))
	lastPrice := firstPrice.Mul(decimal.NewFromInt(1).Sub(in.GridLengthPct.Div(hundred)))

	var priceStep decimal.Decimal
	if in.GridLevels > 1 {
		priceStep = firstPrice.Sub(lastPrice).Div(decimal.NewFromInt(int64(in.GridLevels - 1)))
	}

	m := decimal.NewFromInt(1).Add(in.VolumeScalePct.Div(hundred))
	weight := geometricWeightSum(m, in.GridLevels)

	rungs := make([]core.Rung, 0, in.GridLevels)
	for i := 0; i < in.GridLevels; i++ {
		price := firstPrice.Sub(priceStep.Mul(decimal.NewFromInt(int64(i))))
		price = price.Round(in.PricePrecision)

		quote := in.TotalBudget.Div(weight).Mul(powDecimal(m, i))
		quote = quote.Round(2)

		base := decimal.Zero
		if price.Sign() > 0 {
			base = truncate(quote.Div(price), in.AmountPrecision)
		}

		rungs = append(rungs, core.Rung{
			Index:       i,
			Price:       price,
			AmountQuote: quote,
			AmountBase:  base,
		})
	}

	return rungs, nil
}

// geometricWeightSum computes Σ_{i=0..n-1} m^i.
func geometricWeightSum(m decimal.Decimal, n int) decimal.Decimal {
	sum := decimal.Zero
	for i := 0; i < n; i++ {
		sum = sum.Add(powDecimal(m, i))
	}
	return sum
}

func powDecimal(m decimal.Decimal, exp int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for i := 0; i < exp; i++ {
		result = result.Mul(m)
	}
	return result
}

// truncate rounds x down (toward zero) to p fractional digits. Never rounds
// up: an up-rounded base amount can exceed the exchange's free balance and
// is rejected as "insufficient balance" at placement time.
func truncate(x decimal.Decimal, p int32) decimal.Decimal {
	return x.Truncate(p)
}

package tpstrategy

import (
	"time"

	"dcagrid/internal/core"

	"github.com/shopspring/decimal"
)

const atrLookback = 14
const atrCacheTTL = 5 * time.Minute

var (
	highVolMultiplier = decimal.RequireFromString("2.0") // ATR% > 5
	midVolMultiplier  = decimal.RequireFromString("1.5") // ATR% > 3
	lowVolMultiplier  = decimal.RequireFromString("0.7") // ATR% < 1
	atrHighThreshold  = decimal.RequireFromString("5")
	atrMidThreshold   = decimal.RequireFromString("3")
	atrLowThreshold   = decimal.RequireFromString("1")
)

// CalculateATRPercent computes a simple-average Average True Range over the
// most recent atrLookback 5-minute candles, expressed as a percentage of the
// last candle's close. Returns zero if fewer than two candles are supplied.
func CalculateATRPercent(candles []core.Candle) decimal.Decimal {
	if len(candles) < 2 {
		return decimal.Zero
	}
	window := candles
	if len(window) > atrLookback+1 {
		window = window[len(window)-(atrLookback+1):]
	}

	sum := decimal.Zero
	count := 0
	for i := 1; i < len(window); i++ {
		prevClose := window[i-1].Close
		hi, lo := window[i].High, window[i].Low
		tr := hi.Sub(lo)
		if d := hi.Sub(prevClose).Abs(); d.GreaterThan(tr) {
			tr = d
		}
		if d := lo.Sub(prevClose).Abs(); d.GreaterThan(tr) {
			tr = d
		}
		sum = sum.Add(tr)
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	atr := sum.Div(decimal.NewFromInt(int64(count)))

	lastClose := window[len(window)-1].Close
	if lastClose.Sign() <= 0 {
		return decimal.Zero
	}
	return atr.Div(lastClose).Mul(hundred)
}

// AdaptiveCallbackPct scales the configured base trailing-callback percentage
// by the current volatility regime: wider in high-ATR markets, tighter when
// calm, so the trailing stop neither whipsaws nor gives back too much.
func AdaptiveCallbackPct(baseCallbackPct, atrPct decimal.Decimal) decimal.Decimal {
	switch {
	case atrPct.GreaterThan(atrHighThreshold):
		return baseCallbackPct.Mul(highVolMultiplier)
	case atrPct.GreaterThan(atrMidThreshold):
		return baseCallbackPct.Mul(midVolMultiplier)
	case atrPct.LessThan(atrLowThreshold):
		return baseCallbackPct.Mul(lowVolMultiplier)
	default:
		return baseCallbackPct
	}
}

// ATRCache memoizes one symbol's ATR% for atrCacheTTL, since OHLCV fetches
// are a live exchange RPC and the trailing monitor polls far more often than
// volatility meaningfully changes.
type ATRCache struct {
	entries map[string]atrCacheEntry
}

type atrCacheEntry struct {
	value     decimal.Decimal
	expiresAt time.Time
}

func NewATRCache() *ATRCache {
	return &ATRCache{entries: make(map[string]atrCacheEntry)}
}

// Get returns the cached ATR% for symbol if still fresh, otherwise invokes
// fetch to obtain candles, recomputes, and caches the result.
func (c *ATRCache) Get(symbol string, now time.Time, fetch func() ([]core.Candle, error)) (decimal.Decimal, error) {
	if e, ok := c.entries[symbol]; ok && now.Before(e.expiresAt) {
		return e.value, nil
	}
	candles, err := fetch()
	if err != nil {
		return decimal.Zero, err
	}
	atrPct := CalculateATRPercent(candles)
	c.entries[symbol] = atrCacheEntry{value: atrPct, expiresAt: now.Add(atrCacheTTL)}
	return atrPct, nil
}

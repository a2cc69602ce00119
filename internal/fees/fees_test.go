package fees

import (
	"testing"

	"dcagrid/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuyFeeBase(t *testing.T) {
	t.Run("fee in base currency", func(t *testing.T) {
		fill := core.RawFill{FeeCurrency: "ETH", FeeCost: dec("0.0000033")}
		got := BuyFeeBase(fill, "ETH", "USDT")
		assert.True(t, got.Equal(dec("0.0000033")))
	})

	t.Run("fee in quote currency", func(t *testing.T) {
		fill := core.RawFill{FeeCurrency: "USDT", FeeCost: dec("0.01"), Price: dec("2985")}
		got := BuyFeeBase(fill, "ETH", "USDT")
		assert.True(t, got.Equal(dec("0.01").Div(dec("2985"))))
	})

	t.Run("fee in unrelated currency falls back to 0.1%", func(t *testing.T) {
		fill := core.RawFill{FeeCurrency: "BNB", Filled: dec("1.0")}
		got := BuyFeeBase(fill, "ETH", "USDT")
		assert.True(t, got.Equal(dec("0.001")))
	})
}

func TestClassifyDeviation(t *testing.T) {
	thr := DefaultBalanceThresholds()
	assert.Equal(t, DeviationExact, ClassifyDeviation(dec("1.0"), dec("1.0005"), thr))
	assert.Equal(t, DeviationNormal, ClassifyDeviation(dec("1.003"), dec("1.0"), thr))
	assert.Equal(t, DeviationWarn, ClassifyDeviation(dec("1.02"), dec("1.0"), thr))
	assert.Equal(t, DeviationCritical, ClassifyDeviation(dec("1.06"), dec("1.0"), thr))
}

func TestAmountToSell(t *testing.T) {
	assert.True(t, AmountToSell(dec("0.9"), dec("1.0")).Equal(dec("0.9")))
	assert.True(t, AmountToSell(dec("1.1"), dec("1.0")).Equal(dec("1.0")))
	assert.True(t, AmountToSell(dec("5"), decimal.Zero).Equal(dec("5")))
}

func TestFloorToPrecision_DustCarriesForward(t *testing.T) {
	res := FloorToPrecision(dec("0.00329"), dec("0.00002"), 4)
	assert.True(t, res.Sellable.Equal(dec("0.0033")))
	assert.True(t, res.NewDust.Equal(dec("0.00001")))
}

func TestCheckMinNotional(t *testing.T) {
	assert.True(t, CheckMinNotional(dec("0.002"), dec("3000"), dec("5")))
	assert.False(t, CheckMinNotional(dec("0.0001"), dec("3000"), dec("5")))
}

package mock

import (
	"context"
	"testing"
	"time"

	"dcagrid/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateOrder_LimitSitsOpenUntilFilled(t *testing.T) {
	exch := New("mock")
	ctx := context.Background()

	order, err := exch.CreateOrder(ctx, core.PlaceOrderRequest{
		Symbol: "ETH/USDT", Side: core.SideBuy, Type: core.KindLimit,
		Amount: dec("0.01"), Price: dec("3000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "open", order.Status)

	got, err := exch.FetchOrder(ctx, order.ExchangeOrderID, "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "open", got.Status)
}

func TestCreateOrder_MarketFillsImmediately(t *testing.T) {
	exch := New("mock")
	order, err := exch.CreateOrder(context.Background(), core.PlaceOrderRequest{
		Symbol: "ETH/USDT", Side: core.SideSell, Type: core.KindMarket,
		Amount: dec("0.01"), Price: dec("3000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "closed", order.Status)
	assert.True(t, order.Filled.Equal(dec("0.01")))
}

func TestFill_PublishesToWatchOrders(t *testing.T) {
	exch := New("mock")
	ctx := context.Background()

	stream, err := exch.WatchOrders(ctx, "ETH/USDT")
	require.NoError(t, err)

	order, err := exch.CreateOrder(ctx, core.PlaceOrderRequest{
		Symbol: "ETH/USDT", Side: core.SideBuy, Type: core.KindLimit,
		Amount: dec("0.01"), Price: dec("3000"),
	})
	require.NoError(t, err)

	require.NoError(t, exch.Fill(order.ExchangeOrderID, dec("0.01"), dec("30"), dec("0.03"), "USDT"))

	select {
	case fill := <-stream:
		assert.Equal(t, order.ExchangeOrderID, fill.ExchangeOrderID)
		assert.True(t, fill.IsCloseLike())
	case <-time.After(time.Second):
		t.Fatal("expected a fill on the watch stream")
	}

	got, err := exch.FetchOrder(ctx, order.ExchangeOrderID, "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, "closed", got.Status)
}

func TestCancelOrder_UnknownIDReturnsInvalidOrderError(t *testing.T) {
	exch := New("mock")
	err := exch.CancelOrder(context.Background(), "nonexistent", "ETH/USDT")
	require.Error(t, err)

	var exchErr *core.ExchangeError
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, core.ErrCategoryInvalidOrder, exchErr.Category)
}

func TestFetchBalanceAndTicker_ReturnSeededValues(t *testing.T) {
	exch := New("mock")
	exch.SetBalance("USDT", dec("500"))
	exch.SetTicker("ETH/USDT", dec("3050"))

	free, err := exch.FetchFreeBalance(context.Background(), "USDT")
	require.NoError(t, err)
	assert.True(t, free.Equal(dec("500")))

	ticker, err := exch.FetchTicker(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.True(t, ticker.Price.Equal(dec("3050")))
}

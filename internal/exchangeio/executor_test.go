package exchangeio

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"dcagrid/internal/core"
	"dcagrid/internal/telemetry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func init() {
	_ = telemetry.GetGlobalMetrics().InitMetrics(noop.NewMeterProvider().Meter("test"))
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (l noopLogger) WithField(string, interface{}) core.Logger {
	return l
}
func (l noopLogger) WithFields(map[string]interface{}) core.Logger {
	return l
}

// flakyExchange fails CreateOrder with a given category the first N calls,
// then succeeds, letting tests assert the retry loop's classification.
type flakyExchange struct {
	failTimes int
	category  core.ErrorCategory
	calls     int32
}

func (f *flakyExchange) Name() string { return "flaky" }
func (f *flakyExchange) FetchBalance(context.Context) (map[string]decimal.Decimal, error) {
	return nil, nil
}
func (f *flakyExchange) FetchFreeBalance(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *flakyExchange) FetchTicker(context.Context, string) (core.Ticker, error) {
	return core.Ticker{}, nil
}
func (f *flakyExchange) FetchOHLCV(context.Context, string, string, int) ([]core.Candle, error) {
	return nil, nil
}
func (f *flakyExchange) FetchOrder(context.Context, string, string) (core.ExchangeOrder, error) {
	return core.ExchangeOrder{}, nil
}
func (f *flakyExchange) FetchOpenOrders(context.Context, string) ([]core.ExchangeOrder, error) {
	return nil, nil
}
func (f *flakyExchange) CreateOrder(_ context.Context, req core.PlaceOrderRequest) (core.ExchangeOrder, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if int(n) <= f.failTimes {
		return core.ExchangeOrder{}, &core.ExchangeError{Category: f.category, Err: errors.New("simulated failure")}
	}
	return core.ExchangeOrder{ExchangeOrderID: "ex-1", Symbol: req.Symbol, Amount: req.Amount, Price: req.Price}, nil
}
func (f *flakyExchange) CancelOrder(context.Context, string, string) error { return nil }
func (f *flakyExchange) AmountToPrecision(_ context.Context, _ string, a decimal.Decimal) (decimal.Decimal, error) {
	return a, nil
}
func (f *flakyExchange) PriceToPrecision(_ context.Context, _ string, p decimal.Decimal) (decimal.Decimal, error) {
	return p, nil
}
func (f *flakyExchange) Market(context.Context, string) (core.SymbolInfo, error) {
	return core.SymbolInfo{}, nil
}
func (f *flakyExchange) WatchOrders(context.Context, string) (<-chan core.RawFill, error) {
	return nil, nil
}
func (f *flakyExchange) WatchTicker(context.Context, string) (<-chan core.Ticker, error) {
	return nil, nil
}

func TestCreateOrder_RetriesNetworkFailureUntilSuccess(t *testing.T) {
	exch := &flakyExchange{failTimes: 2, category: core.ErrCategoryNetwork}
	e := New(exch, noopLogger{}, WithRetry(5, time.Millisecond, 5*time.Millisecond), WithRateLimit(1000, 10))

	order, err := e.CreateOrder(context.Background(), core.PlaceOrderRequest{Symbol: "ETH/USDT", Amount: decimal.RequireFromString("1")})
	require.NoError(t, err)
	assert.Equal(t, "ex-1", order.ExchangeOrderID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&exch.calls))
}

func TestCreateOrder_DoesNotRetryInsufficientFunds(t *testing.T) {
	exch := &flakyExchange{failTimes: 100, category: core.ErrCategoryInsufficientFund}
	e := New(exch, noopLogger{}, WithRetry(5, time.Millisecond, 5*time.Millisecond), WithRateLimit(1000, 10))

	_, err := e.CreateOrder(context.Background(), core.PlaceOrderRequest{Symbol: "ETH/USDT"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&exch.calls))

	var exchErr *core.ExchangeError
	require.ErrorAs(t, err, &exchErr)
	assert.Equal(t, core.ErrCategoryInsufficientFund, exchErr.Category)
}

func TestCreateOrder_ExhaustsRetriesOnPersistentNetworkFailure(t *testing.T) {
	exch := &flakyExchange{failTimes: 100, category: core.ErrCategoryNetwork}
	e := New(exch, noopLogger{}, WithRetry(2, time.Millisecond, 2*time.Millisecond), WithRateLimit(1000, 10))

	_, err := e.CreateOrder(context.Background(), core.PlaceOrderRequest{Symbol: "ETH/USDT"})
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&exch.calls)) // initial attempt + 2 retries
}

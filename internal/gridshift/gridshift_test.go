package gridshift

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

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})             {}
func (noopLogger) Info(string, ...interface{})              {}
func (noopLogger) Warn(string, ...interface{})              {}
func (noopLogger) Error(string, ...interface{})             {}
func (l noopLogger) WithField(string, interface{}) core.Logger   { return l }
func (l noopLogger) WithFields(map[string]interface{}) core.Logger { return l }

type fakeExchange struct {
	canceled []string
	created  []core.PlaceOrderRequest
}

func (f *fakeExchange) Name() string { return "fake" }
func (f *fakeExchange) FetchBalance(context.Context) (map[string]decimal.Decimal, error) {
	return nil, nil
}
func (f *fakeExchange) FetchFreeBalance(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *fakeExchange) FetchTicker(context.Context, string) (core.Ticker, error) {
	return core.Ticker{}, nil
}
func (f *fakeExchange) FetchOHLCV(context.Context, string, string, int) ([]core.Candle, error) {
	return nil, nil
}
func (f *fakeExchange) FetchOrder(context.Context, string, string) (core.ExchangeOrder, error) {
	return core.ExchangeOrder{}, nil
}
func (f *fakeExchange) FetchOpenOrders(context.Context, string) ([]core.ExchangeOrder, error) {
	return nil, nil
}
func (f *fakeExchange) CreateOrder(_ context.Context, req core.PlaceOrderRequest) (core.ExchangeOrder, error) {
	f.created = append(f.created, req)
	return core.ExchangeOrder{ExchangeOrderID: "ex-new-rung0", Price: req.Price, Amount: req.Amount}, nil
}
func (f *fakeExchange) CancelOrder(_ context.Context, exchangeOrderID, _ string) error {
	f.canceled = append(f.canceled, exchangeOrderID)
	return nil
}
func (f *fakeExchange) AmountToPrecision(_ context.Context, _ string, amount decimal.Decimal) (decimal.Decimal, error) {
	return amount, nil
}
func (f *fakeExchange) PriceToPrecision(_ context.Context, _ string, price decimal.Decimal) (decimal.Decimal, error) {
	return price, nil
}
func (f *fakeExchange) Market(context.Context, string) (core.SymbolInfo, error) {
	return core.SymbolInfo{}, nil
}
func (f *fakeExchange) WatchOrders(context.Context, string) (<-chan core.RawFill, error) {
	return nil, nil
}
func (f *fakeExchange) WatchTicker(context.Context, string) (<-chan core.Ticker, error) {
	return nil, nil
}

type fakeTx struct {
	orders    map[string]core.Order
	cycle     core.Cycle
	committed bool
	rolled    bool
}

func (t *fakeTx) Commit() error   { t.committed = true; return nil }
func (t *fakeTx) Rollback() error { if !t.committed { t.rolled = true }; return nil }

func (t *fakeTx) GetConfig(context.Context, string) (core.Config, error)    { return core.Config{}, nil }
func (t *fakeTx) SetConfigActive(context.Context, string, bool) error      { return nil }
func (t *fakeTx) GetOpenCycle(context.Context, string) (core.Cycle, bool, error) {
	return t.cycle, true, nil
}
func (t *fakeTx) InsertCycle(context.Context, core.Cycle) error { return nil }
func (t *fakeTx) UpdateCycle(_ context.Context, c core.Cycle) error {
	t.cycle = c
	return nil
}
func (t *fakeTx) InsertOrder(_ context.Context, o core.Order) error {
	t.orders[o.ID] = o
	return nil
}
func (t *fakeTx) UpdateOrder(_ context.Context, o core.Order) error {
	t.orders[o.ID] = o
	return nil
}
func (t *fakeTx) DeleteOrder(_ context.Context, id string) error {
	delete(t.orders, id)
	return nil
}
func (t *fakeTx) GetOrderByExchangeID(context.Context, string) (core.Order, bool, error) {
	return core.Order{}, false, nil
}
func (t *fakeTx) GetOrder(_ context.Context, id string) (core.Order, bool, error) {
	o, ok := t.orders[id]
	return o, ok, nil
}
func (t *fakeTx) ListOrdersByCycle(_ context.Context, cycleID string) ([]core.Order, error) {
	var out []core.Order
	for _, o := range t.orders {
		if o.CycleID == cycleID {
			out = append(out, o)
		}
	}
	return out, nil
}
func (t *fakeTx) ListActiveOrPendingOrders(context.Context, string) ([]core.Order, error) {
	return nil, nil
}

type fakeRepo struct {
	tx *fakeTx
}

func (r *fakeRepo) Begin(context.Context) (core.Tx, error) { return r.tx, nil }
func (r *fakeRepo) ListActiveConfigs(context.Context) ([]core.Config, error) { return nil, nil }
func (r *fakeRepo) GetConfig(context.Context, string) (core.Config, error)  { return core.Config{}, nil }
func (r *fakeRepo) SetConfigActive(context.Context, string, bool) error     { return nil }

// TestMaybeShift_DriftAboveThreshold reproduces the grid-shift seed scenario:
// initial rung 0 at 2985, ticker arrives at 3060 (ideal entry 3044.70),
// threshold 0.6% and drift ~2.00% triggers a shift that reconstructs the
// ladder and re-anchors initial_first_order_price to the new rung 0.
func TestMaybeShift_DriftAboveThreshold(t *testing.T) {
	cfg := &core.Config{
		Symbol:              "ETH/USDT",
		TotalBudget:         dec("100"),
		GridLevels:          5,
		GridLengthPct:       dec("5"),
		FirstOrderOffsetPct: dec("0.5"),
		VolumeScalePct:      dec("40"),
		GridShiftThresholdPct: dec("0.6"),
	}
	cycle := &core.Cycle{ID: "cycle-1", InitialFirstOrderPrice: dec("2985")}
	rung0 := core.Order{ID: "order-0", CycleID: cycle.ID, OrderType: core.OrderTypeBuySafety, OrderIndex: 0, Price: dec("2985"), Status: core.OrderStatusActive, ExchangeOrderID: "ex-old-rung0"}

	tx := &fakeTx{orders: map[string]core.Order{rung0.ID: rung0}, cycle: *cycle}
	repo := &fakeRepo{tx: tx}
	exch := &fakeExchange{}

	s := NewShifter(exch, repo, noopLogger{})
	info := core.SymbolInfo{AmountPrecision: 4, PricePrecision: 2}

	shifted, err := s.MaybeShift(context.Background(), cfg, cycle, rung0, dec("3060"), time.Now(), info)
	require.NoError(t, err)
	assert.True(t, shifted)
	assert.Contains(t, exch.canceled, "ex-old-rung0")
	assert.Len(t, exch.created, 1)
	assert.True(t, cycle.InitialFirstOrderPrice.GreaterThan(decimal.Zero))
	assert.True(t, tx.committed)
}

func TestMaybeShift_BelowThresholdNoOp(t *testing.T) {
	cfg := &core.Config{
		Symbol:                "ETH/USDT",
		FirstOrderOffsetPct:   dec("0.5"),
		GridShiftThresholdPct: dec("5"),
	}
	cycle := &core.Cycle{ID: "cycle-2", InitialFirstOrderPrice: dec("2985")}
	rung0 := core.Order{ID: "order-0", CycleID: cycle.ID, Status: core.OrderStatusActive}

	repo := &fakeRepo{tx: &fakeTx{orders: map[string]core.Order{}}}
	exch := &fakeExchange{}
	s := NewShifter(exch, repo, noopLogger{})

	shifted, err := s.MaybeShift(context.Background(), cfg, cycle, rung0, dec("3000"), time.Now(), core.SymbolInfo{})
	require.NoError(t, err)
	assert.False(t, shifted)
}

func TestMaybeShift_ThrottledWithin15Seconds(t *testing.T) {
	cfg := &core.Config{
		Symbol:                "ETH/USDT",
		FirstOrderOffsetPct:   dec("0.5"),
		GridShiftThresholdPct: dec("0.6"),
		TotalBudget:           dec("100"),
		GridLevels:            5,
		GridLengthPct:         dec("5"),
		VolumeScalePct:        dec("40"),
	}
	cycle := &core.Cycle{ID: "cycle-3", InitialFirstOrderPrice: dec("2985")}
	rung0 := core.Order{ID: "order-0", CycleID: cycle.ID, Status: core.OrderStatusActive}

	tx := &fakeTx{orders: map[string]core.Order{rung0.ID: rung0}}
	repo := &fakeRepo{tx: tx}
	exch := &fakeExchange{}
	s := NewShifter(exch, repo, noopLogger{})
	info := core.SymbolInfo{AmountPrecision: 4, PricePrecision: 2}

	now := time.Now()
	shifted, err := s.MaybeShift(context.Background(), cfg, cycle, rung0, dec("3060"), now, info)
	require.NoError(t, err)
	require.True(t, shifted)

	shifted, err = s.MaybeShift(context.Background(), cfg, cycle, rung0, dec("3070"), now.Add(5*time.Second), info)
	require.NoError(t, err)
	assert.False(t, shifted, "second shift within 15s must be a no-op")
}

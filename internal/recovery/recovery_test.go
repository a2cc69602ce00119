package recovery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dcagrid/internal/core"
	"dcagrid/internal/registry"
	"dcagrid/internal/repository"
	"dcagrid/internal/supervisor"
	"dcagrid/internal/telemetry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func init() {
	_ = telemetry.GetGlobalMetrics().InitMetrics(noop.NewMeterProvider().Meter("test"))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

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

// fakeExchange reports a single order as closed-with-full-fill, simulating
// the exchange side of a missed fill the process never saw live.
type fakeExchange struct {
	info         core.SymbolInfo
	closedOrders map[string]core.ExchangeOrder
}

func (f *fakeExchange) Name() string { return "fake" }
func (f *fakeExchange) FetchBalance(context.Context) (map[string]decimal.Decimal, error) {
	return nil, nil
}
func (f *fakeExchange) FetchFreeBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	if asset == "ETH" {
		return dec("0.0335"), nil
	}
	return dec("1000"), nil
}
func (f *fakeExchange) FetchTicker(context.Context, string) (core.Ticker, error) {
	return core.Ticker{Symbol: f.info.Symbol, Price: dec("3000")}, nil
}
func (f *fakeExchange) FetchOHLCV(context.Context, string, string, int) ([]core.Candle, error) {
	return nil, nil
}
func (f *fakeExchange) FetchOrder(_ context.Context, exchangeOrderID, _ string) (core.ExchangeOrder, error) {
	if o, ok := f.closedOrders[exchangeOrderID]; ok {
		return o, nil
	}
	return core.ExchangeOrder{ExchangeOrderID: exchangeOrderID, Status: "open"}, nil
}
func (f *fakeExchange) FetchOpenOrders(context.Context, string) ([]core.ExchangeOrder, error) {
	return nil, nil
}
func (f *fakeExchange) CreateOrder(_ context.Context, req core.PlaceOrderRequest) (core.ExchangeOrder, error) {
	return core.ExchangeOrder{ExchangeOrderID: "new-" + req.Symbol, Price: req.Price, Amount: req.Amount}, nil
}
func (f *fakeExchange) CancelOrder(context.Context, string, string) error { return nil }
func (f *fakeExchange) AmountToPrecision(_ context.Context, _ string, a decimal.Decimal) (decimal.Decimal, error) {
	return a, nil
}
func (f *fakeExchange) PriceToPrecision(_ context.Context, _ string, p decimal.Decimal) (decimal.Decimal, error) {
	return p, nil
}
func (f *fakeExchange) Market(context.Context, string) (core.SymbolInfo, error) {
	return f.info, nil
}
func (f *fakeExchange) WatchOrders(context.Context, string) (<-chan core.RawFill, error) {
	return make(chan core.RawFill), nil
}
func (f *fakeExchange) WatchTicker(context.Context, string) (<-chan core.Ticker, error) {
	return make(chan core.Ticker), nil
}

func openTestRepo(t *testing.T) *repository.Repository {
	t.Helper()
	repo, err := repository.Open(filepath.Join(t.TempDir(), "recovery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// TestRecoverOne_ReplaysMissedFillAndResumesCycle reproduces spec seed
// scenario 7: an ACTIVE BUY_SAFETY order closed on the exchange while the
// process was down. Recovery must replay it through the normal handler
// (creating the TP) and then resume the still-open cycle.
func TestRecoverOne_ReplaysMissedFillAndResumesCycle(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	cfg := core.Config{
		ID: "cfg-1", UserID: "u1", Symbol: "ETH/USDT", IsActive: true,
		TotalBudget: dec("100"), GridLevels: 3, GridLengthPct: dec("10"),
		FirstOrderOffsetPct: dec("0.5"), VolumeScalePct: dec("20"), TakeProfitPct: dec("1.2"),
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	insertConfig(t, repo, cfg)

	cycle := core.Cycle{
		ID: "cycle-1", ConfigID: cfg.ID, Status: core.CycleStatusOpen,
		TotalBaseQty: dec("0"), TotalQuoteSpent: dec("0"), AvgPrice: dec("0"),
		InitialFirstOrderPrice: dec("2985"), CreatedAt: time.Now(),
	}
	order := core.Order{
		ID: "order-1", CycleID: cycle.ID, ExchangeOrderID: "ex-1",
		OrderType: core.OrderTypeBuySafety, OrderIndex: 0,
		Price: dec("2985"), Amount: dec("0.0335"), Status: core.OrderStatusActive,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertCycle(ctx, cycle))
	require.NoError(t, tx.InsertOrder(ctx, order))
	require.NoError(t, tx.Commit())

	exch := &fakeExchange{
		info: core.SymbolInfo{Symbol: "ETH/USDT", AmountPrecision: 4, PricePrecision: 2, MinNotional: dec("5")},
		closedOrders: map[string]core.ExchangeOrder{
			"ex-1": {
				ExchangeOrderID: "ex-1", Status: "closed",
				Price: dec("2985"), Amount: dec("0.0335"), Filled: dec("0.0335"), Cost: dec("100"),
			},
		},
	}

	reg := registry.New(noopLogger{})
	runner := NewRunner(repo, func(core.Config) (core.Exchange, error) { return exch, nil }, reg, supervisor.NewPriceCache(), noopLogger{})

	require.NoError(t, runner.recoverOne(ctx, cfg))

	_, ok := reg.Get(cfg.ID)
	assert.True(t, ok, "a resumed cycle should register a supervisor")

	tx2, err := repo.Begin(ctx)
	require.NoError(t, err)
	gotOrder, ok, err := tx2.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.OrderStatusFilled, gotOrder.Status)

	gotCycle, ok, err := tx2.GetOpenCycle(ctx, cfg.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, gotCycle.TotalBaseQty.GreaterThan(decimal.Zero))
	require.NoError(t, tx2.Commit())
}

func TestRun_DeactivatesConfigOnExchangeFactoryFailure(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	cfg := core.Config{
		ID: "cfg-bad", UserID: "u1", Symbol: "BTC/USDT", IsActive: true,
		TotalBudget: dec("100"), GridLevels: 3, GridLengthPct: dec("10"),
		FirstOrderOffsetPct: dec("0.5"), VolumeScalePct: dec("20"), TakeProfitPct: dec("1.2"),
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	insertConfig(t, repo, cfg)

	reg := registry.New(noopLogger{})
	runner := NewRunner(repo, func(core.Config) (core.Exchange, error) {
		return nil, assertErr
	}, reg, supervisor.NewPriceCache(), noopLogger{})

	result, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Recovered)

	got, err := repo.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

var assertErr = errors.New("exchange session unavailable")

func insertConfig(t *testing.T, repo *repository.Repository, cfg core.Config) {
	t.Helper()
	require.NoError(t, repo.InsertConfig(context.Background(), cfg))
}

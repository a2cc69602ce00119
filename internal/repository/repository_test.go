package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dcagrid/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	repo, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedConfig(t *testing.T, repo *Repository, cfg core.Config) {
	t.Helper()
	require.NoError(t, repo.InsertConfig(context.Background(), cfg))
}

func testConfig() core.Config {
	now := time.Unix(1700000000, 0).UTC()
	return core.Config{
		ID: "cfg-1", UserID: "user-1", Symbol: "ETH/USDT",
		APIKey: "key", APISecret: "secret",
		TotalBudget: dec("100"), GridLevels: 3,
		GridLengthPct: dec("10"), FirstOrderOffsetPct: dec("0.5"), VolumeScalePct: dec("20"),
		GridShiftThresholdPct: dec("5"), TakeProfitPct: dec("1.2"),
		TrailingEnabled: true, TrailingCallbackPct: dec("0.3"), TrailingMinProfitPct: dec("0.8"),
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
}

func TestGetConfig_RoundTrips(t *testing.T) {
	repo := openTestRepo(t)
	cfg := testConfig()
	seedConfig(t, repo, cfg)

	got, err := repo.GetConfig(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
	assert.Equal(t, cfg.Symbol, got.Symbol)
	assert.True(t, cfg.TotalBudget.Equal(got.TotalBudget))
	assert.True(t, cfg.TrailingCallbackPct.Equal(got.TrailingCallbackPct))
	assert.True(t, got.TrailingEnabled)
	assert.True(t, got.IsActive)
}

func TestGetConfig_NotFound(t *testing.T) {
	repo := openTestRepo(t)
	_, err := repo.GetConfig(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListActiveConfigs_FiltersInactive(t *testing.T) {
	repo := openTestRepo(t)
	active := testConfig()
	inactive := testConfig()
	inactive.ID = "cfg-2"
	inactive.IsActive = false
	seedConfig(t, repo, active)
	seedConfig(t, repo, inactive)

	got, err := repo.ListActiveConfigs(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestSetConfigActive(t *testing.T) {
	repo := openTestRepo(t)
	cfg := testConfig()
	cfg.IsActive = false
	seedConfig(t, repo, cfg)

	require.NoError(t, repo.SetConfigActive(context.Background(), cfg.ID, true))
	got, err := repo.GetConfig(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func testCycle(configID string) core.Cycle {
	now := time.Unix(1700000100, 0).UTC()
	return core.Cycle{
		ID: "cycle-1", ConfigID: configID, Status: core.CycleStatusOpen,
		TotalBaseQty: dec("0.01"), TotalQuoteSpent: dec("30"), AvgPrice: dec("3000"),
		InitialFirstOrderPrice: dec("2985"), CurrentTPOrderID: "ex-tp-1", CurrentTPPrice: dec("3036"),
		AccumulatedDust: dec("0"), TrailingActive: false, MaxPriceTracked: dec("3000"),
		TrailingActivationPrice: dec("0"), ProfitQuote: dec("0"), CreatedAt: now,
	}
}

func TestCycleInsertUpdateGetOpen(t *testing.T) {
	repo := openTestRepo(t)
	cfg := testConfig()
	seedConfig(t, repo, cfg)

	ctx := context.Background()
	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	cycle := testCycle(cfg.ID)
	require.NoError(t, tx.InsertCycle(ctx, cycle))
	require.NoError(t, tx.Commit())

	tx2, err := repo.Begin(ctx)
	require.NoError(t, err)
	got, ok, err := tx2.GetOpenCycle(ctx, cfg.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.AvgPrice.Equal(cycle.AvgPrice))
	assert.Equal(t, core.CycleStatusOpen, got.Status)

	got.Status = core.CycleStatusClosed
	got.ClosedAt = time.Unix(1700000200, 0).UTC()
	require.NoError(t, tx2.UpdateCycle(ctx, got))
	require.NoError(t, tx2.Commit())

	tx3, err := repo.Begin(ctx)
	require.NoError(t, err)
	_, ok, err = tx3.GetOpenCycle(ctx, cfg.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tx3.Commit())
}

func TestOrderInsertUpdateListAndDelete(t *testing.T) {
	repo := openTestRepo(t)
	cfg := testConfig()
	seedConfig(t, repo, cfg)

	ctx := context.Background()
	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	cycle := testCycle(cfg.ID)
	require.NoError(t, tx.InsertCycle(ctx, cycle))

	now := time.Unix(1700000100, 0).UTC()
	rung0 := core.Order{
		ID: "order-1", CycleID: cycle.ID, OrderType: core.OrderTypeBuySafety, OrderIndex: 0,
		Price: dec("2985"), Amount: dec("0.01"), Status: core.OrderStatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, tx.InsertOrder(ctx, rung0))
	require.NoError(t, tx.Commit())

	tx2, err := repo.Begin(ctx)
	require.NoError(t, err)
	rung0.Status = core.OrderStatusActive
	rung0.ExchangeOrderID = "ex-1"
	rung0.UpdatedAt = now.Add(time.Second)
	require.NoError(t, tx2.UpdateOrder(ctx, rung0))

	byExch, ok, err := tx2.GetOrderByExchangeID(ctx, "ex-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rung0.ID, byExch.ID)

	active, err := tx2.ListActiveOrPendingOrders(ctx, cycle.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)

	all, err := tx2.ListOrdersByCycle(ctx, cycle.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, tx2.DeleteOrder(ctx, rung0.ID))
	require.NoError(t, tx2.Commit())

	tx3, err := repo.Begin(ctx)
	require.NoError(t, err)
	remaining, err := tx3.ListOrdersByCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	require.NoError(t, tx3.Commit())
}

func TestBegin_SerializesConcurrentWriters(t *testing.T) {
	repo := openTestRepo(t)
	cfg := testConfig()
	seedConfig(t, repo, cfg)

	ctx := context.Background()
	tx, err := repo.Begin(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		tx2, err := repo.Begin(context.Background())
		if err == nil {
			tx2.Commit()
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Begin should block until first transaction finishes")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, tx.Commit())
	<-done
}

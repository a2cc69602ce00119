// Package mock provides a deterministic, in-memory core.Exchange for tests
// and local demos, modeled on the teacher's internal/mock.MockExchange: a
// mutex-guarded store plus Set* overrides the test injects before exercising
// the component under test. No network I/O, no wire protocol (spec.md §6).
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dcagrid/internal/core"

	"github.com/shopspring/decimal"
)

// Exchange is a stateful fake satisfying core.Exchange.
type Exchange struct {
	mu sync.RWMutex

	name         string
	balances     map[string]decimal.Decimal
	tickers      map[string]core.Ticker
	markets      map[string]core.SymbolInfo
	candles      map[string][]core.Candle
	orders       map[string]*core.ExchangeOrder
	orderCounter int64

	orderWatchers  map[string][]chan core.RawFill
	tickerWatchers map[string][]chan core.Ticker
}

// New builds an Exchange with nothing configured; call the Set* helpers to
// seed balances, tickers, and market metadata before use.
func New(name string) *Exchange {
	return &Exchange{
		name:           name,
		balances:       make(map[string]decimal.Decimal),
		tickers:        make(map[string]core.Ticker),
		markets:        make(map[string]core.SymbolInfo),
		candles:        make(map[string][]core.Candle),
		orders:         make(map[string]*core.ExchangeOrder),
		orderWatchers:  make(map[string][]chan core.RawFill),
		tickerWatchers: make(map[string][]chan core.Ticker),
	}
}

// SetBalance seeds the free balance of asset.
func (m *Exchange) SetBalance(asset string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[asset] = amount
}

// SetTicker seeds the last-price ticker for a symbol.
func (m *Exchange) SetTicker(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[symbol] = core.Ticker{Symbol: symbol, Price: price, Timestamp: time.Now()}
}

// SetMarket seeds the precision/notional metadata returned by Market.
func (m *Exchange) SetMarket(symbol string, info core.SymbolInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info.Symbol = symbol
	m.markets[symbol] = info
}

// SetCandles seeds the OHLCV history FetchOHLCV returns for symbol.
func (m *Exchange) SetCandles(symbol string, candles []core.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[symbol] = candles
}

func (m *Exchange) Name() string { return m.name }

func (m *Exchange) FetchBalance(context.Context) (map[string]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out, nil
}

func (m *Exchange) FetchFreeBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[asset], nil
}

func (m *Exchange) FetchTicker(_ context.Context, symbol string) (core.Ticker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickers[symbol]
	if !ok {
		return core.Ticker{}, &core.ExchangeError{Category: core.ErrCategoryInvalidOrder, Err: fmt.Errorf("mock: no ticker seeded for %s", symbol)}
	}
	return t, nil
}

func (m *Exchange) FetchOHLCV(_ context.Context, symbol, _ string, limit int) ([]core.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	candles := m.candles[symbol]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (m *Exchange) FetchOrder(_ context.Context, exchangeOrderID, _ string) (core.ExchangeOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[exchangeOrderID]
	if !ok {
		return core.ExchangeOrder{}, &core.ExchangeError{Category: core.ErrCategoryInvalidOrder, Err: fmt.Errorf("mock: order %s not found", exchangeOrderID)}
	}
	return *o, nil
}

func (m *Exchange) FetchOpenOrders(_ context.Context, symbol string) ([]core.ExchangeOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.ExchangeOrder
	for _, o := range m.orders {
		if o.Symbol == symbol && (o.Status == "open" || o.Status == "partial") {
			out = append(out, *o)
		}
	}
	return out, nil
}

// CreateOrder always succeeds: market orders fill immediately, limit orders
// sit "open" until the test calls Fill to simulate an exchange-side match.
func (m *Exchange) CreateOrder(_ context.Context, req core.PlaceOrderRequest) (core.ExchangeOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orderCounter++
	id := fmt.Sprintf("mock-%d", m.orderCounter)
	status := "open"
	filled := decimal.Zero
	cost := decimal.Zero
	if req.Type == core.KindMarket {
		status = "closed"
		filled = req.Amount
		cost = req.Amount.Mul(req.Price)
	}

	order := &core.ExchangeOrder{
		ExchangeOrderID: id,
		ClientOrderID:   req.ClientOrderID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Status:          status,
		Price:           req.Price,
		Amount:          req.Amount,
		Filled:          filled,
		Cost:            cost,
	}
	m.orders[id] = order
	return *order, nil
}

func (m *Exchange) CancelOrder(_ context.Context, exchangeOrderID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[exchangeOrderID]
	if !ok {
		return &core.ExchangeError{Category: core.ErrCategoryInvalidOrder, Err: fmt.Errorf("mock: order %s not found", exchangeOrderID)}
	}
	o.Status = "canceled"
	return nil
}

func (m *Exchange) AmountToPrecision(_ context.Context, symbol string, amount decimal.Decimal) (decimal.Decimal, error) {
	m.mu.RLock()
	info := m.markets[symbol]
	m.mu.RUnlock()
	return amount.Round(info.AmountPrecision), nil
}

func (m *Exchange) PriceToPrecision(_ context.Context, symbol string, price decimal.Decimal) (decimal.Decimal, error) {
	m.mu.RLock()
	info := m.markets[symbol]
	m.mu.RUnlock()
	return price.Round(info.PricePrecision), nil
}

func (m *Exchange) Market(_ context.Context, symbol string) (core.SymbolInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.markets[symbol]
	if !ok {
		return core.SymbolInfo{}, &core.ExchangeError{Category: core.ErrCategoryInvalidOrder, Err: fmt.Errorf("mock: no market seeded for %s", symbol)}
	}
	return info, nil
}

func (m *Exchange) WatchOrders(_ context.Context, symbol string) (<-chan core.RawFill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan core.RawFill, 16)
	m.orderWatchers[symbol] = append(m.orderWatchers[symbol], ch)
	return ch, nil
}

func (m *Exchange) WatchTicker(_ context.Context, symbol string) (<-chan core.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan core.Ticker, 16)
	m.tickerWatchers[symbol] = append(m.tickerWatchers[symbol], ch)
	return ch, nil
}

// Fill simulates the exchange filling exchangeOrderID, marking it closed
// and publishing a RawFill to every WatchOrders subscriber for its symbol.
func (m *Exchange) Fill(exchangeOrderID string, filled, cost, feeCost decimal.Decimal, feeCurrency string) error {
	m.mu.Lock()
	o, ok := m.orders[exchangeOrderID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("mock: order %s not found", exchangeOrderID)
	}
	o.Status = "closed"
	o.Filled = filled
	o.Cost = cost
	o.FeeCost = feeCost
	o.FeeCurrency = feeCurrency
	fill := core.RawFill{
		ExchangeOrderID: o.ExchangeOrderID,
		Symbol:          o.Symbol,
		Side:            o.Side,
		Status:          "closed",
		Price:           o.Price,
		Amount:          o.Amount,
		Filled:          filled,
		Cost:            cost,
		FeeCost:         feeCost,
		FeeCurrency:     feeCurrency,
		Timestamp:       time.Now(),
	}
	watchers := append([]chan core.RawFill(nil), m.orderWatchers[o.Symbol]...)
	m.mu.Unlock()

	for _, ch := range watchers {
		ch <- fill
	}
	return nil
}

// PushTicker simulates a live price tick, publishing to every WatchTicker
// subscriber for symbol and updating FetchTicker's view.
func (m *Exchange) PushTicker(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	m.tickers[symbol] = core.Ticker{Symbol: symbol, Price: price, Timestamp: time.Now()}
	watchers := append([]chan core.Ticker(nil), m.tickerWatchers[symbol]...)
	m.mu.Unlock()

	tick := core.Ticker{Symbol: symbol, Price: price, Timestamp: time.Now()}
	for _, ch := range watchers {
		ch <- tick
	}
}

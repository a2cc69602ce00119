package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// Logger is the structured-logging capability every domain component takes.
// Implemented by internal/logging.ZapLogger.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// PlaceOrderRequest is the normalized order-placement request sent to Exchange.
type PlaceOrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderKind
	Amount        decimal.Decimal
	Price         decimal.Decimal // zero for market orders
	ClientOrderID string
}

// ExchangeOrder is the normalized response to a PlaceOrder/GetOrder/GetOpenOrders call.
type ExchangeOrder struct {
	ExchangeOrderID string
	ClientOrderID   string
	Symbol          string
	Side            Side
	Status          string
	Price           decimal.Decimal
	Amount          decimal.Decimal
	Filled          decimal.Decimal
	Cost            decimal.Decimal
	FeeCost         decimal.Decimal
	FeeCurrency     string
}

// ErrorCategory classifies an Exchange error per spec §6.
type ErrorCategory string

const (
	ErrCategoryNetwork          ErrorCategory = "Network"
	ErrCategoryInsufficientFund ErrorCategory = "InsufficientFunds"
	ErrCategoryInvalidOrder     ErrorCategory = "InvalidOrder"
	ErrCategoryOther            ErrorCategory = "Other"
)

// ExchangeError wraps an exchange failure with its category so callers can
// decide retryability without parsing error strings more than once.
type ExchangeError struct {
	Category ErrorCategory
	Err      error
}

func (e *ExchangeError) Error() string { return e.Err.Error() }
func (e *ExchangeError) Unwrap() error { return e.Err }

// Exchange is the capability interface the core consumes; it is consumed,
// not specified, per spec §6; no wire protocol lives in this module.
type Exchange interface {
	Name() string

	FetchBalance(ctx context.Context) (map[string]decimal.Decimal, error)
	FetchFreeBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	FetchOrder(ctx context.Context, exchangeOrderID, symbol string) (ExchangeOrder, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]ExchangeOrder, error)

	CreateOrder(ctx context.Context, req PlaceOrderRequest) (ExchangeOrder, error)
	CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error

	AmountToPrecision(ctx context.Context, symbol string, amount decimal.Decimal) (decimal.Decimal, error)
	PriceToPrecision(ctx context.Context, symbol string, price decimal.Decimal) (decimal.Decimal, error)
	Market(ctx context.Context, symbol string) (SymbolInfo, error)

	WatchOrders(ctx context.Context, symbol string) (<-chan RawFill, error)
	WatchTicker(ctx context.Context, symbol string) (<-chan Ticker, error)
}

// Repository is the transactional persistence capability. Every mutating
// method is expected to run inside the caller-managed transaction returned
// by Begin; Repository.Begin acquires the write lock up front (BEGIN
// IMMEDIATE) so a transactional lookup-then-update plays the role of
// "SELECT ... FOR UPDATE" against SQLite's single-writer model (spec §9).
type Repository interface {
	Begin(ctx context.Context) (Tx, error)

	ListActiveConfigs(ctx context.Context) ([]Config, error)
	GetConfig(ctx context.Context, id string) (Config, error)
	SetConfigActive(ctx context.Context, id string, active bool) error
}

// Tx is a single transactional unit of work. Callers must call exactly one
// of Commit or Rollback.
type Tx interface {
	Commit() error
	Rollback() error

	GetConfig(ctx context.Context, id string) (Config, error)
	SetConfigActive(ctx context.Context, id string, active bool) error

	GetOpenCycle(ctx context.Context, configID string) (Cycle, bool, error)
	InsertCycle(ctx context.Context, c Cycle) error
	UpdateCycle(ctx context.Context, c Cycle) error

	InsertOrder(ctx context.Context, o Order) error
	UpdateOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, id string) error
	GetOrderByExchangeID(ctx context.Context, exchangeOrderID string) (Order, bool, error)
	GetOrder(ctx context.Context, id string) (Order, bool, error)
	ListOrdersByCycle(ctx context.Context, cycleID string) ([]Order, error)
	ListActiveOrPendingOrders(ctx context.Context, cycleID string) ([]Order, error)
}

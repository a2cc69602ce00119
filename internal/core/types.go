// Package core defines the domain types and capability interfaces shared by
// every component of the DCA grid trading engine.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes a safety-ladder buy from the single take-profit sell.
type OrderType string

const (
	OrderTypeBuySafety OrderType = "BUY_SAFETY"
	OrderTypeSellTP    OrderType = "SELL_TP"
)

// OrderStatus is the lifecycle state of a persisted Order row.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusActive   OrderStatus = "ACTIVE"
	OrderStatusPartial  OrderStatus = "PARTIAL"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// CycleStatus is the lifecycle state of a DCA cycle.
type CycleStatus string

const (
	CycleStatusOpen   CycleStatus = "OPEN"
	CycleStatusClosed CycleStatus = "CLOSED"
)

// Side is the exchange order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderKind is the exchange order kind.
type OrderKind string

const (
	KindLimit  OrderKind = "limit"
	KindMarket OrderKind = "market"
)

// Config holds one user's bot parameters. See spec §3 for field invariants.
type Config struct {
	ID                    string
	UserID                string
	Symbol                string
	APIKey                Secret
	APISecret             Secret
	TotalBudget           decimal.Decimal
	GridLevels            int
	GridLengthPct         decimal.Decimal
	FirstOrderOffsetPct   decimal.Decimal
	VolumeScalePct        decimal.Decimal
	GridShiftThresholdPct decimal.Decimal
	TakeProfitPct         decimal.Decimal
	TrailingEnabled       bool
	TrailingCallbackPct   decimal.Decimal
	TrailingMinProfitPct  decimal.Decimal
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Cycle is one DCA round for a Config. See spec §3 for invariants.
type Cycle struct {
	ID                       string
	ConfigID                 string
	Status                   CycleStatus
	TotalBaseQty             decimal.Decimal
	TotalQuoteSpent          decimal.Decimal
	AvgPrice                 decimal.Decimal
	InitialFirstOrderPrice   decimal.Decimal
	CurrentTPOrderID         string // exchange order id of the live SELL_TP, empty when none
	CurrentTPPrice           decimal.Decimal
	AccumulatedDust          decimal.Decimal
	TrailingActive           bool
	MaxPriceTracked          decimal.Decimal
	TrailingActivationPrice  decimal.Decimal
	TrailingActivationTime   time.Time
	EmergencyExit            bool
	EmergencyExitReason      string
	EmergencyExitTime        time.Time
	ProfitQuote              decimal.Decimal
	CreatedAt                time.Time
	ClosedAt                 time.Time
}

// Order is one exchange order row. See spec §3 for invariants.
type Order struct {
	ID              string
	CycleID         string
	ExchangeOrderID string // empty when not yet placed
	OrderType       OrderType
	OrderIndex      int // rung position; -1 for TP
	Price           decimal.Decimal
	Amount          decimal.Decimal
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GridInput parameterizes GridCalculator. See spec §4.1.
type GridInput struct {
	CurrentPrice      decimal.Decimal
	TotalBudget       decimal.Decimal
	GridLevels        int
	GridLengthPct     decimal.Decimal
	FirstOrderOffset  decimal.Decimal
	VolumeScalePct    decimal.Decimal
	AmountPrecision   int32
	PricePrecision    int32
}

// Rung is one rung of the safety-buy ladder, emitted by GridCalculator.
type Rung struct {
	Index       int
	Price       decimal.Decimal
	AmountQuote decimal.Decimal
	AmountBase  decimal.Decimal
}

// RawFill is the normalized shape of an order-stream update delivered by the
// exchange, regardless of wire format.
type RawFill struct {
	ExchangeOrderID string
	Symbol          string
	Side            Side
	Status          string // exchange-native status string, e.g. "closed", "filled", "canceled"
	Price           decimal.Decimal
	Amount          decimal.Decimal // originally requested amount
	Filled          decimal.Decimal // cumulative filled amount
	Cost            decimal.Decimal // exchange-reported quote cost, may be zero/unset
	FeeCost         decimal.Decimal
	FeeCurrency     string
	Timestamp       time.Time
}

// IsCloseLike reports whether the fill should be treated as terminal per
// spec §4.3: status closed/filled, or filled within 1% of the requested amount.
func (f RawFill) IsCloseLike() bool {
	switch f.Status {
	case "closed", "filled":
		return true
	}
	if f.Amount.IsZero() {
		return false
	}
	threshold := f.Amount.Mul(decimal.NewFromFloat(0.99))
	return f.Filled.GreaterThanOrEqual(threshold)
}

// Ticker is a normalized price update from the exchange's ticker stream.
type Ticker struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// Candle is one OHLCV bar, used by the trailing-TP ATR calculation.
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// SymbolInfo carries exchange precision/notional metadata for a symbol.
type SymbolInfo struct {
	Symbol          string
	AmountPrecision int32
	PricePrecision  int32
	MinNotional     decimal.Decimal
	TakerFeeRate    decimal.Decimal
}

// RecoveryResult summarizes a Recovery pass, per spec §4.6.
type RecoveryResult struct {
	Recovered int
	Failed    int
	Duration  time.Duration
}

package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names, exported to Prometheus via the otel prometheus exporter.
const (
	MetricCyclesOpened       = "dcagrid_cycles_opened_total"
	MetricCyclesClosed       = "dcagrid_cycles_closed_total"
	MetricProfitQuoteTotal   = "dcagrid_profit_quote_total"
	MetricOrdersPlacedTotal  = "dcagrid_orders_placed_total"
	MetricFillsProcessed     = "dcagrid_fills_processed_total"
	MetricGridShiftsTotal    = "dcagrid_grid_shifts_total"
	MetricTrailingActivated  = "dcagrid_trailing_activated_total"
	MetricEmergencyExits     = "dcagrid_emergency_exits_total"
	MetricActiveSupervisors  = "dcagrid_active_supervisors"
	MetricAvgPrice           = "dcagrid_avg_price"
	MetricExchangeLatencyMs  = "dcagrid_exchange_latency_ms"
	MetricRecoveryDurationMs = "dcagrid_recovery_duration_ms"
)

// MetricsHolder holds the process's initialized instruments plus state
// backing the observable gauges.
type MetricsHolder struct {
	CyclesOpened       metric.Int64Counter
	CyclesClosed       metric.Int64Counter
	ProfitQuoteTotal   metric.Float64Counter
	OrdersPlacedTotal  metric.Int64Counter
	FillsProcessed     metric.Int64Counter
	GridShiftsTotal    metric.Int64Counter
	TrailingActivated  metric.Int64Counter
	EmergencyExits     metric.Int64Counter
	ActiveSupervisors  metric.Int64ObservableGauge
	AvgPrice           metric.Float64ObservableGauge
	ExchangeLatencyMs  metric.Float64Histogram
	RecoveryDurationMs metric.Float64Histogram

	mu               sync.RWMutex
	activeCount      int64
	avgPriceBySymbol map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the process-wide metrics singleton.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			avgPriceBySymbol: make(map[string]float64),
		}
	})
	return globalMetrics
}

// InitMetrics registers instruments against meter. Call once at startup.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.CyclesOpened, err = meter.Int64Counter(MetricCyclesOpened, metric.WithDescription("DCA cycles started")); err != nil {
		return err
	}
	if m.CyclesClosed, err = meter.Int64Counter(MetricCyclesClosed, metric.WithDescription("DCA cycles closed")); err != nil {
		return err
	}
	if m.ProfitQuoteTotal, err = meter.Float64Counter(MetricProfitQuoteTotal, metric.WithDescription("Cumulative realized profit in quote asset")); err != nil {
		return err
	}
	if m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Orders placed on the exchange")); err != nil {
		return err
	}
	if m.FillsProcessed, err = meter.Int64Counter(MetricFillsProcessed, metric.WithDescription("Fills processed by OrderLifecycle")); err != nil {
		return err
	}
	if m.GridShiftsTotal, err = meter.Int64Counter(MetricGridShiftsTotal, metric.WithDescription("Grid reconstructions triggered by upward drift")); err != nil {
		return err
	}
	if m.TrailingActivated, err = meter.Int64Counter(MetricTrailingActivated, metric.WithDescription("Trailing take-profit activations")); err != nil {
		return err
	}
	if m.EmergencyExits, err = meter.Int64Counter(MetricEmergencyExits, metric.WithDescription("Emergency market exits triggered by the dump detector")); err != nil {
		return err
	}
	if m.ExchangeLatencyMs, err = meter.Float64Histogram(MetricExchangeLatencyMs, metric.WithDescription("Exchange RPC latency"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if m.RecoveryDurationMs, err = meter.Float64Histogram(MetricRecoveryDurationMs, metric.WithDescription("Startup recovery pass duration"), metric.WithUnit("ms")); err != nil {
		return err
	}

	m.ActiveSupervisors, err = meter.Int64ObservableGauge(MetricActiveSupervisors, metric.WithDescription("Currently running BotSupervisor instances"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.activeCount)
			return nil
		}))
	if err != nil {
		return err
	}

	m.AvgPrice, err = meter.Float64ObservableGauge(MetricAvgPrice, metric.WithDescription("Current cycle avg_price per symbol"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, v := range m.avgPriceBySymbol {
				obs.Observe(v, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	return err
}

// SetActiveSupervisors updates the Registry-observed supervisor count.
func (m *MetricsHolder) SetActiveSupervisors(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCount = int64(n)
}

// SetAvgPrice records the current cycle's avg_price for symbol.
func (m *MetricsHolder) SetAvgPrice(symbol string, avgPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.avgPriceBySymbol[symbol] = avgPrice
}

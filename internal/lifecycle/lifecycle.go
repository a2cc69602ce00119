// Package lifecycle implements OrderLifecycle (spec §4.3): the single entry
// point that turns one raw exchange fill into the cycle/order state
// transitions for a BUY_SAFETY or SELL_TP leg, including TP replacement,
// dust carry-forward, and cycle close-and-restart.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dcagrid/internal/core"
	"dcagrid/internal/fees"
	"dcagrid/internal/tpstrategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)
var halfTakeProfitFloor = decimal.RequireFromString("0.5")

// FillOutcome tells the caller (BotSupervisor) what follow-up it owns.
// CycleClosed means the caller must tear down and restart streams via its
// own start_first_cycle, after the ~500ms settle gap spec §4.3 step 4 calls
// for; that orchestration lives one layer up to avoid a supervisor/
// lifecycle import cycle.
type FillOutcome struct {
	CycleClosed    bool
	TPPlaced       bool
	NextRungPlaced bool
}

// Handler is OrderLifecycle. One Handler is shared across all cycles; it
// carries no per-cycle state.
type Handler struct {
	exchange core.Exchange
	logger   core.Logger
}

func NewHandler(exchange core.Exchange, logger core.Logger) *Handler {
	return &Handler{exchange: exchange, logger: logger}
}

// HandleFill is the OrderLifecycle entry point. Callers must already have
// filtered to fills whose RawFill.IsCloseLike() is true. tx is caller-owned
// (recovery's missed-fill replay opens one per replayed fill);
// HandleFill commits or the caller rolls back on error, but never
// both; every return path below is explicit about which it took.
func (h *Handler) HandleFill(ctx context.Context, tx core.Tx, cfg core.Config, fill core.RawFill, info core.SymbolInfo) (FillOutcome, error) {
	order, found, err := tx.GetOrderByExchangeID(ctx, fill.ExchangeOrderID)
	if err != nil {
		return FillOutcome{}, fmt.Errorf("lifecycle: lookup order by exchange id: %w", err)
	}
	if !found {
		order, found, err = h.synthesizeFromLostTP(ctx, tx, cfg, fill)
		if err != nil {
			return FillOutcome{}, err
		}
		if !found {
			h.logger.Warn("fill matched no local order and no pending TP; dropped", "exchange_order_id", fill.ExchangeOrderID)
			return FillOutcome{}, tx.Commit()
		}
	}

	if order.Status == core.OrderStatusFilled {
		return FillOutcome{}, tx.Commit()
	}

	cycle, ok, err := tx.GetOpenCycle(ctx, cfg.ID)
	if err != nil {
		return FillOutcome{}, fmt.Errorf("lifecycle: load open cycle: %w", err)
	}
	if !ok {
		h.logger.Warn("fill for order with no open cycle", "order_id", order.ID)
		return FillOutcome{}, tx.Commit()
	}

	switch order.OrderType {
	case core.OrderTypeBuySafety:
		return h.handleBuySafetyFill(ctx, tx, cfg, cycle, order, fill, info)
	case core.OrderTypeSellTP:
		return h.handleSellTPFill(ctx, tx, cfg, cycle, order, fill, info)
	default:
		return FillOutcome{}, fmt.Errorf("lifecycle: unknown order type %q", order.OrderType)
	}
}

// synthesizeFromLostTP handles the case in spec §4.3: the TP was placed on
// the exchange but its local Order row never made it to disk (crash between
// placement and persistence). If the fill's exchange id matches the open
// cycle's current_tp_order_id, a SELL_TP row is synthesized so the normal
// branch can run.
func (h *Handler) synthesizeFromLostTP(ctx context.Context, tx core.Tx, cfg core.Config, fill core.RawFill) (core.Order, bool, error) {
	cycle, ok, err := tx.GetOpenCycle(ctx, cfg.ID)
	if err != nil {
		return core.Order{}, false, fmt.Errorf("lifecycle: load open cycle for TP recovery: %w", err)
	}
	if !ok || cycle.CurrentTPOrderID != fill.ExchangeOrderID {
		return core.Order{}, false, nil
	}

	now := time.Now()
	order := core.Order{
		ID:              uuid.NewString(),
		CycleID:         cycle.ID,
		ExchangeOrderID: fill.ExchangeOrderID,
		OrderType:       core.OrderTypeSellTP,
		OrderIndex:      -1,
		Price:           cycle.CurrentTPPrice,
		Amount:          fill.Amount,
		Status:          core.OrderStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		return core.Order{}, false, fmt.Errorf("lifecycle: synthesize lost TP row: %w", err)
	}
	return order, true, nil
}

func (h *Handler) handleBuySafetyFill(ctx context.Context, tx core.Tx, cfg core.Config, cycle core.Cycle, order core.Order, fill core.RawFill, info core.SymbolInfo) (FillOutcome, error) {
	base, quote := splitSymbol(cfg.Symbol)
	now := time.Now()

	order.Status = core.OrderStatusFilled
	order.UpdatedAt = now
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return FillOutcome{}, fmt.Errorf("lifecycle: mark buy order filled: %w", err)
	}

	feeBase := fees.BuyFeeBase(fill, base, quote)
	netQty := fill.Filled.Sub(feeBase)
	orderCost := fill.Cost
	if orderCost.IsZero() {
		orderCost = fill.Price.Mul(fill.Filled)
	}

	cycle.TotalBaseQty = cycle.TotalBaseQty.Add(netQty)
	cycle.TotalQuoteSpent = cycle.TotalQuoteSpent.Add(orderCost)
	if cycle.TotalBaseQty.Sign() > 0 {
		cycle.AvgPrice = cycle.TotalQuoteSpent.Div(cycle.TotalBaseQty)
	}

	if cycle.CurrentTPOrderID != "" {
		if err := h.cancelCurrentTP(ctx, tx, cfg, &cycle); err != nil {
			// cancelCurrentTP already exhausted exchangeio's own retry budget
			// and circuit breaker before returning here, so this is not a
			// transient blip to paper over. Commit the fill facts already
			// computed above (the order row is FILLED for good) and surface
			// the error undigested; a redelivery of this same fill will hit
			// the order.Status == FILLED guard above and stop, not retry TP
			// replacement. The cycle is left holding its old TP order and no
			// next rung; the grid shifter does not recenter it either, since
			// it skips any cycle whose rung 0 has filled. This path does not
			// try to self-heal.
			if commitErr := h.commitCycle(ctx, tx, cycle); commitErr != nil {
				return FillOutcome{}, commitErr
			}
			return FillOutcome{}, fmt.Errorf("lifecycle: cancel stale TP: %w: %w", core.ErrOrderCreation, err)
		}
	}

	available, err := h.exchange.FetchFreeBalance(ctx, base)
	if err != nil {
		if commitErr := h.commitCycle(ctx, tx, cycle); commitErr != nil {
			return FillOutcome{}, commitErr
		}
		return FillOutcome{}, fmt.Errorf("lifecycle: fetch free base balance: %w", err)
	}
	if available.Sign() <= 0 {
		if commitErr := h.commitCycle(ctx, tx, cycle); commitErr != nil {
			return FillOutcome{}, commitErr
		}
		return FillOutcome{}, fmt.Errorf("lifecycle: %w: free base balance is non-positive", core.ErrInsufficientBalance)
	}

	thresholds := fees.DefaultBalanceThresholds()
	deviation := fees.ClassifyDeviation(available, cycle.TotalBaseQty, thresholds)
	if deviation == fees.DeviationCritical {
		h.logger.Warn("critical free-balance deviation, aborting cycle progression",
			"cycle_id", cycle.ID, "available", available.String(), "expected", cycle.TotalBaseQty.String())
		if commitErr := h.commitCycle(ctx, tx, cycle); commitErr != nil {
			return FillOutcome{}, commitErr
		}
		return FillOutcome{}, fmt.Errorf("lifecycle: %w", core.ErrBalanceDeviation)
	}
	if deviation == fees.DeviationWarn {
		h.logger.Warn("free-balance deviation above warn threshold", "cycle_id", cycle.ID)
	}

	amountToSell := fees.AmountToSell(available, cycle.TotalBaseQty)
	dust := fees.FloorToPrecision(amountToSell, cycle.AccumulatedDust, info.AmountPrecision)
	cycle.AccumulatedDust = dust.NewDust
	sellable := dust.Sellable

	effectiveTPPct := tpstrategy.EffectiveTPPercent(cfg.TakeProfitPct, cycle.AvgPrice, cycle.TotalQuoteSpent, info.AmountPrecision)
	tpPrice := tpstrategy.TPPrice(cycle.AvgPrice, effectiveTPPct, info.PricePrecision)

	outcome := FillOutcome{}

	if !fees.CheckMinNotional(sellable, tpPrice, info.MinNotional) {
		if err := h.commitCycle(ctx, tx, cycle); err != nil {
			return FillOutcome{}, err
		}
		return outcome, nil
	}

	tpOrder, err := h.placeTP(ctx, tx, cfg, &cycle, sellable, tpPrice, now)
	if err != nil {
		if commitErr := h.commitCycle(ctx, tx, cycle); commitErr != nil {
			return FillOutcome{}, commitErr
		}
		return FillOutcome{}, fmt.Errorf("lifecycle: place take-profit: %w: %w", core.ErrOrderCreation, err)
	}
	outcome.TPPlaced = true
	_ = tpOrder

	if placed, err := h.placeNextRung(ctx, tx, cfg, cycle.ID, order.OrderIndex+1, info); err != nil {
		h.logger.Warn("next safety rung placement failed; rung left pending", "cycle_id", cycle.ID, "error", err.Error())
	} else {
		outcome.NextRungPlaced = placed
	}

	if err := h.commitCycle(ctx, tx, cycle); err != nil {
		return FillOutcome{}, err
	}
	return outcome, nil
}

func (h *Handler) cancelCurrentTP(ctx context.Context, tx core.Tx, cfg core.Config, cycle *core.Cycle) error {
	if err := h.exchange.CancelOrder(ctx, cycle.CurrentTPOrderID, cfg.Symbol); err != nil {
		return err
	}
	if oldTP, found, err := tx.GetOrderByExchangeID(ctx, cycle.CurrentTPOrderID); err == nil && found {
		oldTP.Status = core.OrderStatusCanceled
		oldTP.UpdatedAt = time.Now()
		if err := tx.UpdateOrder(ctx, oldTP); err != nil {
			return fmt.Errorf("mark old TP canceled: %w", err)
		}
	}
	cycle.CurrentTPOrderID = ""
	return nil
}

func (h *Handler) placeTP(ctx context.Context, tx core.Tx, cfg core.Config, cycle *core.Cycle, sellable, tpPrice decimal.Decimal, now time.Time) (core.Order, error) {
	exchOrder, err := h.exchange.CreateOrder(ctx, core.PlaceOrderRequest{
		Symbol: cfg.Symbol,
		Side:   core.SideSell,
		Type:   core.KindLimit,
		Price:  tpPrice,
		Amount: sellable,
	})
	if err != nil {
		return core.Order{}, err
	}

	tpOrder := core.Order{
		ID:              uuid.NewString(),
		CycleID:         cycle.ID,
		ExchangeOrderID: exchOrder.ExchangeOrderID,
		OrderType:       core.OrderTypeSellTP,
		OrderIndex:      -1,
		Price:           tpPrice,
		Amount:          sellable,
		Status:          core.OrderStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertOrder(ctx, tpOrder); err != nil {
		return core.Order{}, fmt.Errorf("persist TP order: %w", err)
	}
	cycle.CurrentTPOrderID = exchOrder.ExchangeOrderID
	cycle.CurrentTPPrice = tpPrice
	return tpOrder, nil
}

// placeNextRung activates the next PENDING safety rung, if one exists and
// clears min notional. Returns false (not an error) when there is nothing
// left to place, per spec §4.3 step 10's "skip silently".
func (h *Handler) placeNextRung(ctx context.Context, tx core.Tx, cfg core.Config, cycleID string, nextIndex int, info core.SymbolInfo) (bool, error) {
	orders, err := tx.ListOrdersByCycle(ctx, cycleID)
	if err != nil {
		return false, fmt.Errorf("list cycle orders: %w", err)
	}

	var next *core.Order
	for i := range orders {
		if orders[i].OrderType == core.OrderTypeBuySafety && orders[i].OrderIndex == nextIndex && orders[i].Status == core.OrderStatusPending {
			next = &orders[i]
			break
		}
	}
	if next == nil {
		return false, nil
	}
	if !fees.CheckMinNotional(next.Amount, next.Price, info.MinNotional) {
		return false, nil
	}

	exchOrder, err := h.exchange.CreateOrder(ctx, core.PlaceOrderRequest{
		Symbol: cfg.Symbol,
		Side:   core.SideBuy,
		Type:   core.KindLimit,
		Price:  next.Price,
		Amount: next.Amount,
	})
	if err != nil {
		return false, err
	}

	next.Status = core.OrderStatusActive
	next.ExchangeOrderID = exchOrder.ExchangeOrderID
	next.UpdatedAt = time.Now()
	if err := tx.UpdateOrder(ctx, *next); err != nil {
		return false, fmt.Errorf("persist activated rung: %w", err)
	}
	return true, nil
}

func (h *Handler) handleSellTPFill(ctx context.Context, tx core.Tx, cfg core.Config, cycle core.Cycle, order core.Order, fill core.RawFill, info core.SymbolInfo) (FillOutcome, error) {
	_, quote := splitSymbol(cfg.Symbol)
	now := time.Now()

	order.Status = core.OrderStatusFilled
	order.UpdatedAt = now
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return FillOutcome{}, fmt.Errorf("lifecycle: mark TP order filled: %w", err)
	}

	cycle.Status = core.CycleStatusClosed
	cycle.ClosedAt = now
	cycle.AccumulatedDust = decimal.Zero

	others, err := tx.ListOrdersByCycle(ctx, cycle.ID)
	if err != nil {
		return FillOutcome{}, fmt.Errorf("lifecycle: list cycle orders on close: %w", err)
	}
	for _, o := range others {
		if o.ID == order.ID || o.Status != core.OrderStatusActive {
			continue
		}
		if o.ExchangeOrderID != "" {
			if err := h.exchange.CancelOrder(ctx, o.ExchangeOrderID, cfg.Symbol); err != nil {
				h.logger.Warn("failed to cancel remaining order on cycle close", "order_id", o.ID, "error", err.Error())
				continue
			}
		}
		o.Status = core.OrderStatusCanceled
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return FillOutcome{}, fmt.Errorf("lifecycle: mark remaining order canceled: %w", err)
		}
	}

	quoteFee := fees.SellFeeQuote(fill, quote)
	received := fill.Cost
	if received.IsZero() {
		received = fill.Price.Mul(fill.Filled)
	}
	received = received.Sub(quoteFee)
	profit := received.Sub(cycle.TotalQuoteSpent)
	cycle.ProfitQuote = profit

	if cycle.TotalQuoteSpent.Sign() > 0 {
		actualProfitPct := profit.Div(cycle.TotalQuoteSpent).Mul(hundred)
		minExpected := cfg.TakeProfitPct.Mul(halfTakeProfitFloor)
		if actualProfitPct.LessThan(minExpected) {
			h.logger.Warn("actual profit below half of configured take-profit; not rolled back",
				"cycle_id", cycle.ID, "actual_profit_pct", actualProfitPct.String())
		}
	}

	if err := tx.UpdateCycle(ctx, cycle); err != nil {
		return FillOutcome{}, fmt.Errorf("lifecycle: persist closed cycle: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return FillOutcome{}, fmt.Errorf("lifecycle: commit cycle close: %w", err)
	}
	return FillOutcome{CycleClosed: true}, nil
}

func (h *Handler) commitCycle(ctx context.Context, tx core.Tx, cycle core.Cycle) error {
	if err := tx.UpdateCycle(ctx, cycle); err != nil {
		return fmt.Errorf("lifecycle: persist cycle: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lifecycle: commit: %w", err)
	}
	return nil
}

func splitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 {
		return symbol, ""
	}
	return parts[0], parts[1]
}

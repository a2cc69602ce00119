// Package supervisor implements BotSupervisor (spec §4.2): the long-running
// per-config activity that owns a cycle's order and ticker streams and
// dispatches their events into OrderLifecycle, GridShifter, and TPStrategy.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"dcagrid/internal/core"
	"dcagrid/internal/grid"
	"dcagrid/internal/gridshift"
	"dcagrid/internal/lifecycle"
	"dcagrid/internal/telemetry"
	"dcagrid/internal/tpstrategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultRestartGap     = 500 * time.Millisecond
	minFreeQuote          = "10"
	budgetSafetyFactor    = "0.99"
)

// BotSupervisor owns one config_id's live activity end to end: starting
// cycles, running the two cooperating watch_orders/watch_ticker tasks
// (spec §5), and restarting a fresh cycle after a SELL_TP close.
type BotSupervisor struct {
	exchange         core.Exchange
	repo             core.Repository
	logger           core.Logger
	lifecycleHandler *lifecycle.Handler
	shifter          *gridshift.Shifter
	priceCache       *PriceCache
	atrCache         *tpstrategy.ATRCache

	cfg core.Config

	reconnectDelay time.Duration
	restartGap     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// New constructs a BotSupervisor for cfg. priceCache is the shared,
// process-wide price map (spec §5); it is injected rather than owned so
// every supervisor in the Registry writes into the same map.
func New(exchange core.Exchange, repo core.Repository, logger core.Logger, cfg core.Config, priceCache *PriceCache) *BotSupervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &BotSupervisor{
		exchange:         exchange,
		repo:             repo,
		logger:           logger.WithField("config_id", cfg.ID),
		lifecycleHandler: lifecycle.NewHandler(exchange, logger),
		shifter:          gridshift.NewShifter(exchange, repo, logger),
		priceCache:       priceCache,
		atrCache:         tpstrategy.NewATRCache(),
		cfg:              cfg,
		reconnectDelay:   defaultReconnectDelay,
		restartGap:       defaultRestartGap,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start opens the first cycle for this config and launches the background
// run loop. The caller owns the returned error; a failure here
// means the config never went active.
func (s *BotSupervisor) Start() error {
	cycle, err := s.StartFirstCycle(s.ctx, s.cfg)
	if err != nil {
		return err
	}
	return s.Resume(cycle)
}

// Resume launches the run loop against an already-open cycle, used by
// Recovery after it reconciles a pre-existing OPEN cycle against the
// exchange instead of starting a fresh one.
func (s *BotSupervisor) Resume(cycle core.Cycle) error {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.run(s.ctx, cycle); err != nil && s.ctx.Err() == nil {
			s.logger.Error("supervisor run loop exited", "error", err.Error())
		}
	}()
	return nil
}

// Stop cancels streams and waits for the run loop to exit. Idempotent.
func (s *BotSupervisor) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// StartFirstCycle implements spec §4.2's start_first_cycle: caps the
// effective budget to what the exchange actually has free, computes the
// grid, persists it PENDING, places rung 0, and activates the config.
func (s *BotSupervisor) StartFirstCycle(ctx context.Context, cfg core.Config) (core.Cycle, error) {
	base, quote := splitSymbol(cfg.Symbol)

	freeQuote, err := s.exchange.FetchFreeBalance(ctx, quote)
	if err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: fetch free quote balance: %w", err)
	}
	if freeQuote.LessThan(decimal.RequireFromString(minFreeQuote)) {
		return core.Cycle{}, fmt.Errorf("supervisor: %w: free quote balance %s below minimum %s", core.ErrInsufficientBalance, freeQuote.String(), minFreeQuote)
	}
	effectiveBudget := decimal.Min(cfg.TotalBudget, freeQuote.Mul(decimal.RequireFromString(budgetSafetyFactor)))

	ticker, err := s.exchange.FetchTicker(ctx, cfg.Symbol)
	if err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: fetch ticker: %w", err)
	}
	info, err := s.exchange.Market(ctx, cfg.Symbol)
	if err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: fetch market info: %w", err)
	}

	rungs, err := grid.Calculate(core.GridInput{
		CurrentPrice:     ticker.Price,
		TotalBudget:      effectiveBudget,
		GridLevels:       cfg.GridLevels,
		GridLengthPct:    cfg.GridLengthPct,
		FirstOrderOffset: cfg.FirstOrderOffsetPct,
		VolumeScalePct:   cfg.VolumeScalePct,
		AmountPrecision:  info.AmountPrecision,
		PricePrecision:   info.PricePrecision,
	})
	if err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: compute grid: %w", err)
	}
	if len(rungs) == 0 {
		return core.Cycle{}, fmt.Errorf("supervisor: grid computed zero rungs")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	cycle := core.Cycle{
		ID:                     uuid.NewString(),
		ConfigID:               cfg.ID,
		Status:                 core.CycleStatusOpen,
		InitialFirstOrderPrice: rungs[0].Price,
		CreatedAt:              now,
	}
	if err := tx.InsertCycle(ctx, cycle); err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: insert cycle: %w", err)
	}

	orders := make([]core.Order, 0, len(rungs))
	for _, r := range rungs {
		orders = append(orders, core.Order{
			ID:         uuid.NewString(),
			CycleID:    cycle.ID,
			OrderType:  core.OrderTypeBuySafety,
			OrderIndex: r.Index,
			Price:      r.Price,
			Amount:     r.AmountBase,
			Status:     core.OrderStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	for _, o := range orders {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return core.Cycle{}, fmt.Errorf("supervisor: insert rung %d: %w", o.OrderIndex, err)
		}
	}

	rung0 := orders[0]
	exchOrder, err := s.exchange.CreateOrder(ctx, core.PlaceOrderRequest{
		Symbol: cfg.Symbol,
		Side:   core.SideBuy,
		Type:   core.KindLimit,
		Price:  rung0.Price,
		Amount: rung0.Amount,
	})
	if err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: place rung 0: %w: %w", core.ErrOrderCreation, err)
	}
	rung0.Status = core.OrderStatusActive
	rung0.ExchangeOrderID = exchOrder.ExchangeOrderID
	rung0.UpdatedAt = time.Now()
	if err := tx.UpdateOrder(ctx, rung0); err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: mark rung 0 active: %w", err)
	}

	if err := tx.SetConfigActive(ctx, cfg.ID, true); err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: set config active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Cycle{}, fmt.Errorf("supervisor: commit first cycle: %w", err)
	}

	telemetry.GetGlobalMetrics().CyclesOpened.Add(ctx, 1)
	telemetry.GetGlobalMetrics().OrdersPlacedTotal.Add(ctx, 1)
	s.logger.Info("first cycle started", "cycle_id", cycle.ID, "rung0_price", rung0.Price.String(), "base", base)
	return cycle, nil
}

// run is the outer cycle-restart loop: it drives one cycle to completion,
// and on a SELL_TP close, waits the teardown grace period (spec §4.3 step 4)
// before starting the next one.
func (s *BotSupervisor) run(ctx context.Context, cycle core.Cycle) error {
	for {
		closed, err := s.driveCycle(ctx, cycle)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if !closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.restartGap):
		}

		next, err := s.StartFirstCycle(ctx, s.cfg)
		if err != nil {
			return fmt.Errorf("supervisor: start next cycle: %w", err)
		}
		cycle = next
	}
}

// driveCycle runs watch_orders and watch_ticker concurrently under one
// cancellation token scoped to this cycle, per spec §5's scheduling model.
// Either task ending the cycle (a SELL_TP fill) cancels the other.
func (s *BotSupervisor) driveCycle(ctx context.Context, cycle core.Cycle) (bool, error) {
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr := &tpstrategy.Transient{Phase: tpstrategy.PhaseIdle}
	if cycle.TrailingActive {
		tr.Phase = tpstrategy.PhaseActive
		if info, err := s.exchange.Market(ctx, s.cfg.Symbol); err == nil {
			tr.EffectiveTPAtActivation = tpstrategy.EffectiveTPPercent(s.cfg.TakeProfitPct, cycle.AvgPrice, cycle.TotalQuoteSpent, info.AmountPrecision)
		}
	}

	var wg sync.WaitGroup
	results := make(chan cycleOutcome, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results <- s.watchOrders(cycleCtx, cancel, &cycle, tr)
	}()
	go func() {
		defer wg.Done()
		results <- s.watchTicker(cycleCtx, &cycle, tr)
	}()

	wg.Wait()
	close(results)

	var outcome cycleOutcome
	for r := range results {
		if r.err != nil {
			outcome.err = r.err
		}
		if r.closed {
			outcome.closed = true
		}
	}
	return outcome.closed, outcome.err
}

type cycleOutcome struct {
	closed bool
	err    error
}

// watchOrders is the watch_orders task: consumes order-stream events and
// routes close-like fills into OrderLifecycle. Reconnects with the spec's
// 5s backoff on stream error or closure.
func (s *BotSupervisor) watchOrders(ctx context.Context, cancelCycle context.CancelFunc, cycle *core.Cycle, tr *tpstrategy.Transient) cycleOutcome {
outer:
	for {
		ch, err := s.exchange.WatchOrders(ctx, s.cfg.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return cycleOutcome{}
			}
			s.logger.Warn("watch_orders subscribe failed, reconnecting", "error", err.Error())
			if !s.sleepOrDone(ctx) {
				return cycleOutcome{}
			}
			continue outer
		}

		for {
			select {
			case <-ctx.Done():
				return cycleOutcome{}
			case fill, ok := <-ch:
				if !ok {
					s.logger.Warn("watch_orders stream closed, reconnecting")
					if !s.sleepOrDone(ctx) {
						return cycleOutcome{}
					}
					continue outer
				}
				if !fill.IsCloseLike() {
					continue
				}
				closed, err := s.processFill(ctx, cycle, fill)
				if err != nil {
					s.logger.Error("handle_fill failed", "error", err.Error(), "exchange_order_id", fill.ExchangeOrderID)
					continue
				}
				if closed {
					cancelCycle()
					return cycleOutcome{closed: true}
				}
			}
		}
	}
}

// watchTicker is the watch_ticker task: updates the shared price cache and
// drives GridShifter and TPStrategy off every tick.
func (s *BotSupervisor) watchTicker(ctx context.Context, cycle *core.Cycle, tr *tpstrategy.Transient) cycleOutcome {
outer:
	for {
		ch, err := s.exchange.WatchTicker(ctx, s.cfg.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return cycleOutcome{}
			}
			s.logger.Warn("watch_ticker subscribe failed, reconnecting", "error", err.Error())
			if !s.sleepOrDone(ctx) {
				return cycleOutcome{}
			}
			continue outer
		}

		for {
			select {
			case <-ctx.Done():
				return cycleOutcome{}
			case tick, ok := <-ch:
				if !ok {
					s.logger.Warn("watch_ticker stream closed, reconnecting")
					if !s.sleepOrDone(ctx) {
						return cycleOutcome{}
					}
					continue outer
				}
				s.priceCache.Set(tick.Symbol, tick.Price)
				if err := s.processTick(ctx, cycle, tr, tick); err != nil {
					s.logger.Error("process tick failed", "error", err.Error())
				}
			}
		}
	}
}

// sleepOrDone waits the reconnect backoff, returning false if ctx ended first.
func (s *BotSupervisor) sleepOrDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.reconnectDelay):
		return true
	}
}

// processFill hands one close-like fill to OrderLifecycle inside its own
// transaction and reloads the in-memory cycle snapshot driveCycle's loops
// share, per the ticker/order interleaving guarantee in spec §5.
func (s *BotSupervisor) processFill(ctx context.Context, cycle *core.Cycle, fill core.RawFill) (bool, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("supervisor: begin transaction: %w", err)
	}
	info, err := s.exchange.Market(ctx, s.cfg.Symbol)
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("supervisor: fetch market info: %w", err)
	}

	outcome, err := s.lifecycleHandler.HandleFill(ctx, tx, s.cfg, fill, info)
	if err != nil {
		tx.Rollback()
		return false, err
	}

	telemetry.GetGlobalMetrics().FillsProcessed.Add(ctx, 1)
	if outcome.TPPlaced || outcome.NextRungPlaced {
		telemetry.GetGlobalMetrics().OrdersPlacedTotal.Add(ctx, 1)
	}
	if outcome.CycleClosed {
		telemetry.GetGlobalMetrics().CyclesClosed.Add(ctx, 1)
		return true, nil
	}

	refreshed, err := s.reloadCycle(ctx)
	if err != nil {
		s.logger.Warn("failed to reload cycle state after fill", "error", err.Error())
		return false, nil
	}
	*cycle = refreshed
	return false, nil
}

func (s *BotSupervisor) reloadCycle(ctx context.Context) (core.Cycle, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return core.Cycle{}, err
	}
	defer tx.Rollback()
	cycle, ok, err := tx.GetOpenCycle(ctx, s.cfg.ID)
	if err != nil {
		return core.Cycle{}, err
	}
	if !ok {
		return core.Cycle{}, fmt.Errorf("supervisor: no open cycle for config %s", s.cfg.ID)
	}
	return cycle, nil
}

// processTick evaluates one ticker update against GridShifter and
// TPStrategy, per spec §4.4/§4.5.
func (s *BotSupervisor) processTick(ctx context.Context, cycle *core.Cycle, tr *tpstrategy.Transient, tick core.Ticker) error {
	now := time.Now()
	telemetry.GetGlobalMetrics().SetAvgPrice(s.cfg.Symbol, cycle.AvgPrice.InexactFloat64())

	info, err := s.exchange.Market(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("supervisor: fetch market info: %w", err)
	}

	if err := s.maybeShiftGrid(ctx, cycle, tick.Price, now, info); err != nil {
		s.logger.Warn("grid shift check failed", "error", err.Error())
	}

	if !s.cfg.TrailingEnabled {
		return nil
	}

	atrPct, err := s.atrCache.Get(s.cfg.Symbol, now, func() ([]core.Candle, error) {
		return s.exchange.FetchOHLCV(ctx, s.cfg.Symbol, "5m", 14)
	})
	if err != nil {
		s.logger.Warn("atr fetch failed, using zero volatility", "error", err.Error())
		atrPct = decimal.Zero
	}

	result := tpstrategy.ProcessTick(&s.cfg, cycle, tr, tick.Price, now, atrPct, info.AmountPrecision)
	switch result.Action {
	case tpstrategy.ActionNone:
		return nil
	case tpstrategy.ActionActivateTrailing:
		telemetry.GetGlobalMetrics().TrailingActivated.Add(ctx, 1)
		return s.persistCycle(ctx, *cycle)
	case tpstrategy.ActionTriggerTrailingExit:
		return s.executeTrailingExit(ctx, cycle, result.ExitPrice)
	case tpstrategy.ActionTriggerEmergencyExit:
		telemetry.GetGlobalMetrics().EmergencyExits.Add(ctx, 1)
		return s.executeEmergencyExit(ctx, cycle, result.EmergencyMsg)
	}
	return nil
}

func (s *BotSupervisor) maybeShiftGrid(ctx context.Context, cycle *core.Cycle, price decimal.Decimal, now time.Time, info core.SymbolInfo) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	orders, err := tx.ListOrdersByCycle(ctx, cycle.ID)
	tx.Rollback()
	if err != nil {
		return err
	}

	var rung0 *core.Order
	for i := range orders {
		if orders[i].OrderType == core.OrderTypeBuySafety && orders[i].OrderIndex == 0 {
			rung0 = &orders[i]
			break
		}
	}
	if rung0 == nil {
		return nil
	}

	shifted, err := s.shifter.MaybeShift(ctx, &s.cfg, cycle, *rung0, price, now, info)
	if err != nil {
		return err
	}
	if shifted {
		telemetry.GetGlobalMetrics().GridShiftsTotal.Add(ctx, 1)
	}
	return nil
}

func (s *BotSupervisor) persistCycle(ctx context.Context, cycle core.Cycle) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.UpdateCycle(ctx, cycle); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// executeTrailingExit implements spec §4.4's normal trailing exit: cancel
// the live TP (after confirming it hasn't already filled concurrently) and
// replace it with a limit sell at exit_price for the full sellable amount.
func (s *BotSupervisor) executeTrailingExit(ctx context.Context, cycle *core.Cycle, exitPrice decimal.Decimal) error {
	if cycle.CurrentTPOrderID == "" {
		return nil
	}

	exOrder, err := s.exchange.FetchOrder(ctx, cycle.CurrentTPOrderID, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("supervisor: fetch current tp for trailing exit: %w", err)
	}
	if exOrder.Status == "closed" || exOrder.Status == "filled" {
		// Already filled concurrently; the fill event en route through
		// watch_orders will close the cycle. Nothing to replace.
		return nil
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.exchange.CancelOrder(ctx, cycle.CurrentTPOrderID, s.cfg.Symbol); err != nil {
		return fmt.Errorf("supervisor: cancel tp for trailing exit: %w", err)
	}
	if oldTP, found, err := tx.GetOrderByExchangeID(ctx, cycle.CurrentTPOrderID); err == nil && found {
		oldTP.Status = core.OrderStatusCanceled
		oldTP.UpdatedAt = time.Now()
		if err := tx.UpdateOrder(ctx, oldTP); err != nil {
			return fmt.Errorf("supervisor: mark old tp canceled: %w", err)
		}
	}

	sellable := exOrder.Amount.Sub(exOrder.Filled)
	if sellable.Sign() <= 0 {
		sellable = cycle.TotalBaseQty
	}

	newExch, err := s.exchange.CreateOrder(ctx, core.PlaceOrderRequest{
		Symbol: s.cfg.Symbol,
		Side:   core.SideSell,
		Type:   core.KindLimit,
		Price:  exitPrice,
		Amount: sellable,
	})
	if err != nil {
		return fmt.Errorf("supervisor: place trailing exit order: %w: %w", core.ErrOrderCreation, err)
	}

	now := time.Now()
	newTP := core.Order{
		ID:              uuid.NewString(),
		CycleID:         cycle.ID,
		ExchangeOrderID: newExch.ExchangeOrderID,
		OrderType:       core.OrderTypeSellTP,
		OrderIndex:      -1,
		Price:           exitPrice,
		Amount:          sellable,
		Status:          core.OrderStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertOrder(ctx, newTP); err != nil {
		return fmt.Errorf("supervisor: persist trailing exit order: %w", err)
	}

	cycle.CurrentTPOrderID = newExch.ExchangeOrderID
	cycle.CurrentTPPrice = exitPrice
	if err := tx.UpdateCycle(ctx, *cycle); err != nil {
		return fmt.Errorf("supervisor: persist cycle after trailing exit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("supervisor: commit trailing exit: %w", err)
	}

	s.logger.Info("trailing exit replaced tp", "cycle_id", cycle.ID, "exit_price", exitPrice.String())
	return nil
}

// executeEmergencyExit implements spec §4.4's dump detector response:
// cancel the TP and market-sell the full free base balance immediately.
func (s *BotSupervisor) executeEmergencyExit(ctx context.Context, cycle *core.Cycle, reason string) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if cycle.CurrentTPOrderID != "" {
		if err := s.exchange.CancelOrder(ctx, cycle.CurrentTPOrderID, s.cfg.Symbol); err != nil {
			return fmt.Errorf("supervisor: cancel tp for emergency exit: %w", err)
		}
		if oldTP, found, err := tx.GetOrderByExchangeID(ctx, cycle.CurrentTPOrderID); err == nil && found {
			oldTP.Status = core.OrderStatusCanceled
			oldTP.UpdatedAt = time.Now()
			if err := tx.UpdateOrder(ctx, oldTP); err != nil {
				return fmt.Errorf("supervisor: mark old tp canceled: %w", err)
			}
		}
		cycle.CurrentTPOrderID = ""
	}

	base, _ := splitSymbol(s.cfg.Symbol)
	available, err := s.exchange.FetchFreeBalance(ctx, base)
	if err != nil {
		return fmt.Errorf("supervisor: fetch free base for emergency exit: %w", err)
	}
	if available.Sign() <= 0 {
		return tx.Commit()
	}

	exchOrder, err := s.exchange.CreateOrder(ctx, core.PlaceOrderRequest{
		Symbol: s.cfg.Symbol,
		Side:   core.SideSell,
		Type:   core.KindMarket,
		Amount: available,
	})
	if err != nil {
		return fmt.Errorf("supervisor: place emergency market sell: %w: %w", core.ErrOrderCreation, err)
	}

	now := time.Now()
	emergencyOrder := core.Order{
		ID:              uuid.NewString(),
		CycleID:         cycle.ID,
		ExchangeOrderID: exchOrder.ExchangeOrderID,
		OrderType:       core.OrderTypeSellTP,
		OrderIndex:      -1,
		Amount:          available,
		Status:          core.OrderStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertOrder(ctx, emergencyOrder); err != nil {
		return fmt.Errorf("supervisor: persist emergency exit order: %w", err)
	}

	cycle.EmergencyExit = true
	cycle.EmergencyExitReason = reason
	cycle.EmergencyExitTime = now
	if err := tx.UpdateCycle(ctx, *cycle); err != nil {
		return fmt.Errorf("supervisor: persist cycle after emergency exit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("supervisor: commit emergency exit: %w", err)
	}

	s.logger.Warn("emergency exit executed", "cycle_id", cycle.ID, "reason", reason, "amount", available.String())
	return nil
}

func splitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 {
		return symbol, ""
	}
	return parts[0], parts[1]
}

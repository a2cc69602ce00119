// Package gridshift implements GridShifter (spec §4.5): the ticker-driven
// check that re-anchors an unfilled safety ladder when the market has
// drifted up far enough that rung 0 would never fill at its original price.
package gridshift

import (
	"context"
	"fmt"
	"time"

	"dcagrid/internal/core"
	"dcagrid/internal/grid"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const minShiftInterval = 15 * time.Second

var hundred = decimal.NewFromInt(100)

// Shifter reconstructs a cycle's safety ladder around the current price when
// the market has drifted away from the original rung 0.
type Shifter struct {
	exchange core.Exchange
	repo     core.Repository
	logger   core.Logger

	lastShiftAt map[string]time.Time // cycle ID -> last shift time, throttles bursty ticks
}

func NewShifter(exchange core.Exchange, repo core.Repository, logger core.Logger) *Shifter {
	return &Shifter{
		exchange:    exchange,
		repo:        repo,
		logger:      logger,
		lastShiftAt: make(map[string]time.Time),
	}
}

// MaybeShift evaluates one ticker update against the throttle and drift
// threshold, performing the shift transaction when both pass. Returns false
// when no shift was needed or the throttle suppressed it.
func (s *Shifter) MaybeShift(ctx context.Context, cfg *core.Config, cycle *core.Cycle, rung0 core.Order, currentPrice decimal.Decimal, now time.Time, info core.SymbolInfo) (bool, error) {
	if rung0.Status == core.OrderStatusFilled {
		return false, nil
	}
	if last, ok := s.lastShiftAt[cycle.ID]; ok && now.Sub(last) < minShiftInterval {
		return false, nil
	}

	reference := cycle.InitialFirstOrderPrice
	if reference.IsZero() {
		reference = rung0.Price
	}
	if reference.Sign() <= 0 {
		return false, fmt.Errorf("gridshift: reference price is non-positive for cycle %s", cycle.ID)
	}

	idealEntry := currentPrice.Mul(decimal.NewFromInt(1).Sub(cfg.FirstOrderOffsetPct.Div(hundred)))
	driftPct := idealEntry.Sub(reference).Div(reference).Mul(hundred)
	if driftPct.LessThan(cfg.GridShiftThresholdPct) {
		return false, nil
	}

	if err := s.shift(ctx, cfg, cycle, currentPrice, info); err != nil {
		return false, err
	}
	s.lastShiftAt[cycle.ID] = now
	return true, nil
}

func (s *Shifter) shift(ctx context.Context, cfg *core.Config, cycle *core.Cycle, currentPrice decimal.Decimal, info core.SymbolInfo) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("gridshift: begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := tx.ListOrdersByCycle(ctx, cycle.ID)
	if err != nil {
		return fmt.Errorf("gridshift: list cycle orders: %w", err)
	}

	for _, o := range existing {
		if o.OrderType != core.OrderTypeBuySafety || o.Status == core.OrderStatusFilled {
			continue
		}
		if o.ExchangeOrderID != "" {
			if err := s.exchange.CancelOrder(ctx, o.ExchangeOrderID, cfg.Symbol); err != nil {
				return fmt.Errorf("gridshift: cancel order %s: %w", o.ExchangeOrderID, err)
			}
		}
		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return fmt.Errorf("gridshift: delete unfilled rung %s: %w", o.ID, err)
		}
	}

	rungs, err := grid.Calculate(core.GridInput{
		CurrentPrice:     currentPrice,
		TotalBudget:      cfg.TotalBudget,
		GridLevels:       cfg.GridLevels,
		GridLengthPct:    cfg.GridLengthPct,
		FirstOrderOffset: cfg.FirstOrderOffsetPct,
		VolumeScalePct:   cfg.VolumeScalePct,
		AmountPrecision:  info.AmountPrecision,
		PricePrecision:   info.PricePrecision,
	})
	if err != nil {
		return fmt.Errorf("gridshift: recompute grid: %w", err)
	}

	newOrders := make([]core.Order, 0, len(rungs))
	now := time.Now()
	for _, r := range rungs {
		newOrders = append(newOrders, core.Order{
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
	for _, o := range newOrders {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("gridshift: insert rung %d: %w", o.OrderIndex, err)
		}
	}

	rung0 := newOrders[0]
	exchOrder, err := s.exchange.CreateOrder(ctx, core.PlaceOrderRequest{
		Symbol: cfg.Symbol,
		Side:   core.SideBuy,
		Type:   core.KindLimit,
		Price:  rung0.Price,
		Amount: rung0.Amount,
	})
	if err != nil {
		return fmt.Errorf("gridshift: place rung 0: %w", err)
	}

	rung0.Status = core.OrderStatusActive
	rung0.ExchangeOrderID = exchOrder.ExchangeOrderID
	rung0.UpdatedAt = time.Now()
	if err := tx.UpdateOrder(ctx, rung0); err != nil {
		return fmt.Errorf("gridshift: mark rung 0 active: %w", err)
	}

	cycle.InitialFirstOrderPrice = rung0.Price
	if err := tx.UpdateCycle(ctx, *cycle); err != nil {
		return fmt.Errorf("gridshift: update cycle anchor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("gridshift: commit: %w", err)
	}

	s.logger.Info("grid shifted", "cycle_id", cycle.ID, "new_rung0_price", rung0.Price.String())
	return nil
}

// Package recovery implements the Recovery pass (spec §4.6): run once at
// process startup, before any supervisor begins, to reconcile every
// active config's local order state against the exchange and replay any
// fills that were missed while the process was down.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"dcagrid/internal/core"
	"dcagrid/internal/lifecycle"
	"dcagrid/internal/registry"
	"dcagrid/internal/supervisor"
	"dcagrid/internal/telemetry"
	"dcagrid/pkg/concurrency"
	"dcagrid/pkg/retry"
)

// ExchangeFactory builds the authenticated exchange session for one
// config. Per spec §5, no exchange handle is shared between bots; each
// recovered (or freshly started) bot gets its own.
type ExchangeFactory func(cfg core.Config) (core.Exchange, error)

// Runner performs the startup Recovery pass across every active Config.
type Runner struct {
	repo       core.Repository
	newExch    ExchangeFactory
	reg        *registry.Registry
	priceCache *supervisor.PriceCache
	logger     core.Logger
	maxWorkers int
}

func NewRunner(repo core.Repository, newExch ExchangeFactory, reg *registry.Registry, priceCache *supervisor.PriceCache, logger core.Logger) *Runner {
	return &Runner{
		repo:       repo,
		newExch:    newExch,
		reg:        reg,
		priceCache: priceCache,
		logger:     logger.WithField("component", "recovery"),
		maxWorkers: 8,
	}
}

// Run reconciles every Config with is_active = true, fanning the per-bot
// work out across a bounded pool so one slow exchange doesn't stall the
// rest of the fleet, then registers a live BotSupervisor for each one that
// recovered cleanly.
func (r *Runner) Run(ctx context.Context) (core.RecoveryResult, error) {
	start := time.Now()
	configs, err := r.repo.ListActiveConfigs(ctx)
	if err != nil {
		return core.RecoveryResult{}, fmt.Errorf("recovery: list active configs: %w", err)
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "recovery",
		MaxWorkers:  r.maxWorkers,
		MaxCapacity: len(configs) + 1,
	}, r.logger)
	defer pool.Stop()

	var recovered, failed int32
	for _, cfg := range configs {
		cfg := cfg
		if err := pool.Submit(func() {
			if err := r.recoverOne(ctx, cfg); err != nil {
				r.logger.Error("bot recovery failed, deactivating", "config_id", cfg.ID, "error", err.Error())
				if setErr := r.repo.SetConfigActive(ctx, cfg.ID, false); setErr != nil {
					r.logger.Error("failed to deactivate config after recovery failure", "config_id", cfg.ID, "error", setErr.Error())
				}
				atomic.AddInt32(&failed, 1)
				return
			}
			atomic.AddInt32(&recovered, 1)
		}); err != nil {
			r.logger.Error("failed to submit recovery task", "config_id", cfg.ID, "error", err.Error())
			atomic.AddInt32(&failed, 1)
		}
	}
	pool.Stop()

	result := core.RecoveryResult{
		Recovered: int(recovered),
		Failed:    int(failed),
		Duration:  time.Since(start),
	}
	telemetry.GetGlobalMetrics().RecoveryDurationMs.Record(ctx, float64(result.Duration.Milliseconds()))
	r.logger.Info("recovery pass complete", "recovered", result.Recovered, "failed", result.Failed, "duration", result.Duration.String())
	return result, nil
}

// recoverOne reconciles a single config, per spec §4.6 steps 1-4, and, on
// success, registers a new BotSupervisor for it (step 5). Any error here
// is the caller's signal to deactivate the config rather than abort the
// whole pass.
func (r *Runner) recoverOne(ctx context.Context, cfg core.Config) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("recovery: panic recovering config %s: %v", cfg.ID, p)
		}
	}()

	exch, err := r.newExch(cfg)
	if err != nil {
		return fmt.Errorf("recovery: build exchange session: %w", err)
	}

	sup := supervisor.New(exch, r.repo, r.logger, cfg, r.priceCache)
	handler := lifecycle.NewHandler(exch, r.logger)

	cycle, hasOpenCycle, err := r.reconcile(ctx, exch, handler, cfg)
	if err != nil {
		return err
	}

	if !hasOpenCycle {
		if _, err := sup.StartFirstCycle(ctx, cfg); err != nil {
			return fmt.Errorf("recovery: start fresh cycle: %w", err)
		}
	} else if err := sup.Resume(cycle); err != nil {
		return fmt.Errorf("recovery: resume cycle: %w", err)
	}

	r.reg.Add(cfg.ID, sup)
	return nil
}

// reconcile implements spec §4.6 steps 1-4: locate the most recent open
// cycle, reconcile every locally active/pending order against the
// exchange (replaying each missed fill in its own transaction; fills are
// not batched into one shared transaction),
// then re-check whether the cycle is still open. The bool return reports
// whether a still-open cycle exists for the caller to Resume into.
func (r *Runner) reconcile(ctx context.Context, exch core.Exchange, handler *lifecycle.Handler, cfg core.Config) (core.Cycle, bool, error) {
	var info core.SymbolInfo
	err := retry.Do(ctx, retry.DefaultPolicy, isTransientExchangeErr, func() error {
		var fetchErr error
		info, fetchErr = exch.Market(ctx, cfg.Symbol)
		return fetchErr
	})
	if err != nil {
		return core.Cycle{}, false, fmt.Errorf("recovery: fetch market info: %w", err)
	}

	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return core.Cycle{}, false, fmt.Errorf("recovery: begin transaction: %w", err)
	}
	cycle, ok, err := tx.GetOpenCycle(ctx, cfg.ID)
	if err != nil {
		tx.Rollback()
		return core.Cycle{}, false, fmt.Errorf("recovery: load open cycle: %w", err)
	}
	if !ok {
		tx.Rollback()
		return core.Cycle{}, false, nil
	}

	orders, err := tx.ListActiveOrPendingOrders(ctx, cycle.ID)
	if err != nil {
		tx.Rollback()
		return core.Cycle{}, false, fmt.Errorf("recovery: list active orders: %w", err)
	}
	tx.Rollback()

	cycleClosed := false
	for _, order := range orders {
		if order.ExchangeOrderID == "" {
			continue
		}
		exOrder, err := exch.FetchOrder(ctx, order.ExchangeOrderID, cfg.Symbol)
		if err != nil {
			if isNotFoundOrCanceled(err) {
				if cancelErr := r.cancelLocalOrder(ctx, order.ID); cancelErr != nil {
					return core.Cycle{}, false, cancelErr
				}
				continue
			}
			return core.Cycle{}, false, fmt.Errorf("recovery: fetch exchange order %s: %w", order.ExchangeOrderID, err)
		}

		switch exOrder.Status {
		case "closed", "filled":
			closed, err := r.replayFill(ctx, handler, cfg, order, exOrder, info)
			if err != nil {
				return core.Cycle{}, false, err
			}
			if closed {
				cycleClosed = true
			}
		case "canceled", "rejected", "expired":
			if err := r.cancelLocalOrder(ctx, order.ID); err != nil {
				return core.Cycle{}, false, err
			}
		}
	}

	if cycleClosed {
		return core.Cycle{}, false, nil
	}

	tx2, err := r.repo.Begin(ctx)
	if err != nil {
		return core.Cycle{}, false, fmt.Errorf("recovery: begin reload transaction: %w", err)
	}
	defer tx2.Rollback()
	fresh, ok, err := tx2.GetOpenCycle(ctx, cfg.ID)
	if err != nil {
		return core.Cycle{}, false, fmt.Errorf("recovery: reload cycle: %w", err)
	}
	return fresh, ok, nil
}

// replayFill synthesizes a RawFill from the exchange's view of a closed
// order and feeds it through the normal handler, in its own transaction
// (the handler owns commit/rollback, per its own contract).
func (r *Runner) replayFill(ctx context.Context, handler *lifecycle.Handler, cfg core.Config, order core.Order, exOrder core.ExchangeOrder, info core.SymbolInfo) (bool, error) {
	fill := core.RawFill{
		ExchangeOrderID: exOrder.ExchangeOrderID,
		Symbol:          cfg.Symbol,
		Status:          "closed",
		Price:           exOrder.Price,
		Amount:          exOrder.Amount,
		Filled:          exOrder.Filled,
		Cost:            exOrder.Cost,
		FeeCost:         exOrder.FeeCost,
		FeeCurrency:     exOrder.FeeCurrency,
		Timestamp:       time.Now(),
	}

	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("recovery: begin replay transaction: %w", err)
	}
	outcome, err := handler.HandleFill(ctx, tx, cfg, fill, info)
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("recovery: replay missed fill for order %s: %w", order.ID, err)
	}
	telemetry.GetGlobalMetrics().FillsProcessed.Add(ctx, 1)
	return outcome.CycleClosed, nil
}

func (r *Runner) cancelLocalOrder(ctx context.Context, orderID string) error {
	tx, err := r.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("recovery: begin cancel transaction: %w", err)
	}
	order, ok, err := tx.GetOrder(ctx, orderID)
	if err != nil || !ok {
		tx.Rollback()
		if err != nil {
			return fmt.Errorf("recovery: load order to cancel: %w", err)
		}
		return nil
	}
	order.Status = core.OrderStatusCanceled
	if err := tx.UpdateOrder(ctx, order); err != nil {
		tx.Rollback()
		return fmt.Errorf("recovery: mark order canceled: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recovery: commit cancel: %w", err)
	}
	return nil
}

func isNotFoundOrCanceled(err error) bool {
	var exchErr *core.ExchangeError
	return errors.As(err, &exchErr) && exchErr.Category == core.ErrCategoryInvalidOrder
}

// isTransientExchangeErr reports whether a startup market-info fetch is
// worth retrying: network blips are, permanent rejections aren't, and an
// unclassified error fails safe toward retrying.
func isTransientExchangeErr(err error) bool {
	var exchErr *core.ExchangeError
	if !errors.As(err, &exchErr) {
		return true
	}
	return exchErr.Category == core.ErrCategoryNetwork || exchErr.Category == core.ErrCategoryOther
}

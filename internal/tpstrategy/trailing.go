package tpstrategy

import (
	"time"

	"dcagrid/internal/core"

	"github.com/shopspring/decimal"
)

// Phase is the trailing-TP tagged union: Idle (TP order resting, untouched),
// Pending (price has touched the TP once but activation is unconfirmed), or
// Active (trailing is live and MaxPriceTracked is being ratcheted up).
// Only Active is persisted on the Cycle (TrailingActive); Idle and Pending
// collapse to TrailingActive=false and are distinguished only by the
// per-process Transient below, since losing pending-touch progress across a
// restart is harmless: the next tick simply re-touches.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseActive
)

const (
	confirmTouches   = 3
	confirmMinDelay  = 30 * time.Second
	confirmPriceRatio = "1.002" // price must clear tp_price by 0.2% to confirm activation on its own
)

// Transient holds the per-process, non-persisted bookkeeping for activation
// confirmation and the dump detector. The owning BotSupervisor creates one
// per driven cycle; it is never written to the Repository.
type Transient struct {
	Phase                   Phase
	TouchCount              int
	FirstTouchAt            time.Time
	History                 []pricePoint // rolling window for emergency dump detection
	LastExitAt              time.Time    // rate-limits normal trailing-exit triggers
	EffectiveTPAtActivation decimal.Decimal
}

type pricePoint struct {
	price decimal.Decimal
	at    time.Time
}

const dumpHistoryLen = 12
const dumpLookback = 6
const dumpDropPct = "2"
const exitRateLimit = 10 * time.Second

// Action is what ProcessTick asks the caller to do as a result of one tick.
type Action int

const (
	ActionNone Action = iota
	ActionActivateTrailing
	ActionUpdateTPPrice
	ActionTriggerTrailingExit
	ActionTriggerEmergencyExit
)

// TickResult is the outcome of feeding one ticker update through the
// trailing-TP state machine. ExitPrice is set only on
// ActionTriggerTrailingExit, the price the caller should place the
// replacement limit sell at; an emergency exit is a market order and carries
// no price.
type TickResult struct {
	Action       Action
	ExitPrice    decimal.Decimal
	EmergencyMsg string
}

// ProcessTick advances the trailing-TP state machine for one price tick.
// cycle is mutated in place to reflect Active-state projections
// (MaxPriceTracked, TrailingActivationPrice/Time); callers persist it via the
// Repository when Action != ActionNone.
//
// The emergency monitor runs first, on every tick, regardless of which
// phase the state machine below is in: a dump or a slow bleed below
// min-profit is exactly as dangerous while still Idle/Pending (price below
// the TP, inventory fully exposed) as it is once trailing is Active.
func ProcessTick(cfg *core.Config, cycle *core.Cycle, tr *Transient, price decimal.Decimal, now time.Time, atrPct decimal.Decimal, amountPrecision int32) TickResult {
	if !cfg.TrailingEnabled {
		return TickResult{Action: ActionNone}
	}

	tr.pushHistory(price, now)
	if msg, hit := checkEmergencyExit(tr, price, minProfitPrice(cfg, cycle, tr)); hit {
		return TickResult{Action: ActionTriggerEmergencyExit, EmergencyMsg: msg}
	}

	switch tr.Phase {
	case PhaseIdle:
		if price.GreaterThanOrEqual(cycle.CurrentTPPrice) {
			tr.Phase = PhasePending
			tr.TouchCount = 1
			tr.FirstTouchAt = now
		}
		return TickResult{Action: ActionNone}

	case PhasePending:
		if price.LessThan(cycle.CurrentTPPrice) {
			tr.Phase = PhaseIdle
			tr.TouchCount = 0
			return TickResult{Action: ActionNone}
		}
		tr.TouchCount++
		margin := cycle.CurrentTPPrice.Mul(decimal.RequireFromString(confirmPriceRatio))
		confirmed := tr.TouchCount >= confirmTouches ||
			price.GreaterThanOrEqual(margin) ||
			now.Sub(tr.FirstTouchAt) > confirmMinDelay
		if !confirmed {
			return TickResult{Action: ActionNone}
		}
		tr.Phase = PhaseActive
		tr.History = nil
		tr.EffectiveTPAtActivation = EffectiveTPPercent(cfg.TakeProfitPct, cycle.AvgPrice, cycle.TotalQuoteSpent, amountPrecision)
		cycle.TrailingActive = true
		cycle.MaxPriceTracked = maxDec(cycle.CurrentTPPrice, price)
		cycle.TrailingActivationPrice = price
		cycle.TrailingActivationTime = now
		return TickResult{Action: ActionActivateTrailing}

	case PhaseActive:
		return processActive(cfg, cycle, tr, price, now, atrPct)
	}
	return TickResult{Action: ActionNone}
}

func processActive(cfg *core.Config, cycle *core.Cycle, tr *Transient, price decimal.Decimal, now time.Time, atrPct decimal.Decimal) TickResult {
	if price.GreaterThan(cycle.MaxPriceTracked) {
		cycle.MaxPriceTracked = price
	}

	callbackPct := AdaptiveCallbackPct(cfg.TrailingCallbackPct, atrPct)
	callbackPrice := cycle.MaxPriceTracked.Mul(decimal.NewFromInt(1).Sub(callbackPct.Div(hundred)))

	exitPrice := maxDec(callbackPrice, minProfitPrice(cfg, cycle, tr))
	// A retracement only counts once the tracked peak has actually cleared
	// the exit threshold; otherwise the position never had the unrealized
	// profit the exit is supposed to be locking in.
	if cycle.MaxPriceTracked.LessThanOrEqual(exitPrice) || price.GreaterThan(exitPrice) {
		return TickResult{Action: ActionNone}
	}
	if now.Sub(tr.LastExitAt) < exitRateLimit && !tr.LastExitAt.IsZero() {
		return TickResult{Action: ActionNone}
	}
	tr.LastExitAt = now
	return TickResult{Action: ActionTriggerTrailingExit, ExitPrice: exitPrice}
}

// minProfitPrice is the price floor below which any further retracement is
// cutting into principal rather than giving back unrealized profit. Before
// activation tr.EffectiveTPAtActivation is still zero, so this falls back
// to the plain configured trailing_min_profit_pct.
func minProfitPrice(cfg *core.Config, cycle *core.Cycle, tr *Transient) decimal.Decimal {
	adaptiveMinProfitPct := maxDec(cfg.TrailingMinProfitPct, tr.EffectiveTPAtActivation.Mul(decimal.RequireFromString("0.66")))
	return cycle.AvgPrice.Mul(decimal.NewFromInt(1).Add(adaptiveMinProfitPct.Div(hundred)))
}

// checkEmergencyExit implements both dump-detector triggers: the price
// dropping below 0.995·minProfitPrice (a slow bleed the sample window below
// would miss), and the latest sample against the one dumpLookback samples
// earlier dropping more than dumpDropPct (a sharp retracement sharp enough
// that waiting for the ordinary callback would give back most of the
// position's profit).
func checkEmergencyExit(tr *Transient, price, minProfitPrice decimal.Decimal) (string, bool) {
	threshold := minProfitPrice.Mul(decimal.RequireFromString("0.995"))
	if price.LessThan(threshold) {
		return "Below min_profit", true
	}

	if len(tr.History) <= dumpLookback {
		return "", false
	}
	current := tr.History[len(tr.History)-1].price
	prior := tr.History[len(tr.History)-1-dumpLookback].price
	if prior.Sign() <= 0 {
		return "", false
	}
	dropPct := prior.Sub(current).Div(prior).Mul(hundred)
	if dropPct.GreaterThan(decimal.RequireFromString(dumpDropPct)) {
		return "Dump detected", true
	}
	return "", false
}

func (tr *Transient) pushHistory(price decimal.Decimal, at time.Time) {
	tr.History = append(tr.History, pricePoint{price: price, at: at})
	if len(tr.History) > dumpHistoryLen {
		tr.History = tr.History[len(tr.History)-dumpHistoryLen:]
	}
}

package repository

import (
	"database/sql"
	"fmt"
	"time"

	"dcagrid/internal/core"
)

const cycleSelectColumns = `SELECT
	id, config_id, status, total_base_qty, total_quote_spent, avg_price,
	initial_first_order_price, current_tp_order_id, current_tp_price,
	accumulated_dust, trailing_active, max_price_tracked,
	trailing_activation_price, trailing_activation_time,
	emergency_exit, emergency_exit_reason, emergency_exit_time,
	profit_quote, created_at, closed_at`

func scanCycle(row rowScanner) (core.Cycle, error) {
	var c core.Cycle
	var status string
	var totalBaseQty, totalQuoteSpent, avgPrice, initialFirstOrderPrice string
	var currentTPPrice, accumulatedDust, maxPriceTracked, trailingActivationPrice string
	var profitQuote string
	var trailingActive, emergencyExit int64
	var trailingActivationTime, emergencyExitTime sql.NullInt64
	var createdAt int64
	var closedAt sql.NullInt64

	err := row.Scan(
		&c.ID, &c.ConfigID, &status, &totalBaseQty, &totalQuoteSpent, &avgPrice,
		&initialFirstOrderPrice, &c.CurrentTPOrderID, &currentTPPrice,
		&accumulatedDust, &trailingActive, &maxPriceTracked,
		&trailingActivationPrice, &trailingActivationTime,
		&emergencyExit, &c.EmergencyExitReason, &emergencyExitTime,
		&profitQuote, &createdAt, &closedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Cycle{}, fmt.Errorf("repository: cycle not found: %w", core.ErrNotFound)
		}
		return core.Cycle{}, fmt.Errorf("repository: scan cycle: %w", err)
	}

	c.Status = core.CycleStatus(status)
	c.TrailingActive = trailingActive != 0
	c.EmergencyExit = emergencyExit != 0
	c.TrailingActivationTime = nullUnixToTime(trailingActivationTime)
	c.EmergencyExitTime = nullUnixToTime(emergencyExitTime)
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.ClosedAt = nullUnixToTime(closedAt)

	if c.TotalBaseQty, err = parseDecimal(totalBaseQty); err != nil {
		return core.Cycle{}, err
	}
	if c.TotalQuoteSpent, err = parseDecimal(totalQuoteSpent); err != nil {
		return core.Cycle{}, err
	}
	if c.AvgPrice, err = parseDecimal(avgPrice); err != nil {
		return core.Cycle{}, err
	}
	if c.InitialFirstOrderPrice, err = parseDecimal(initialFirstOrderPrice); err != nil {
		return core.Cycle{}, err
	}
	if c.CurrentTPPrice, err = parseDecimal(currentTPPrice); err != nil {
		return core.Cycle{}, err
	}
	if c.AccumulatedDust, err = parseDecimal(accumulatedDust); err != nil {
		return core.Cycle{}, err
	}
	if c.MaxPriceTracked, err = parseDecimal(maxPriceTracked); err != nil {
		return core.Cycle{}, err
	}
	if c.TrailingActivationPrice, err = parseDecimal(trailingActivationPrice); err != nil {
		return core.Cycle{}, err
	}
	if c.ProfitQuote, err = parseDecimal(profitQuote); err != nil {
		return core.Cycle{}, err
	}
	return c, nil
}

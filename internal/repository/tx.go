package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dcagrid/internal/core"
)

// Tx wraps a single *sql.Conn pinned for the lifetime of a BEGIN IMMEDIATE
// transaction. Every method must run against conn, never db, or it would
// escape the lock the transaction is holding.
type Tx struct {
	conn *sql.Conn
	done bool
}

func (t *Tx) finish(stmt string) error {
	if t.done {
		return nil
	}
	t.done = true
	_, err := t.conn.ExecContext(context.Background(), stmt)
	closeErr := t.conn.Close()
	if err != nil {
		return fmt.Errorf("repository: %s: %w", stmt, err)
	}
	return closeErr
}

func (t *Tx) Commit() error   { return t.finish("COMMIT") }
func (t *Tx) Rollback() error { return t.finish("ROLLBACK") }

func (t *Tx) GetConfig(ctx context.Context, id string) (core.Config, error) {
	row := t.conn.QueryRowContext(ctx, configSelectColumns+" FROM configs WHERE id = ?", id)
	return scanConfig(row)
}

func (t *Tx) SetConfigActive(ctx context.Context, id string, active bool) error {
	_, err := t.conn.ExecContext(ctx, "UPDATE configs SET is_active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("repository: set config active: %w", err)
	}
	return nil
}

func (t *Tx) GetOpenCycle(ctx context.Context, configID string) (core.Cycle, bool, error) {
	row := t.conn.QueryRowContext(ctx,
		cycleSelectColumns+" FROM cycles WHERE config_id = ? AND status = ?", configID, core.CycleStatusOpen)
	c, err := scanCycle(row)
	if err != nil {
		if isNotFound(err) {
			return core.Cycle{}, false, nil
		}
		return core.Cycle{}, false, err
	}
	return c, true, nil
}

func (t *Tx) InsertCycle(ctx context.Context, c core.Cycle) error {
	_, err := t.conn.ExecContext(ctx, `INSERT INTO cycles (
		id, config_id, status, total_base_qty, total_quote_spent, avg_price,
		initial_first_order_price, current_tp_order_id, current_tp_price,
		accumulated_dust, trailing_active, max_price_tracked,
		trailing_activation_price, trailing_activation_time,
		emergency_exit, emergency_exit_reason, emergency_exit_time,
		profit_quote, created_at, closed_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ConfigID, string(c.Status), c.TotalBaseQty.String(), c.TotalQuoteSpent.String(), c.AvgPrice.String(),
		c.InitialFirstOrderPrice.String(), c.CurrentTPOrderID, c.CurrentTPPrice.String(),
		c.AccumulatedDust.String(), boolToInt(c.TrailingActive), c.MaxPriceTracked.String(),
		c.TrailingActivationPrice.String(), timeToNullUnix(c.TrailingActivationTime),
		boolToInt(c.EmergencyExit), c.EmergencyExitReason, timeToNullUnix(c.EmergencyExitTime),
		c.ProfitQuote.String(), c.CreatedAt.UnixNano(), timeToNullUnix(c.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("repository: insert cycle: %w", err)
	}
	return nil
}

func (t *Tx) UpdateCycle(ctx context.Context, c core.Cycle) error {
	_, err := t.conn.ExecContext(ctx, `UPDATE cycles SET
		status = ?, total_base_qty = ?, total_quote_spent = ?, avg_price = ?,
		initial_first_order_price = ?, current_tp_order_id = ?, current_tp_price = ?,
		accumulated_dust = ?, trailing_active = ?, max_price_tracked = ?,
		trailing_activation_price = ?, trailing_activation_time = ?,
		emergency_exit = ?, emergency_exit_reason = ?, emergency_exit_time = ?,
		profit_quote = ?, closed_at = ?
	WHERE id = ?`,
		string(c.Status), c.TotalBaseQty.String(), c.TotalQuoteSpent.String(), c.AvgPrice.String(),
		c.InitialFirstOrderPrice.String(), c.CurrentTPOrderID, c.CurrentTPPrice.String(),
		c.AccumulatedDust.String(), boolToInt(c.TrailingActive), c.MaxPriceTracked.String(),
		c.TrailingActivationPrice.String(), timeToNullUnix(c.TrailingActivationTime),
		boolToInt(c.EmergencyExit), c.EmergencyExitReason, timeToNullUnix(c.EmergencyExitTime),
		c.ProfitQuote.String(), timeToNullUnix(c.ClosedAt),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("repository: update cycle: %w", err)
	}
	return nil
}

func (t *Tx) InsertOrder(ctx context.Context, o core.Order) error {
	_, err := t.conn.ExecContext(ctx, `INSERT INTO orders (
		id, cycle_id, exchange_order_id, order_type, order_index, price, amount,
		status, created_at, updated_at
	) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.CycleID, o.ExchangeOrderID, string(o.OrderType), o.OrderIndex, o.Price.String(), o.Amount.String(),
		string(o.Status), o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("repository: insert order: %w", err)
	}
	return nil
}

func (t *Tx) UpdateOrder(ctx context.Context, o core.Order) error {
	_, err := t.conn.ExecContext(ctx, `UPDATE orders SET
		exchange_order_id = ?, order_type = ?, price = ?, amount = ?,
		status = ?, updated_at = ?
	WHERE id = ?`,
		o.ExchangeOrderID, string(o.OrderType), o.Price.String(), o.Amount.String(),
		string(o.Status), o.UpdatedAt.UnixNano(), o.ID,
	)
	if err != nil {
		return fmt.Errorf("repository: update order: %w", err)
	}
	return nil
}

func (t *Tx) DeleteOrder(ctx context.Context, id string) error {
	_, err := t.conn.ExecContext(ctx, "DELETE FROM orders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("repository: delete order: %w", err)
	}
	return nil
}

func (t *Tx) GetOrderByExchangeID(ctx context.Context, exchangeOrderID string) (core.Order, bool, error) {
	row := t.conn.QueryRowContext(ctx, orderSelectColumns+" FROM orders WHERE exchange_order_id = ?", exchangeOrderID)
	o, err := scanOrder(row)
	if err != nil {
		if isNotFound(err) {
			return core.Order{}, false, nil
		}
		return core.Order{}, false, err
	}
	return o, true, nil
}

func (t *Tx) GetOrder(ctx context.Context, id string) (core.Order, bool, error) {
	row := t.conn.QueryRowContext(ctx, orderSelectColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if err != nil {
		if isNotFound(err) {
			return core.Order{}, false, nil
		}
		return core.Order{}, false, err
	}
	return o, true, nil
}

func (t *Tx) ListOrdersByCycle(ctx context.Context, cycleID string) ([]core.Order, error) {
	rows, err := t.conn.QueryContext(ctx, orderSelectColumns+" FROM orders WHERE cycle_id = ? ORDER BY order_index", cycleID)
	if err != nil {
		return nil, fmt.Errorf("repository: list orders by cycle: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (t *Tx) ListActiveOrPendingOrders(ctx context.Context, cycleID string) ([]core.Order, error) {
	rows, err := t.conn.QueryContext(ctx,
		orderSelectColumns+" FROM orders WHERE cycle_id = ? AND status IN (?, ?) ORDER BY order_index",
		cycleID, core.OrderStatusActive, core.OrderStatusPending)
	if err != nil {
		return nil, fmt.Errorf("repository: list active or pending orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]core.Order, error) {
	var out []core.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}

package repository

import (
	"database/sql"
	"fmt"
	"time"

	"dcagrid/internal/core"
)

const orderSelectColumns = `SELECT
	id, cycle_id, exchange_order_id, order_type, order_index, price, amount,
	status, created_at, updated_at`

func scanOrder(row rowScanner) (core.Order, error) {
	var o core.Order
	var orderType, status string
	var price, amount string
	var createdAt, updatedAt int64

	err := row.Scan(
		&o.ID, &o.CycleID, &o.ExchangeOrderID, &orderType, &o.OrderIndex, &price, &amount,
		&status, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Order{}, fmt.Errorf("repository: order not found: %w", core.ErrNotFound)
		}
		return core.Order{}, fmt.Errorf("repository: scan order: %w", err)
	}

	o.OrderType = core.OrderType(orderType)
	o.Status = core.OrderStatus(status)
	o.CreatedAt = time.Unix(0, createdAt).UTC()
	o.UpdatedAt = time.Unix(0, updatedAt).UTC()

	if o.Price, err = parseDecimal(price); err != nil {
		return core.Order{}, err
	}
	if o.Amount, err = parseDecimal(amount); err != nil {
		return core.Order{}, err
	}
	return o, nil
}

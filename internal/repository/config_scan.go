package repository

import (
	"database/sql"
	"fmt"
	"time"

	"dcagrid/internal/core"
)

const configSelectColumns = `SELECT
	id, user_id, symbol, api_key, api_secret, total_budget, grid_levels,
	grid_length_pct, first_order_offset_pct, volume_scale_pct,
	grid_shift_threshold_pct, take_profit_pct, trailing_enabled,
	trailing_callback_pct, trailing_min_profit_pct, is_active,
	created_at, updated_at`

// rowScanner abstracts over *sql.Row and *sql.Rows so scanConfig can serve
// both a single-row lookup and a list query.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (core.Config, error) {
	var cfg core.Config
	var apiKey, apiSecret string
	var totalBudget, gridLengthPct, firstOrderOffsetPct, volumeScalePct string
	var gridShiftThresholdPct, takeProfitPct, trailingCallbackPct, trailingMinProfitPct string
	var trailingEnabled, isActive int64
	var createdAt, updatedAt int64

	err := row.Scan(
		&cfg.ID, &cfg.UserID, &cfg.Symbol, &apiKey, &apiSecret, &totalBudget, &cfg.GridLevels,
		&gridLengthPct, &firstOrderOffsetPct, &volumeScalePct,
		&gridShiftThresholdPct, &takeProfitPct, &trailingEnabled,
		&trailingCallbackPct, &trailingMinProfitPct, &isActive,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Config{}, fmt.Errorf("repository: config not found: %w", core.ErrNotFound)
		}
		return core.Config{}, fmt.Errorf("repository: scan config: %w", err)
	}

	cfg.APIKey = core.Secret(apiKey)
	cfg.APISecret = core.Secret(apiSecret)
	cfg.TrailingEnabled = trailingEnabled != 0
	cfg.IsActive = isActive != 0
	cfg.CreatedAt = time.Unix(0, createdAt).UTC()
	cfg.UpdatedAt = time.Unix(0, updatedAt).UTC()

	if cfg.TotalBudget, err = parseDecimal(totalBudget); err != nil {
		return core.Config{}, err
	}
	if cfg.GridLengthPct, err = parseDecimal(gridLengthPct); err != nil {
		return core.Config{}, err
	}
	if cfg.FirstOrderOffsetPct, err = parseDecimal(firstOrderOffsetPct); err != nil {
		return core.Config{}, err
	}
	if cfg.VolumeScalePct, err = parseDecimal(volumeScalePct); err != nil {
		return core.Config{}, err
	}
	if cfg.GridShiftThresholdPct, err = parseDecimal(gridShiftThresholdPct); err != nil {
		return core.Config{}, err
	}
	if cfg.TakeProfitPct, err = parseDecimal(takeProfitPct); err != nil {
		return core.Config{}, err
	}
	if cfg.TrailingCallbackPct, err = parseDecimal(trailingCallbackPct); err != nil {
		return core.Config{}, err
	}
	if cfg.TrailingMinProfitPct, err = parseDecimal(trailingMinProfitPct); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}

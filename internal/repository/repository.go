// Package repository implements the Repository/Tx persistence contract
// (internal/core.Repository, internal/core.Tx) over SQLite, using BEGIN
// IMMEDIATE to emulate row-level locking against SQLite's single-writer
// model (spec §9).
package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"dcagrid/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Repository opens and owns the SQLite connection pool for the process.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if absent) the database at path, enables WAL mode
// for crash recovery, and applies the embedded schema.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("repository: enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("repository: enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("repository: set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("repository: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

// Begin acquires the write lock up front via BEGIN IMMEDIATE, pinning a
// single pooled connection so every statement inside the transaction runs
// against it; this is the "SELECT ... FOR UPDATE" substitute spec §9 calls
// for against a database with no native row locking.
func (r *Repository) Begin(ctx context.Context) (core.Tx, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("repository: begin immediate: %w", err)
	}
	return &Tx{conn: conn}, nil
}

func (r *Repository) ListActiveConfigs(ctx context.Context) ([]core.Config, error) {
	rows, err := r.db.QueryContext(ctx, configSelectColumns+" FROM configs WHERE is_active = 1")
	if err != nil {
		return nil, fmt.Errorf("repository: list active configs: %w", err)
	}
	defer rows.Close()

	var out []core.Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (r *Repository) GetConfig(ctx context.Context, id string) (core.Config, error) {
	row := r.db.QueryRowContext(ctx, configSelectColumns+" FROM configs WHERE id = ?", id)
	return scanConfig(row)
}

func (r *Repository) SetConfigActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE configs SET is_active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("repository: set config active: %w", err)
	}
	return nil
}

// InsertConfig persists a new bot configuration. Configs are created by
// the owning user (out of scope here, spec §3); this is the write path a
// future API layer, seed script, or test harness uses to create one.
func (r *Repository) InsertConfig(ctx context.Context, cfg core.Config) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO configs (
		id, user_id, symbol, api_key, api_secret, total_budget, grid_levels,
		grid_length_pct, first_order_offset_pct, volume_scale_pct,
		grid_shift_threshold_pct, take_profit_pct, trailing_enabled,
		trailing_callback_pct, trailing_min_profit_pct, is_active,
		created_at, updated_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		cfg.ID, cfg.UserID, cfg.Symbol, cfg.APIKey.Reveal(), cfg.APISecret.Reveal(), cfg.TotalBudget.String(), cfg.GridLevels,
		cfg.GridLengthPct.String(), cfg.FirstOrderOffsetPct.String(), cfg.VolumeScalePct.String(),
		cfg.GridShiftThresholdPct.String(), cfg.TakeProfitPct.String(), boolToInt(cfg.TrailingEnabled),
		cfg.TrailingCallbackPct.String(), cfg.TrailingMinProfitPct.String(), boolToInt(cfg.IsActive),
		cfg.CreatedAt.UnixNano(), cfg.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("repository: insert config: %w", err)
	}
	return nil
}

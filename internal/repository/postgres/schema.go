package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements holds the DDL for every table the BI layer owns. Each
// statement is idempotent so `stockbi migrate` can run on every deploy.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		reference_product_id TEXT PRIMARY KEY,
		name                 TEXT NOT NULL DEFAULT '',
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS daily_stock_metrics (
		day                         DATE NOT NULL,
		reference_product_id        TEXT NOT NULL,
		opening_total_qty           DOUBLE PRECISION NOT NULL DEFAULT 0,
		closing_total_qty           DOUBLE PRECISION NOT NULL DEFAULT 0,
		opening_available_qty       DOUBLE PRECISION NOT NULL DEFAULT 0,
		closing_available_qty       DOUBLE PRECISION NOT NULL DEFAULT 0,
		opening_sell_price          DOUBLE PRECISION,
		closing_sell_price          DOUBLE PRECISION,
		daily_total_variation       DOUBLE PRECISION NOT NULL DEFAULT 0,
		daily_available_variation   DOUBLE PRECISION NOT NULL DEFAULT 0,
		closing_sales_value         DOUBLE PRECISION NOT NULL DEFAULT 0,
		daily_sales_value_variation DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_available_qty           DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_available_qty           DOUBLE PRECISION NOT NULL DEFAULT 0,
		snapshots_count             INTEGER NOT NULL DEFAULT 0,
		first_snapshot_at           TIMESTAMPTZ NOT NULL,
		last_snapshot_at            TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (day, reference_product_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_stock_metrics_day ON daily_stock_metrics (day)`,

	`CREATE TABLE IF NOT EXISTS bi_inventory_kpi_daily (
		day                             DATE PRIMARY KEY,
		products_total                  INTEGER NOT NULL DEFAULT 0,
		products_in_stock               INTEGER NOT NULL DEFAULT 0,
		products_out_of_stock           INTEGER NOT NULL DEFAULT 0,
		inventory_qty_closing_total     DOUBLE PRECISION NOT NULL DEFAULT 0,
		inventory_value_opening_total   DOUBLE PRECISION NOT NULL DEFAULT 0,
		inventory_value_closing_total   DOUBLE PRECISION NOT NULL DEFAULT 0,
		inventory_value_variation_total DOUBLE PRECISION NOT NULL DEFAULT 0,
		snapshots_total                 INTEGER NOT NULL DEFAULT 0,
		imports_span_minutes            INTEGER
	)`,

	`CREATE TABLE IF NOT EXISTS bi_product_velocity_current (
		reference_product_id     TEXT PRIMARY KEY,
		calculated_for_day       DATE NOT NULL,
		out_qty_7d               DOUBLE PRECISION NOT NULL DEFAULT 0,
		out_qty_30d              DOUBLE PRECISION NOT NULL DEFAULT 0,
		out_qty_90d              DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_out_qty_7d           DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_out_qty_30d          DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_out_qty_90d          DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_movement_day        DATE,
		days_since_last_movement INTEGER
	)`,

	`CREATE TABLE IF NOT EXISTS bi_inventory_alert_candidates_daily (
		day                  DATE NOT NULL,
		reference_product_id TEXT NOT NULL,
		product_name         VARCHAR(490) NOT NULL DEFAULT '',
		closing_qty          DOUBLE PRECISION NOT NULL DEFAULT 0,
		closing_price        DOUBLE PRECISION,
		stock_value          DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_out_30d          DOUBLE PRECISION NOT NULL DEFAULT 0,
		days_left_estimate   DOUBLE PRECISION,
		risk_level           VARCHAR(2) NOT NULL,
		reason_flags         JSONB NOT NULL DEFAULT '[]',
		PRIMARY KEY (day, reference_product_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alert_candidates_day_risk ON bi_inventory_alert_candidates_daily (day, risk_level)`,

	`CREATE TABLE IF NOT EXISTS bi_pipeline_runs (
		id            UUID PRIMARY KEY,
		stage         TEXT NOT NULL,
		day           DATE NOT NULL,
		status        TEXT NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ,
		error_message TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bi_pipeline_runs_day ON bi_pipeline_runs (day, stage)`,
}

// Migrate applies the schema through a plain database/sql handle (the migrate
// command opens one with the pgx stdlib driver).
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

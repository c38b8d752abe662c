// internal/repository/kpi_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/jmoiron/sqlx"
)

type KpiRepository interface {
	Upsert(ctx context.Context, kpi *domain.DailyKpi) error
	GetByDay(ctx context.Context, day time.Time) (*domain.DailyKpi, error)
	GetAvailableDays(ctx context.Context, limit int) ([]time.Time, error)
}

type kpiRepository struct {
	db *sqlx.DB
}

func NewKpiRepository(db *sqlx.DB) KpiRepository {
	return &kpiRepository{db: db}
}

func (r *kpiRepository) Upsert(ctx context.Context, kpi *domain.DailyKpi) error {
	query := `
		INSERT INTO bi_inventory_kpi_daily (
			day, products_total, products_in_stock, products_out_of_stock,
			inventory_qty_closing_total, inventory_value_opening_total,
			inventory_value_closing_total, inventory_value_variation_total,
			snapshots_total, imports_span_minutes
		) VALUES (
			:day, :products_total, :products_in_stock, :products_out_of_stock,
			:inventory_qty_closing_total, :inventory_value_opening_total,
			:inventory_value_closing_total, :inventory_value_variation_total,
			:snapshots_total, :imports_span_minutes
		)
		ON CONFLICT (day) DO UPDATE SET
			products_total = EXCLUDED.products_total,
			products_in_stock = EXCLUDED.products_in_stock,
			products_out_of_stock = EXCLUDED.products_out_of_stock,
			inventory_qty_closing_total = EXCLUDED.inventory_qty_closing_total,
			inventory_value_opening_total = EXCLUDED.inventory_value_opening_total,
			inventory_value_closing_total = EXCLUDED.inventory_value_closing_total,
			inventory_value_variation_total = EXCLUDED.inventory_value_variation_total,
			snapshots_total = EXCLUDED.snapshots_total,
			imports_span_minutes = EXCLUDED.imports_span_minutes
	`

	if _, err := r.db.NamedExecContext(ctx, query, kpi); err != nil {
		return fmt.Errorf("error upserting daily kpi: %w", err)
	}
	return nil
}

func (r *kpiRepository) GetByDay(ctx context.Context, day time.Time) (*domain.DailyKpi, error) {
	query := `
		SELECT day, products_total, products_in_stock, products_out_of_stock,
		       inventory_qty_closing_total, inventory_value_opening_total,
		       inventory_value_closing_total, inventory_value_variation_total,
		       snapshots_total, imports_span_minutes
		FROM bi_inventory_kpi_daily
		WHERE day = $1
	`

	kpi := &domain.DailyKpi{}
	err := r.db.GetContext(ctx, kpi, query, asDay(day))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting daily kpi: %w", err)
	}
	return kpi, nil
}

func (r *kpiRepository) GetAvailableDays(ctx context.Context, limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = 30
	}

	query := `
		SELECT day
		FROM bi_inventory_kpi_daily
		ORDER BY day DESC
		LIMIT $1
	`

	var days []time.Time
	if err := r.db.SelectContext(ctx, &days, query, limit); err != nil {
		return nil, fmt.Errorf("error getting available kpi days: %w", err)
	}
	return days, nil
}

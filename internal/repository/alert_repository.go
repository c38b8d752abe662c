// internal/repository/alert_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/jmoiron/sqlx"
)

const alertInsertChunkSize = 500

// AlertSource is one day's metric row joined with the product's current
// velocity and catalog name, ready for classification. Missing velocity
// defaults avg_out_30d to zero.
type AlertSource struct {
	ReferenceProductID string   `db:"reference_product_id"`
	ProductName        string   `db:"product_name"`
	ClosingQty         float64  `db:"closing_qty"`
	ClosingPrice       *float64 `db:"closing_price"`
	OpeningPrice       *float64 `db:"opening_price"`
	AvgOut30d          float64  `db:"avg_out_30d"`
}

type AlertRepository interface {
	ListSources(ctx context.Context, day time.Time) ([]AlertSource, error)
	ReplaceForDay(ctx context.Context, day time.Time, candidates []*domain.AlertCandidate) error
	ListForDay(ctx context.Context, day time.Time) ([]domain.AlertCandidate, error)
}

type alertRepository struct {
	db *sqlx.DB
}

func NewAlertRepository(db *sqlx.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) ListSources(ctx context.Context, day time.Time) ([]AlertSource, error) {
	query := `
		SELECT m.reference_product_id,
		       COALESCE(p.name, '') AS product_name,
		       m.closing_available_qty AS closing_qty,
		       m.closing_sell_price AS closing_price,
		       m.opening_sell_price AS opening_price,
		       COALESCE(v.avg_out_qty_30d, 0) AS avg_out_30d
		FROM daily_stock_metrics m
		LEFT JOIN bi_product_velocity_current v
		       ON v.reference_product_id = m.reference_product_id
		LEFT JOIN products p
		       ON p.reference_product_id = m.reference_product_id
		WHERE m.day = $1
	`

	var sources []AlertSource
	if err := r.db.SelectContext(ctx, &sources, query, asDay(day)); err != nil {
		return nil, fmt.Errorf("error listing alert sources: %w", err)
	}
	return sources, nil
}

// ReplaceForDay deletes every candidate row for the day and bulk-inserts the
// new classification inside one transaction. Re-running after a threshold
// change therefore yields a clean result set, never a merge of old and new.
func (r *alertRepository) ReplaceForDay(ctx context.Context, day time.Time, candidates []*domain.AlertCandidate) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning alert replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bi_inventory_alert_candidates_daily WHERE day = $1`, asDay(day)); err != nil {
		return fmt.Errorf("error clearing alert candidates: %w", err)
	}

	query := `
		INSERT INTO bi_inventory_alert_candidates_daily (
			day, reference_product_id, product_name,
			closing_qty, closing_price, stock_value,
			avg_out_30d, days_left_estimate, risk_level, reason_flags
		) VALUES (
			:day, :reference_product_id, :product_name,
			:closing_qty, :closing_price, :stock_value,
			:avg_out_30d, :days_left_estimate, :risk_level, :reason_flags
		)
	`

	for start := 0; start < len(candidates); start += alertInsertChunkSize {
		end := start + alertInsertChunkSize
		if end > len(candidates) {
			end = len(candidates)
		}
		if _, err := tx.NamedExecContext(ctx, query, candidates[start:end]); err != nil {
			return fmt.Errorf("error inserting alert candidates: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing alert replace: %w", err)
	}
	return nil
}

func (r *alertRepository) ListForDay(ctx context.Context, day time.Time) ([]domain.AlertCandidate, error) {
	query := `
		SELECT day, reference_product_id, product_name,
		       closing_qty, closing_price, stock_value,
		       avg_out_30d, days_left_estimate, risk_level, reason_flags
		FROM bi_inventory_alert_candidates_daily
		WHERE day = $1
		ORDER BY risk_level, stock_value DESC
	`

	var rows []domain.AlertCandidate
	if err := r.db.SelectContext(ctx, &rows, query, asDay(day)); err != nil {
		return nil, fmt.Errorf("error listing alert candidates: %w", err)
	}
	return rows, nil
}

// internal/repository/velocity_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/jmoiron/sqlx"
)

// velocityUpsertChunkSize bounds the rows per upsert round trip.
const velocityUpsertChunkSize = 500

// VelocityCoverage reports how many of the current velocity rows were
// calculated for a given day versus the table total.
type VelocityCoverage struct {
	Total  int `db:"total"`
	ForDay int `db:"for_day"`
}

type VelocityRepository interface {
	UpsertBatch(ctx context.Context, rows []*domain.ProductVelocity) error
	Coverage(ctx context.Context, day time.Time) (VelocityCoverage, error)
	TopMovers(ctx context.Context, limit int) ([]domain.ProductVelocity, error)
}

type velocityRepository struct {
	db *sqlx.DB
}

func NewVelocityRepository(db *sqlx.DB) VelocityRepository {
	return &velocityRepository{db: db}
}

func (r *velocityRepository) UpsertBatch(ctx context.Context, rows []*domain.ProductVelocity) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO bi_product_velocity_current (
			reference_product_id, calculated_for_day,
			out_qty_7d, out_qty_30d, out_qty_90d,
			avg_out_qty_7d, avg_out_qty_30d, avg_out_qty_90d,
			last_movement_day, days_since_last_movement
		) VALUES (
			:reference_product_id, :calculated_for_day,
			:out_qty_7d, :out_qty_30d, :out_qty_90d,
			:avg_out_qty_7d, :avg_out_qty_30d, :avg_out_qty_90d,
			:last_movement_day, :days_since_last_movement
		)
		ON CONFLICT (reference_product_id) DO UPDATE SET
			calculated_for_day = EXCLUDED.calculated_for_day,
			out_qty_7d = EXCLUDED.out_qty_7d,
			out_qty_30d = EXCLUDED.out_qty_30d,
			out_qty_90d = EXCLUDED.out_qty_90d,
			avg_out_qty_7d = EXCLUDED.avg_out_qty_7d,
			avg_out_qty_30d = EXCLUDED.avg_out_qty_30d,
			avg_out_qty_90d = EXCLUDED.avg_out_qty_90d,
			last_movement_day = EXCLUDED.last_movement_day,
			days_since_last_movement = EXCLUDED.days_since_last_movement
	`

	for start := 0; start < len(rows); start += velocityUpsertChunkSize {
		end := start + velocityUpsertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := r.db.NamedExecContext(ctx, query, rows[start:end]); err != nil {
			return fmt.Errorf("error upserting product velocity: %w", err)
		}
	}

	return nil
}

func (r *velocityRepository) Coverage(ctx context.Context, day time.Time) (VelocityCoverage, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE calculated_for_day = $1) AS for_day
		FROM bi_product_velocity_current
	`

	var cov VelocityCoverage
	if err := r.db.GetContext(ctx, &cov, query, asDay(day)); err != nil {
		return VelocityCoverage{}, fmt.Errorf("error checking velocity coverage: %w", err)
	}
	return cov, nil
}

func (r *velocityRepository) TopMovers(ctx context.Context, limit int) ([]domain.ProductVelocity, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT reference_product_id, calculated_for_day,
		       out_qty_7d, out_qty_30d, out_qty_90d,
		       avg_out_qty_7d, avg_out_qty_30d, avg_out_qty_90d,
		       last_movement_day, days_since_last_movement
		FROM bi_product_velocity_current
		ORDER BY avg_out_qty_30d DESC
		LIMIT $1
	`

	var rows []domain.ProductVelocity
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("error getting top movers: %w", err)
	}
	return rows, nil
}

// internal/repository/metrics_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// metricsUpsertChunkSize bounds the number of (day, product) keys sent per
// round trip when folding an import batch.
const metricsUpsertChunkSize = 1000

// KpiAggregate is the single-pass rollup of one day's metric rows. The span
// endpoints stay raw here; the minutes conversion happens in the engine.
type KpiAggregate struct {
	ProductsTotal                int        `db:"products_total"`
	ProductsInStock              int        `db:"products_in_stock"`
	ProductsOutOfStock           int        `db:"products_out_of_stock"`
	InventoryQtyClosingTotal     float64    `db:"inventory_qty_closing_total"`
	InventoryValueOpeningTotal   float64    `db:"inventory_value_opening_total"`
	InventoryValueClosingTotal   float64    `db:"inventory_value_closing_total"`
	InventoryValueVariationTotal float64    `db:"inventory_value_variation_total"`
	SnapshotsTotal               int        `db:"snapshots_total"`
	FirstSnapshotAt              *time.Time `db:"first_snapshot_at"`
	LastSnapshotAt               *time.Time `db:"last_snapshot_at"`
}

// VelocityAggregate is one product's consumption sums over the 7/30/90-day
// sub-windows ending at the target day.
type VelocityAggregate struct {
	ReferenceProductID string     `db:"reference_product_id"`
	OutQty7d           float64    `db:"out_qty_7d"`
	OutQty30d          float64    `db:"out_qty_30d"`
	OutQty90d          float64    `db:"out_qty_90d"`
	LastMovementDay    *time.Time `db:"last_movement_day"`
}

type MetricsRepository interface {
	GetForDay(ctx context.Context, day time.Time, refIDs []string) (map[string]*domain.DailyStockMetric, error)
	UpsertBatch(ctx context.Context, metrics []*domain.DailyStockMetric) error
	CountForDay(ctx context.Context, day time.Time) (int, error)
	AggregateKpi(ctx context.Context, day time.Time) (*KpiAggregate, error)
	AggregateVelocityWindow(ctx context.Context, day time.Time) ([]VelocityAggregate, error)
}

type metricsRepository struct {
	db *sqlx.DB
}

func NewMetricsRepository(db *sqlx.DB) MetricsRepository {
	return &metricsRepository{db: db}
}

func (r *metricsRepository) GetForDay(ctx context.Context, day time.Time, refIDs []string) (map[string]*domain.DailyStockMetric, error) {
	result := make(map[string]*domain.DailyStockMetric, len(refIDs))

	query := `
		SELECT day, reference_product_id,
		       opening_total_qty, closing_total_qty,
		       opening_available_qty, closing_available_qty,
		       opening_sell_price, closing_sell_price,
		       daily_total_variation, daily_available_variation,
		       closing_sales_value, daily_sales_value_variation,
		       min_available_qty, max_available_qty,
		       snapshots_count, first_snapshot_at, last_snapshot_at
		FROM daily_stock_metrics
		WHERE day = $1 AND reference_product_id = ANY($2)
	`

	for _, chunk := range chunkStrings(refIDs, metricsUpsertChunkSize) {
		var rows []domain.DailyStockMetric
		if err := r.db.SelectContext(ctx, &rows, query, asDay(day), pq.Array(chunk)); err != nil {
			return nil, fmt.Errorf("error loading daily stock metrics: %w", err)
		}
		for i := range rows {
			row := rows[i]
			result[row.ReferenceProductID] = &row
		}
	}

	return result, nil
}

func (r *metricsRepository) UpsertBatch(ctx context.Context, metrics []*domain.DailyStockMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	query := `
		INSERT INTO daily_stock_metrics (
			day, reference_product_id,
			opening_total_qty, closing_total_qty,
			opening_available_qty, closing_available_qty,
			opening_sell_price, closing_sell_price,
			daily_total_variation, daily_available_variation,
			closing_sales_value, daily_sales_value_variation,
			min_available_qty, max_available_qty,
			snapshots_count, first_snapshot_at, last_snapshot_at
		) VALUES (
			:day, :reference_product_id,
			:opening_total_qty, :closing_total_qty,
			:opening_available_qty, :closing_available_qty,
			:opening_sell_price, :closing_sell_price,
			:daily_total_variation, :daily_available_variation,
			:closing_sales_value, :daily_sales_value_variation,
			:min_available_qty, :max_available_qty,
			:snapshots_count, :first_snapshot_at, :last_snapshot_at
		)
		ON CONFLICT (day, reference_product_id) DO UPDATE SET
			opening_total_qty = EXCLUDED.opening_total_qty,
			closing_total_qty = EXCLUDED.closing_total_qty,
			opening_available_qty = EXCLUDED.opening_available_qty,
			closing_available_qty = EXCLUDED.closing_available_qty,
			opening_sell_price = EXCLUDED.opening_sell_price,
			closing_sell_price = EXCLUDED.closing_sell_price,
			daily_total_variation = EXCLUDED.daily_total_variation,
			daily_available_variation = EXCLUDED.daily_available_variation,
			closing_sales_value = EXCLUDED.closing_sales_value,
			daily_sales_value_variation = EXCLUDED.daily_sales_value_variation,
			min_available_qty = EXCLUDED.min_available_qty,
			max_available_qty = EXCLUDED.max_available_qty,
			snapshots_count = EXCLUDED.snapshots_count,
			first_snapshot_at = EXCLUDED.first_snapshot_at,
			last_snapshot_at = EXCLUDED.last_snapshot_at
	`

	for _, chunk := range chunkMetrics(metrics, metricsUpsertChunkSize) {
		if _, err := r.db.NamedExecContext(ctx, query, chunk); err != nil {
			return fmt.Errorf("error upserting daily stock metrics: %w", err)
		}
	}

	return nil
}

func (r *metricsRepository) CountForDay(ctx context.Context, day time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM daily_stock_metrics WHERE day = $1`, asDay(day))
	if err != nil {
		return 0, fmt.Errorf("error counting daily stock metrics: %w", err)
	}
	return count, nil
}

func (r *metricsRepository) AggregateKpi(ctx context.Context, day time.Time) (*KpiAggregate, error) {
	query := `
		SELECT
			COUNT(*) AS products_total,
			COUNT(*) FILTER (WHERE closing_available_qty > 0) AS products_in_stock,
			COUNT(*) FILTER (WHERE closing_available_qty <= 0) AS products_out_of_stock,
			COALESCE(SUM(closing_available_qty), 0) AS inventory_qty_closing_total,
			COALESCE(SUM(opening_available_qty * COALESCE(opening_sell_price, 0)), 0) AS inventory_value_opening_total,
			COALESCE(SUM(closing_available_qty * COALESCE(closing_sell_price, 0)), 0) AS inventory_value_closing_total,
			COALESCE(SUM(daily_sales_value_variation), 0) AS inventory_value_variation_total,
			COALESCE(SUM(snapshots_count), 0) AS snapshots_total,
			MIN(first_snapshot_at) AS first_snapshot_at,
			MAX(last_snapshot_at) AS last_snapshot_at
		FROM daily_stock_metrics
		WHERE day = $1
	`

	agg := &KpiAggregate{}
	if err := r.db.GetContext(ctx, agg, query, asDay(day)); err != nil {
		return nil, fmt.Errorf("error aggregating daily kpi: %w", err)
	}
	return agg, nil
}

func (r *metricsRepository) AggregateVelocityWindow(ctx context.Context, day time.Time) ([]VelocityAggregate, error) {
	// Window bounds: 90 calendar days inclusive, ending at the target day.
	from90 := day.AddDate(0, 0, -89)
	from30 := day.AddDate(0, 0, -29)
	from7 := day.AddDate(0, 0, -6)

	query := `
		SELECT
			reference_product_id,
			COALESCE(SUM(CASE WHEN day >= $2 THEN GREATEST(-daily_available_variation, 0) ELSE 0 END), 0) AS out_qty_7d,
			COALESCE(SUM(CASE WHEN day >= $3 THEN GREATEST(-daily_available_variation, 0) ELSE 0 END), 0) AS out_qty_30d,
			COALESCE(SUM(GREATEST(-daily_available_variation, 0)), 0) AS out_qty_90d,
			MAX(day) FILTER (WHERE daily_available_variation <> 0) AS last_movement_day
		FROM daily_stock_metrics
		WHERE day BETWEEN $4 AND $1
		GROUP BY reference_product_id
	`

	var aggs []VelocityAggregate
	if err := r.db.SelectContext(ctx, &aggs, query, asDay(day), asDay(from7), asDay(from30), asDay(from90)); err != nil {
		return nil, fmt.Errorf("error aggregating velocity window: %w", err)
	}
	return aggs, nil
}

func chunkStrings(values []string, size int) [][]string {
	if size <= 0 {
		size = len(values)
	}
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

func chunkMetrics(values []*domain.DailyStockMetric, size int) [][]*domain.DailyStockMetric {
	if size <= 0 {
		size = len(values)
	}
	var chunks [][]*domain.DailyStockMetric
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

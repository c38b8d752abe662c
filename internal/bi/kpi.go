// internal/bi/kpi.go
package bi

import (
	"context"
	"fmt"
	"time"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/rs/zerolog/log"
)

// KpiAggregator rolls one day's metric rows into a single KPI row.
type KpiAggregator struct {
	metrics repository.MetricsRepository
	kpis    repository.KpiRepository
}

func NewKpiAggregator(metrics repository.MetricsRepository, kpis repository.KpiRepository) *KpiAggregator {
	return &KpiAggregator{metrics: metrics, kpis: kpis}
}

// ComputeKpi aggregates the day and upserts the result. A day with no metric
// rows is skipped with a warning, never written as a zero row.
func (a *KpiAggregator) ComputeKpi(ctx context.Context, day time.Time) error {
	agg, err := a.metrics.AggregateKpi(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to aggregate kpi: %w", err)
	}

	if agg.ProductsTotal == 0 {
		log.Warn().Time("day", day).Msg("no stock metrics for day, skipping kpi")
		return nil
	}

	kpi := &domain.DailyKpi{
		Day:                          day,
		ProductsTotal:                agg.ProductsTotal,
		ProductsInStock:              agg.ProductsInStock,
		ProductsOutOfStock:           agg.ProductsOutOfStock,
		InventoryQtyClosingTotal:     roundTo(agg.InventoryQtyClosingTotal, 3),
		InventoryValueOpeningTotal:   roundTo(agg.InventoryValueOpeningTotal, 2),
		InventoryValueClosingTotal:   roundTo(agg.InventoryValueClosingTotal, 2),
		InventoryValueVariationTotal: roundTo(agg.InventoryValueVariationTotal, 2),
		SnapshotsTotal:               agg.SnapshotsTotal,
		ImportsSpanMinutes:           spanMinutes(agg.FirstSnapshotAt, agg.LastSnapshotAt),
	}

	if err := a.kpis.Upsert(ctx, kpi); err != nil {
		return fmt.Errorf("failed to upsert kpi: %w", err)
	}

	log.Info().
		Time("day", day).
		Int("products_total", kpi.ProductsTotal).
		Int("products_out_of_stock", kpi.ProductsOutOfStock).
		Float64("inventory_value_closing", kpi.InventoryValueClosingTotal).
		Msg("daily kpi computed")

	return nil
}

// spanMinutes is the whole-minute distance between the first and last
// snapshot of the day, nil when either endpoint is missing.
func spanMinutes(first, last *time.Time) *int {
	if first == nil || last == nil {
		return nil
	}
	m := int(last.Sub(*first).Minutes())
	return &m
}

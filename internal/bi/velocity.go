// internal/bi/velocity.go
package bi

import (
	"context"
	"fmt"
	"time"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/rs/zerolog/log"
)

// VelocityCalculator rebuilds the current-velocity table from the trailing
// 90 days of metric rows.
type VelocityCalculator struct {
	metrics    repository.MetricsRepository
	velocities repository.VelocityRepository
}

func NewVelocityCalculator(metrics repository.MetricsRepository, velocities repository.VelocityRepository) *VelocityCalculator {
	return &VelocityCalculator{metrics: metrics, velocities: velocities}
}

// ComputeVelocity replaces each product's velocity row as of the given day.
// Products absent from the window keep their previous row; the table is an
// upsert target, not a full truncate.
func (c *VelocityCalculator) ComputeVelocity(ctx context.Context, day time.Time) error {
	aggs, err := c.metrics.AggregateVelocityWindow(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to aggregate velocity window: %w", err)
	}

	if len(aggs) == 0 {
		log.Warn().Time("day", day).Msg("no stock metrics in velocity window, skipping")
		return nil
	}

	rows := make([]*domain.ProductVelocity, 0, len(aggs))
	for i := range aggs {
		rows = append(rows, buildVelocity(aggs[i], day))
	}

	if err := c.velocities.UpsertBatch(ctx, rows); err != nil {
		return fmt.Errorf("failed to upsert velocities: %w", err)
	}

	log.Info().
		Time("day", day).
		Int("products", len(rows)).
		Msg("product velocity computed")

	return nil
}

// buildVelocity derives the averages from the window sums. Averages always
// divide by the nominal window length (7/30/90), so a product with less
// history reads as a slower mover, never a faster one.
func buildVelocity(agg repository.VelocityAggregate, day time.Time) *domain.ProductVelocity {
	v := &domain.ProductVelocity{
		ReferenceProductID: agg.ReferenceProductID,
		CalculatedForDay:   day,
		OutQty7d:           roundTo(agg.OutQty7d, 3),
		OutQty30d:          roundTo(agg.OutQty30d, 3),
		OutQty90d:          roundTo(agg.OutQty90d, 3),
		AvgOutQty7d:        roundTo(agg.OutQty7d/7, 4),
		AvgOutQty30d:       roundTo(agg.OutQty30d/30, 4),
		AvgOutQty90d:       roundTo(agg.OutQty90d/90, 4),
	}

	if agg.LastMovementDay != nil {
		lm := *agg.LastMovementDay
		v.LastMovementDay = &lm
		days := int(day.Sub(lm).Hours() / 24)
		v.DaysSinceLastMovement = &days
	}

	return v
}

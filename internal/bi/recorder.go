// internal/bi/recorder.go
package bi

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/rs/zerolog/log"
)

// SnapshotRecorder folds raw stock observations into daily_stock_metrics.
// One row per (day, product); opening/closing track snapshot timestamps, so
// the fold converges to the same state no matter what order the snapshots
// arrive in across import runs.
type SnapshotRecorder struct {
	metrics repository.MetricsRepository
	loc     *time.Location
}

func NewSnapshotRecorder(metrics repository.MetricsRepository, loc *time.Location) *SnapshotRecorder {
	return &SnapshotRecorder{metrics: metrics, loc: loc}
}

// RecordSnapshots merges one import batch observed at observedAt and returns
// the number of products processed. Entries without a reference id are
// dropped silently; when a product appears more than once in the batch the
// last occurrence wins, mirroring the upsert-by-key semantic.
func (r *SnapshotRecorder) RecordSnapshots(ctx context.Context, observedAt time.Time, snapshots []domain.StockSnapshot) (int, error) {
	byRef := make(map[string]domain.StockSnapshot, len(snapshots))
	refIDs := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap.ReferenceProductID == "" {
			continue
		}
		if _, seen := byRef[snap.ReferenceProductID]; !seen {
			refIDs = append(refIDs, snap.ReferenceProductID)
		}
		byRef[snap.ReferenceProductID] = normalizeSnapshot(snap)
	}

	if len(refIDs) == 0 {
		return 0, nil
	}

	day := DayOf(observedAt, r.loc)

	existing, err := r.metrics.GetForDay(ctx, day, refIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load existing metrics: %w", err)
	}

	next := make([]*domain.DailyStockMetric, 0, len(refIDs))
	for _, refID := range refIDs {
		next = append(next, mergeDailyMetric(existing[refID], day, refID, byRef[refID], observedAt))
	}

	if err := r.metrics.UpsertBatch(ctx, next); err != nil {
		return 0, fmt.Errorf("failed to upsert metrics: %w", err)
	}

	log.Debug().
		Time("day", day).
		Int("products", len(next)).
		Msg("stock snapshots recorded")

	return len(next), nil
}

// normalizeSnapshot rounds quantity to 3 and price to 4 decimal places.
func normalizeSnapshot(snap domain.StockSnapshot) domain.StockSnapshot {
	snap.Quantity = roundTo(snap.Quantity, 3)
	if snap.SellPrice != nil {
		p := roundTo(*snap.SellPrice, 4)
		snap.SellPrice = &p
	}
	return snap
}

// mergeDailyMetric returns the full next state of the (day, product) row.
// Opening reflects the earliest snapshot of the day seen so far and closing
// the latest, compared by snapshot timestamp rather than arrival order.
// Min/max track extremes across every snapshot regardless of position.
func mergeDailyMetric(existing *domain.DailyStockMetric, day time.Time, refID string, snap domain.StockSnapshot, observedAt time.Time) *domain.DailyStockMetric {
	if existing == nil {
		m := &domain.DailyStockMetric{
			Day:                 day,
			ReferenceProductID:  refID,
			OpeningTotalQty:     snap.Quantity,
			ClosingTotalQty:     snap.Quantity,
			OpeningAvailableQty: snap.Quantity,
			ClosingAvailableQty: snap.Quantity,
			OpeningSellPrice:    copyPrice(snap.SellPrice),
			ClosingSellPrice:    copyPrice(snap.SellPrice),
			MinAvailableQty:     snap.Quantity,
			MaxAvailableQty:     snap.Quantity,
			SnapshotsCount:      1,
			FirstSnapshotAt:     observedAt,
			LastSnapshotAt:      observedAt,
		}
		recomputeVariations(m)
		return m
	}

	m := *existing

	if observedAt.Before(m.FirstSnapshotAt) {
		m.OpeningTotalQty = snap.Quantity
		m.OpeningAvailableQty = snap.Quantity
		if snap.SellPrice != nil {
			m.OpeningSellPrice = copyPrice(snap.SellPrice)
		}
		m.FirstSnapshotAt = observedAt
	}
	if !observedAt.Before(m.LastSnapshotAt) {
		m.ClosingTotalQty = snap.Quantity
		m.ClosingAvailableQty = snap.Quantity
		if snap.SellPrice != nil {
			m.ClosingSellPrice = copyPrice(snap.SellPrice)
		}
		m.LastSnapshotAt = observedAt
	}

	m.MinAvailableQty = math.Min(m.MinAvailableQty, snap.Quantity)
	m.MaxAvailableQty = math.Max(m.MaxAvailableQty, snap.Quantity)
	m.SnapshotsCount++

	recomputeVariations(&m)
	return &m
}

// recomputeVariations refreshes the derived columns from the opening/closing
// state currently on the row.
func recomputeVariations(m *domain.DailyStockMetric) {
	m.DailyTotalVariation = roundTo(m.ClosingTotalQty-m.OpeningTotalQty, 3)
	m.DailyAvailableVariation = roundTo(m.ClosingAvailableQty-m.OpeningAvailableQty, 3)

	openingValue := m.OpeningAvailableQty * priceOrZero(m.OpeningSellPrice)
	m.ClosingSalesValue = roundTo(m.ClosingAvailableQty*priceOrZero(m.ClosingSellPrice), 2)
	m.DailySalesValueVariation = roundTo(m.ClosingSalesValue-roundTo(openingValue, 2), 2)
}

func copyPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func priceOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}

// internal/bi/kpi_test.go
package bi

import (
	"context"
	"testing"
	"time"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKpiRepo struct {
	upserted *domain.DailyKpi
}

func (f *fakeKpiRepo) Upsert(_ context.Context, kpi *domain.DailyKpi) error {
	cp := *kpi
	f.upserted = &cp
	return nil
}

func (f *fakeKpiRepo) GetByDay(_ context.Context, _ time.Time) (*domain.DailyKpi, error) {
	return f.upserted, nil
}

func (f *fakeKpiRepo) GetAvailableDays(_ context.Context, _ int) ([]time.Time, error) {
	return nil, nil
}

func TestComputeKpiUpsertsRollup(t *testing.T) {
	day := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)
	first := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	last := time.Date(2026, 7, 14, 18, 30, 0, 0, time.UTC)

	metrics := newFakeMetricsRepo()
	metrics.kpiAgg = &repository.KpiAggregate{
		ProductsTotal:                120,
		ProductsInStock:              100,
		ProductsOutOfStock:           20,
		InventoryQtyClosingTotal:     4321.1234,
		InventoryValueOpeningTotal:   10000.505,
		InventoryValueClosingTotal:   9800.125,
		InventoryValueVariationTotal: -200.38,
		SnapshotsTotal:               360,
		FirstSnapshotAt:              &first,
		LastSnapshotAt:               &last,
	}
	kpis := &fakeKpiRepo{}

	agg := NewKpiAggregator(metrics, kpis)
	require.NoError(t, agg.ComputeKpi(context.Background(), day))

	require.NotNil(t, kpis.upserted)
	assert.Equal(t, day, kpis.upserted.Day)
	assert.Equal(t, 120, kpis.upserted.ProductsTotal)
	assert.Equal(t, 4321.123, kpis.upserted.InventoryQtyClosingTotal)
	require.NotNil(t, kpis.upserted.ImportsSpanMinutes)
	assert.Equal(t, 630, *kpis.upserted.ImportsSpanMinutes)
}

func TestComputeKpiEmptyDaySkips(t *testing.T) {
	metrics := newFakeMetricsRepo()
	kpis := &fakeKpiRepo{}

	agg := NewKpiAggregator(metrics, kpis)
	require.NoError(t, agg.ComputeKpi(context.Background(), time.Now()))
	assert.Nil(t, kpis.upserted, "a day without metrics must not produce a zero kpi row")
}

func TestSpanMinutesNilEndpoints(t *testing.T) {
	now := time.Now()
	assert.Nil(t, spanMinutes(nil, &now))
	assert.Nil(t, spanMinutes(&now, nil))

	m := spanMinutes(&now, &now)
	require.NotNil(t, m)
	assert.Zero(t, *m)
}

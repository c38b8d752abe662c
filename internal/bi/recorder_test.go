// internal/bi/recorder_test.go
package bi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMetricsRepo keeps metric rows in memory keyed by (day, product) so
// recorder tests can replay multi-batch days without a database.
type fakeMetricsRepo struct {
	rows       map[string]*domain.DailyStockMetric
	upsertErr  error
	kpiAgg     *repository.KpiAggregate
	velocityAg []repository.VelocityAggregate
}

func newFakeMetricsRepo() *fakeMetricsRepo {
	return &fakeMetricsRepo{rows: make(map[string]*domain.DailyStockMetric)}
}

func metricKey(day time.Time, refID string) string {
	return day.Format("2006-01-02") + "/" + refID
}

func (f *fakeMetricsRepo) GetForDay(_ context.Context, day time.Time, refIDs []string) (map[string]*domain.DailyStockMetric, error) {
	out := make(map[string]*domain.DailyStockMetric)
	for _, id := range refIDs {
		if m, ok := f.rows[metricKey(day, id)]; ok {
			cp := *m
			out[id] = &cp
		}
	}
	return out, nil
}

func (f *fakeMetricsRepo) UpsertBatch(_ context.Context, metrics []*domain.DailyStockMetric) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, m := range metrics {
		cp := *m
		f.rows[metricKey(m.Day, m.ReferenceProductID)] = &cp
	}
	return nil
}

func (f *fakeMetricsRepo) CountForDay(_ context.Context, day time.Time) (int, error) {
	n := 0
	for _, m := range f.rows {
		if m.Day.Equal(day) {
			n++
		}
	}
	return n, nil
}

func (f *fakeMetricsRepo) AggregateKpi(_ context.Context, _ time.Time) (*repository.KpiAggregate, error) {
	if f.kpiAgg == nil {
		return &repository.KpiAggregate{}, nil
	}
	return f.kpiAgg, nil
}

func (f *fakeMetricsRepo) AggregateVelocityWindow(_ context.Context, _ time.Time) ([]repository.VelocityAggregate, error) {
	return f.velocityAg, nil
}

func fp(v float64) *float64 { return &v }

func TestRecordSnapshotsFirstBatch(t *testing.T) {
	repo := newFakeMetricsRepo()
	rec := NewSnapshotRecorder(repo, time.UTC)

	at := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	n, err := rec.RecordSnapshots(context.Background(), at, []domain.StockSnapshot{
		{ReferenceProductID: "SKU-1", Quantity: 10, SellPrice: fp(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m := repo.rows[metricKey(DayOf(at, time.UTC), "SKU-1")]
	require.NotNil(t, m)
	assert.Equal(t, 10.0, m.OpeningAvailableQty)
	assert.Equal(t, 10.0, m.ClosingAvailableQty)
	assert.Equal(t, 5.0, *m.ClosingSellPrice)
	assert.Equal(t, 1, m.SnapshotsCount)
	assert.Equal(t, 0.0, m.DailyAvailableVariation)
	assert.Equal(t, 50.0, m.ClosingSalesValue)
}

func TestRecordSnapshotsOutOfOrderArrival(t *testing.T) {
	repo := newFakeMetricsRepo()
	rec := NewSnapshotRecorder(repo, time.UTC)
	ctx := context.Background()

	evening := time.Date(2026, 7, 14, 18, 0, 0, 0, time.UTC)
	morning := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	noon := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	// The evening export is processed first, then the morning one arrives
	// late, then noon. Opening/closing must still follow snapshot time.
	_, err := rec.RecordSnapshots(ctx, evening, []domain.StockSnapshot{
		{ReferenceProductID: "SKU-1", Quantity: 4, SellPrice: fp(10)},
	})
	require.NoError(t, err)
	_, err = rec.RecordSnapshots(ctx, morning, []domain.StockSnapshot{
		{ReferenceProductID: "SKU-1", Quantity: 12, SellPrice: fp(9)},
	})
	require.NoError(t, err)
	_, err = rec.RecordSnapshots(ctx, noon, []domain.StockSnapshot{
		{ReferenceProductID: "SKU-1", Quantity: 1, SellPrice: fp(10)},
	})
	require.NoError(t, err)

	m := repo.rows[metricKey(DayOf(morning, time.UTC), "SKU-1")]
	require.NotNil(t, m)
	assert.Equal(t, 12.0, m.OpeningAvailableQty, "opening comes from the earliest snapshot")
	assert.Equal(t, 9.0, *m.OpeningSellPrice)
	assert.Equal(t, 4.0, m.ClosingAvailableQty, "closing comes from the latest snapshot")
	assert.Equal(t, 10.0, *m.ClosingSellPrice)
	assert.Equal(t, 1.0, m.MinAvailableQty)
	assert.Equal(t, 12.0, m.MaxAvailableQty)
	assert.Equal(t, 3, m.SnapshotsCount)
	assert.Equal(t, morning, m.FirstSnapshotAt)
	assert.Equal(t, evening, m.LastSnapshotAt)
	assert.Equal(t, -8.0, m.DailyAvailableVariation)
	// 4 * 10 closing vs 12 * 9 opening
	assert.Equal(t, 40.0, m.ClosingSalesValue)
	assert.Equal(t, -68.0, m.DailySalesValueVariation)
}

func TestRecordSnapshotsLastOccurrenceWins(t *testing.T) {
	repo := newFakeMetricsRepo()
	rec := NewSnapshotRecorder(repo, time.UTC)

	at := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	n, err := rec.RecordSnapshots(context.Background(), at, []domain.StockSnapshot{
		{ReferenceProductID: "SKU-1", Quantity: 10, SellPrice: fp(5)},
		{ReferenceProductID: "SKU-1", Quantity: 7, SellPrice: fp(6)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "duplicate keys collapse to one product")

	m := repo.rows[metricKey(DayOf(at, time.UTC), "SKU-1")]
	require.NotNil(t, m)
	assert.Equal(t, 7.0, m.ClosingAvailableQty)
	assert.Equal(t, 6.0, *m.ClosingSellPrice)
	assert.Equal(t, 1, m.SnapshotsCount)
}

func TestRecordSnapshotsDropsEmptyReference(t *testing.T) {
	repo := newFakeMetricsRepo()
	rec := NewSnapshotRecorder(repo, time.UTC)

	at := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	n, err := rec.RecordSnapshots(context.Background(), at, []domain.StockSnapshot{
		{ReferenceProductID: "", Quantity: 10},
		{ReferenceProductID: "SKU-1", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, repo.rows, 1)
}

func TestRecordSnapshotsNilPriceKeepsEarlierPrice(t *testing.T) {
	repo := newFakeMetricsRepo()
	rec := NewSnapshotRecorder(repo, time.UTC)
	ctx := context.Background()

	morning := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 7, 14, 18, 0, 0, 0, time.UTC)

	_, err := rec.RecordSnapshots(ctx, morning, []domain.StockSnapshot{
		{ReferenceProductID: "SKU-1", Quantity: 10, SellPrice: fp(5)},
	})
	require.NoError(t, err)
	_, err = rec.RecordSnapshots(ctx, evening, []domain.StockSnapshot{
		{ReferenceProductID: "SKU-1", Quantity: 8, SellPrice: nil},
	})
	require.NoError(t, err)

	m := repo.rows[metricKey(DayOf(morning, time.UTC), "SKU-1")]
	require.NotNil(t, m)
	assert.Equal(t, 8.0, m.ClosingAvailableQty)
	require.NotNil(t, m.ClosingSellPrice, "missing price falls back to the previous closing price")
	assert.Equal(t, 5.0, *m.ClosingSellPrice)
}

func TestRecordSnapshotsRoundsInputs(t *testing.T) {
	repo := newFakeMetricsRepo()
	rec := NewSnapshotRecorder(repo, time.UTC)

	at := time.Date(2026, 7, 14, 8, 0, 0, 0, time.UTC)
	_, err := rec.RecordSnapshots(context.Background(), at, []domain.StockSnapshot{
		{ReferenceProductID: "SKU-1", Quantity: 1.23456, SellPrice: fp(9.99999)},
	})
	require.NoError(t, err)

	m := repo.rows[metricKey(DayOf(at, time.UTC), "SKU-1")]
	require.NotNil(t, m)
	assert.Equal(t, 1.235, m.ClosingAvailableQty)
	assert.Equal(t, 10.0, *m.ClosingSellPrice)
}

func TestRecordSnapshotsEmptyBatch(t *testing.T) {
	repo := newFakeMetricsRepo()
	rec := NewSnapshotRecorder(repo, time.UTC)

	n, err := rec.RecordSnapshots(context.Background(), time.Now(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordSnapshotsPropagatesUpsertError(t *testing.T) {
	repo := newFakeMetricsRepo()
	repo.upsertErr = errors.New("connection reset")
	rec := NewSnapshotRecorder(repo, time.UTC)

	_, err := rec.RecordSnapshots(context.Background(), time.Now(), []domain.StockSnapshot{
		{ReferenceProductID: "SKU-1", Quantity: 1},
	})
	assert.ErrorContains(t, err, "connection reset")
}

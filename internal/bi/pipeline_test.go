// internal/bi/pipeline_test.go
package bi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/depomat/stockbi/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunRepo struct {
	created []repository.PipelineRun
	updated []repository.PipelineRun
}

func (f *fakeRunRepo) Create(_ context.Context, run *repository.PipelineRun) error {
	f.created = append(f.created, *run)
	return nil
}

func (f *fakeRunRepo) Update(_ context.Context, run *repository.PipelineRun) error {
	f.updated = append(f.updated, *run)
	return nil
}

func (f *fakeRunRepo) ListForDay(_ context.Context, _ time.Time) ([]repository.PipelineRun, error) {
	return nil, nil
}

func okStage(calls *[]time.Time) stageFunc {
	return func(_ context.Context, day time.Time) error {
		*calls = append(*calls, day)
		return nil
	}
}

func failStage(err error) stageFunc {
	return func(_ context.Context, _ time.Time) error {
		return err
	}
}

func TestRunDailyExecutesStagesInOrder(t *testing.T) {
	day := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)
	runs := &fakeRunRepo{}

	var order []string
	p := &Pipeline{
		runs: runs,
		loc:  time.UTC,
		kpiStage: func(_ context.Context, _ time.Time) error {
			order = append(order, StageKpi)
			return nil
		},
		velocityStage: func(_ context.Context, _ time.Time) error {
			order = append(order, StageVelocity)
			return nil
		},
		alertsStage: func(_ context.Context, _ time.Time) error {
			order = append(order, StageAlerts)
			return nil
		},
	}

	require.NoError(t, p.RunDaily(context.Background(), day))
	assert.Equal(t, []string{StageKpi, StageVelocity, StageAlerts}, order)

	require.Len(t, runs.updated, 3)
	for _, run := range runs.updated {
		assert.Equal(t, repository.RunStatusCompleted, run.Status)
		assert.NotNil(t, run.CompletedAt)
	}
}

func TestRunDailyVelocityFailureStillRunsAlerts(t *testing.T) {
	day := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)
	runs := &fakeRunRepo{}

	var kpiCalls, alertCalls []time.Time
	p := &Pipeline{
		runs:          runs,
		loc:           time.UTC,
		kpiStage:      okStage(&kpiCalls),
		velocityStage: failStage(errors.New("window query timed out")),
		alertsStage:   okStage(&alertCalls),
	}

	err := p.RunDaily(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), StageVelocity)
	assert.NotContains(t, err.Error(), StageAlerts)
	assert.Len(t, kpiCalls, 1)
	assert.Len(t, alertCalls, 1, "alerts classify with whatever velocity data is present")

	require.Len(t, runs.updated, 3)
	assert.Equal(t, repository.RunStatusFailed, runs.updated[1].Status)
	assert.Contains(t, runs.updated[1].ErrorMessage, "timed out")
	assert.Equal(t, repository.RunStatusCompleted, runs.updated[2].Status)
}

func TestRunDailyKpiFailureStillRunsRest(t *testing.T) {
	day := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)

	var velocityCalls, alertCalls []time.Time
	p := &Pipeline{
		loc:           time.UTC,
		kpiStage:      failStage(errors.New("boom")),
		velocityStage: okStage(&velocityCalls),
		alertsStage:   okStage(&alertCalls),
	}

	err := p.RunDaily(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), StageKpi)
	assert.Len(t, velocityCalls, 1)
	assert.Len(t, alertCalls, 1)
}

func TestBackfillContinuesPastFailedDays(t *testing.T) {
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC)
	bad := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	var kpiCalls, velocityCalls, alertCalls []time.Time
	p := &Pipeline{
		loc:      time.UTC,
		kpiStage: okStage(&kpiCalls),
		velocityStage: func(_ context.Context, day time.Time) error {
			if day.Equal(bad) {
				return errors.New("bad day")
			}
			velocityCalls = append(velocityCalls, day)
			return nil
		},
		alertsStage: okStage(&alertCalls),
	}

	err := p.Backfill(context.Background(), from, to, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 days failed")
	assert.Len(t, kpiCalls, 3, "every day is attempted")
	assert.Len(t, alertCalls, 3, "alerts run even on the failed day")
}

func TestBackfillRestoresCurrentVelocity(t *testing.T) {
	// A historical range leaves the velocity table pointing at old windows;
	// the trailing restore recomputes it for yesterday.
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	var kpiCalls, velocityCalls, alertCalls []time.Time
	p := &Pipeline{
		loc:           time.UTC,
		kpiStage:      okStage(&kpiCalls),
		velocityStage: okStage(&velocityCalls),
		alertsStage:   okStage(&alertCalls),
	}

	require.NoError(t, p.Backfill(context.Background(), from, to, false))

	require.Len(t, velocityCalls, 3)
	assert.Equal(t, DefaultDay(time.UTC), velocityCalls[2])
}

func TestBackfillSkipRestore(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	var kpiCalls, velocityCalls, alertCalls []time.Time
	p := &Pipeline{
		loc:           time.UTC,
		kpiStage:      okStage(&kpiCalls),
		velocityStage: okStage(&velocityCalls),
		alertsStage:   okStage(&alertCalls),
	}

	require.NoError(t, p.Backfill(context.Background(), from, to, true))
	assert.Len(t, velocityCalls, 2)
}

func TestBackfillRejectsInvertedRange(t *testing.T) {
	p := &Pipeline{loc: time.UTC}
	err := p.Backfill(context.Background(),
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true)
	assert.Error(t, err)
}

// internal/bi/pipeline.go
package bi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/depomat/stockbi/internal/repository"
	"github.com/rs/zerolog/log"
)

// Stage names as recorded in bi_pipeline_runs.
const (
	StageKpi      = "kpi"
	StageVelocity = "velocity"
	StageAlerts   = "alerts"
)

type stageFunc func(ctx context.Context, day time.Time) error

// Pipeline orchestrates the daily BI run: KPI, then velocity, then alerts.
// Each stage execution is audited in bi_pipeline_runs.
type Pipeline struct {
	runs repository.RunRepository
	loc  *time.Location

	// Stage functions are fields so tests can isolate failure handling.
	kpiStage      stageFunc
	velocityStage stageFunc
	alertsStage   stageFunc
}

func NewPipeline(kpi *KpiAggregator, velocity *VelocityCalculator, alerts *AlertClassifier, runs repository.RunRepository, loc *time.Location) *Pipeline {
	return &Pipeline{
		runs:          runs,
		loc:           loc,
		kpiStage:      kpi.ComputeKpi,
		velocityStage: velocity.ComputeVelocity,
		alertsStage:   alerts.ComputeAlerts,
	}
}

// RunDaily executes the three stages for one day in strict order. Stages run
// independently: a failed stage never blocks the later ones, so alerts still
// classify when velocity failed, carrying the stale-coverage warning from the
// classifier. The returned error names every stage that failed.
func (p *Pipeline) RunDaily(ctx context.Context, day time.Time) error {
	stages := []struct {
		name string
		fn   stageFunc
	}{
		{StageKpi, p.kpiStage},
		{StageVelocity, p.velocityStage},
		{StageAlerts, p.alertsStage},
	}

	var failed []string
	for _, stage := range stages {
		if err := p.runStage(ctx, stage.name, day, stage.fn); err != nil {
			log.Error().Err(err).Time("day", day).Str("stage", stage.name).Msg("pipeline stage failed")
			failed = append(failed, stage.name)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("pipeline failed for %s: stages %s", day.Format(dayLayout), strings.Join(failed, ", "))
	}

	log.Info().Time("day", day).Msg("daily pipeline completed")
	return nil
}

// Backfill replays the pipeline for every day in [from, to] ascending. A
// failed day is logged and counted, never aborts the loop. After the loop the
// velocity table is restored to yesterday's view, since intermediate days
// left it pointing at historical windows; pass skipRestore to keep the last
// processed day instead.
func (p *Pipeline) Backfill(ctx context.Context, from, to time.Time, skipRestore bool) error {
	if from.After(to) {
		return fmt.Errorf("invalid backfill range: %s is after %s", from.Format(dayLayout), to.Format(dayLayout))
	}

	total := 0
	failedDays := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		total++
		if err := p.RunDaily(ctx, day); err != nil {
			failedDays++
			log.Error().Err(err).Time("day", day).Msg("backfill day failed")
		}
	}

	if !skipRestore {
		yesterday := DefaultDay(p.loc)
		if !to.Equal(yesterday) {
			log.Info().Time("day", yesterday).Msg("restoring current velocity after backfill")
			if err := p.runStage(ctx, StageVelocity, yesterday, p.velocityStage); err != nil {
				log.Error().Err(err).Msg("velocity restore failed")
				return fmt.Errorf("backfill finished with %d of %d days failed, velocity restore failed: %w", failedDays, total, err)
			}
		}
	}

	log.Info().
		Int("total_days", total).
		Int("failed_days", failedDays).
		Msg("backfill finished")

	if failedDays > 0 {
		return fmt.Errorf("backfill finished with %d of %d days failed", failedDays, total)
	}
	return nil
}

// runStage executes one stage with an audit record around it. Audit failures
// are logged and swallowed; bookkeeping never blocks the pipeline itself.
func (p *Pipeline) runStage(ctx context.Context, stage string, day time.Time, fn stageFunc) error {
	run := &repository.PipelineRun{
		Stage:     stage,
		Day:       day,
		Status:    repository.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if p.runs != nil {
		if err := p.runs.Create(ctx, run); err != nil {
			log.Warn().Err(err).Str("stage", stage).Msg("could not record pipeline run")
		}
	}

	err := fn(ctx, day)

	if p.runs != nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
		if err != nil {
			run.Status = repository.RunStatusFailed
			run.ErrorMessage = err.Error()
		} else {
			run.Status = repository.RunStatusCompleted
		}
		if uerr := p.runs.Update(ctx, run); uerr != nil {
			log.Warn().Err(uerr).Str("stage", stage).Msg("could not update pipeline run")
		}
	}

	return err
}

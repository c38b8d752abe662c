package service

import (
	"context"
	"fmt"
	"time"

	"github.com/depomat/stockbi/internal/cache"
	"github.com/depomat/stockbi/internal/domain"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/rs/zerolog/log"
)

// DailyReport bundles a day's rollup with its alert list for the dashboard.
type DailyReport struct {
	Day    time.Time               `json:"day"`
	Kpi    *domain.DailyKpi        `json:"kpi"`
	Alerts []domain.AlertCandidate `json:"alerts"`
}

// ReportService serves the read side of the BI tables. Cache misses and cache
// write failures degrade to direct reads; the cache is never authoritative.
type ReportService struct {
	kpis       repository.KpiRepository
	alerts     repository.AlertRepository
	velocities repository.VelocityRepository
	cache      cache.ReportCache
}

func NewReportService(
	kpis repository.KpiRepository,
	alerts repository.AlertRepository,
	velocities repository.VelocityRepository,
	reportCache cache.ReportCache,
) *ReportService {
	if reportCache == nil {
		reportCache = cache.NewNoopReportCache()
	}
	return &ReportService{
		kpis:       kpis,
		alerts:     alerts,
		velocities: velocities,
		cache:      reportCache,
	}
}

func (s *ReportService) GetKpi(ctx context.Context, day time.Time) (*domain.DailyKpi, error) {
	if kpi, hit, err := s.cache.GetKpi(ctx, day); err != nil {
		log.Warn().Err(err).Msg("kpi cache read failed")
	} else if hit {
		return kpi, nil
	}

	kpi, err := s.kpis.GetByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to get kpi: %w", err)
	}
	if kpi == nil {
		return nil, nil
	}

	if err := s.cache.SetKpi(ctx, day, kpi); err != nil {
		log.Warn().Err(err).Msg("kpi cache write failed")
	}
	return kpi, nil
}

func (s *ReportService) GetAlerts(ctx context.Context, day time.Time) ([]domain.AlertCandidate, error) {
	if alerts, hit, err := s.cache.GetAlerts(ctx, day); err != nil {
		log.Warn().Err(err).Msg("alerts cache read failed")
	} else if hit {
		return alerts, nil
	}

	alerts, err := s.alerts.ListForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	if err := s.cache.SetAlerts(ctx, day, alerts); err != nil {
		log.Warn().Err(err).Msg("alerts cache write failed")
	}
	return alerts, nil
}

// GetDailyReport returns the KPI row and alert list together. A day the
// pipeline never processed yields a nil report.
func (s *ReportService) GetDailyReport(ctx context.Context, day time.Time) (*DailyReport, error) {
	kpi, err := s.GetKpi(ctx, day)
	if err != nil {
		return nil, err
	}
	if kpi == nil {
		return nil, nil
	}

	alerts, err := s.GetAlerts(ctx, day)
	if err != nil {
		return nil, err
	}

	return &DailyReport{Day: day, Kpi: kpi, Alerts: alerts}, nil
}

func (s *ReportService) GetTopMovers(ctx context.Context, limit int) ([]domain.ProductVelocity, error) {
	movers, err := s.velocities.TopMovers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top movers: %w", err)
	}
	return movers, nil
}

func (s *ReportService) GetAvailableDays(ctx context.Context, limit int) ([]time.Time, error) {
	days, err := s.kpis.GetAvailableDays(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list available days: %w", err)
	}
	return days, nil
}

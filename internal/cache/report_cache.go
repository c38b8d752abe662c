package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/depomat/stockbi/internal/config"
	"github.com/depomat/stockbi/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	kpiKeyPrefix    = "bi:kpi"
	alertsKeyPrefix = "bi:alerts"
)

// ReportCache fronts the read API's per-day lookups. Entries expire on TTL;
// the pipeline does not invalidate, a re-run simply ages out within minutes.
type ReportCache interface {
	GetKpi(ctx context.Context, day time.Time) (*domain.DailyKpi, bool, error)
	SetKpi(ctx context.Context, day time.Time, kpi *domain.DailyKpi) error
	GetAlerts(ctx context.Context, day time.Time) ([]domain.AlertCandidate, bool, error)
	SetAlerts(ctx context.Context, day time.Time, alerts []domain.AlertCandidate) error
}

type redisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopReportCache struct{}

func NewReportCache(cfg config.CacheConfig) (ReportCache, error) {
	if !cfg.Enabled {
		return &noopReportCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisReportCache{client: client, ttl: ttl}, nil
}

func NewNoopReportCache() ReportCache {
	return &noopReportCache{}
}

func dayKey(prefix string, day time.Time) string {
	return fmt.Sprintf("%s:%s", prefix, day.Format("2006-01-02"))
}

func (c *redisReportCache) GetKpi(ctx context.Context, day time.Time) (*domain.DailyKpi, bool, error) {
	payload, err := c.client.Get(ctx, dayKey(kpiKeyPrefix, day)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var kpi domain.DailyKpi
	if err := json.Unmarshal(payload, &kpi); err != nil {
		return nil, false, fmt.Errorf("decode kpi cache: %w", err)
	}
	return &kpi, true, nil
}

func (c *redisReportCache) SetKpi(ctx context.Context, day time.Time, kpi *domain.DailyKpi) error {
	payload, err := json.Marshal(kpi)
	if err != nil {
		return fmt.Errorf("encode kpi cache: %w", err)
	}
	if err := c.client.Set(ctx, dayKey(kpiKeyPrefix, day), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisReportCache) GetAlerts(ctx context.Context, day time.Time) ([]domain.AlertCandidate, bool, error) {
	payload, err := c.client.Get(ctx, dayKey(alertsKeyPrefix, day)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var alerts []domain.AlertCandidate
	if err := json.Unmarshal(payload, &alerts); err != nil {
		return nil, false, fmt.Errorf("decode alerts cache: %w", err)
	}
	return alerts, true, nil
}

func (c *redisReportCache) SetAlerts(ctx context.Context, day time.Time, alerts []domain.AlertCandidate) error {
	payload, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("encode alerts cache: %w", err)
	}
	if err := c.client.Set(ctx, dayKey(alertsKeyPrefix, day), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (n *noopReportCache) GetKpi(ctx context.Context, day time.Time) (*domain.DailyKpi, bool, error) {
	return nil, false, nil
}

func (n *noopReportCache) SetKpi(ctx context.Context, day time.Time, kpi *domain.DailyKpi) error {
	return nil
}

func (n *noopReportCache) GetAlerts(ctx context.Context, day time.Time) ([]domain.AlertCandidate, bool, error) {
	return nil, false, nil
}

func (n *noopReportCache) SetAlerts(ctx context.Context, day time.Time, alerts []domain.AlertCandidate) error {
	return nil
}

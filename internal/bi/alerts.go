// internal/bi/alerts.go
package bi

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/depomat/stockbi/internal/config"
	"github.com/depomat/stockbi/internal/domain"
	"github.com/depomat/stockbi/internal/repository"
	"github.com/rs/zerolog/log"
)

// productNameMaxLen bounds the denormalized name column.
const productNameMaxLen = 490

// velocityCoverageFloor is the fraction of velocity rows that must have been
// calculated for the target day before classification runs without a
// staleness warning.
const velocityCoverageFloor = 0.9

// AlertClassifier turns one day's closing metrics plus current velocity into
// the risk-ranked candidate list.
type AlertClassifier struct {
	alerts     repository.AlertRepository
	velocities repository.VelocityRepository
	cfg        config.AlertConfig
}

func NewAlertClassifier(alerts repository.AlertRepository, velocities repository.VelocityRepository, cfg config.AlertConfig) *AlertClassifier {
	return &AlertClassifier{alerts: alerts, velocities: velocities, cfg: cfg}
}

// ComputeAlerts classifies every product with a metric row for the day and
// replaces that day's candidate set. The result only contains products that
// earned a risk level; healthy stock is dropped, not stored.
func (c *AlertClassifier) ComputeAlerts(ctx context.Context, day time.Time) error {
	sources, err := c.alerts.ListSources(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to list alert sources: %w", err)
	}

	if len(sources) == 0 {
		log.Warn().Time("day", day).Msg("no stock metrics for day, skipping alerts")
		return nil
	}

	c.warnOnStaleVelocity(ctx, day)

	candidates := make([]*domain.AlertCandidate, 0, len(sources))
	for i := range sources {
		if cand, ok := Classify(day, sources[i], c.cfg); ok {
			candidates = append(candidates, cand)
		}
	}

	if err := c.alerts.ReplaceForDay(ctx, day, candidates); err != nil {
		return fmt.Errorf("failed to replace alert candidates: %w", err)
	}

	counts := map[domain.RiskLevel]int{}
	for _, cand := range candidates {
		counts[cand.RiskLevel]++
	}
	log.Info().
		Time("day", day).
		Int("evaluated", len(sources)).
		Int("p0", counts[domain.RiskP0]).
		Int("p1", counts[domain.RiskP1]).
		Int("p2", counts[domain.RiskP2]).
		Msg("alert candidates computed")

	return nil
}

// warnOnStaleVelocity logs when most velocity rows were calculated for some
// other day, which usually means the velocity stage was skipped or failed.
func (c *AlertClassifier) warnOnStaleVelocity(ctx context.Context, day time.Time) {
	cov, err := c.velocities.Coverage(ctx, day)
	if err != nil {
		log.Warn().Err(err).Time("day", day).Msg("could not check velocity coverage")
		return
	}
	if cov.Total == 0 {
		log.Warn().Time("day", day).Msg("velocity table is empty, classifying with zero consumption")
		return
	}
	ratio := float64(cov.ForDay) / float64(cov.Total)
	if ratio < velocityCoverageFloor {
		log.Warn().
			Time("day", day).
			Int("for_day", cov.ForDay).
			Int("total", cov.Total).
			Msg("velocity rows are stale for this day")
	}
}

// Classify evaluates one product against the thresholds. The second return is
// false when the product carries no risk and should not be stored.
//
// Severity is resolved highest-first: P0 for stockouts, imminent depletion or
// a price anomaly; P1 for depletion within the longer horizon; P2 for dead
// stock holding meaningful capital.
func Classify(day time.Time, src repository.AlertSource, cfg config.AlertConfig) (*domain.AlertCandidate, bool) {
	closingPrice := src.ClosingPrice
	if closingPrice != nil && *closingPrice <= 0 {
		closingPrice = nil
	}

	stockValue := roundTo(src.ClosingQty*priceOrZero(closingPrice), 2)

	var daysLeft *float64
	if src.AvgOut30d > 0 {
		d := roundTo(src.ClosingQty/src.AvgOut30d, 1)
		daysLeft = &d
	}

	priceChangePct := 0.0
	if src.OpeningPrice != nil && *src.OpeningPrice > 0 {
		pct := (priceOrZero(closingPrice) - *src.OpeningPrice) / *src.OpeningPrice * 100
		priceChangePct = roundTo(pct, 2)
	}
	priceSpike := priceChangePct >= cfg.PriceSpikePct

	outOfStock := src.ClosingQty <= 0
	critical := daysLeft != nil && *daysLeft <= float64(cfg.P0DaysLeft)
	low := daysLeft != nil && *daysLeft > float64(cfg.P0DaysLeft) && *daysLeft <= float64(cfg.P1DaysLeft)
	noConsumption := src.AvgOut30d == 0
	deadStock := noConsumption && src.ClosingQty > 0 && stockValue >= float64(cfg.DeadStockValueThreshold)

	flags := domain.ReasonFlags{}
	if outOfStock {
		flags = append(flags, domain.FlagOutOfStock)
	}
	if critical {
		flags = append(flags, domain.FlagCriticalStock)
	}
	if low {
		flags = append(flags, domain.FlagLowStock)
	}
	if priceSpike {
		flags = append(flags, domain.FlagPriceSpike)
	}
	if noConsumption {
		flags = append(flags, domain.FlagNoConsumption30)
	}
	if deadStock {
		flags = append(flags, domain.FlagDeadStock)
	}

	var risk domain.RiskLevel
	switch {
	case outOfStock || critical || priceSpike:
		risk = domain.RiskP0
	case low:
		risk = domain.RiskP1
	case deadStock:
		risk = domain.RiskP2
	default:
		return nil, false
	}

	return &domain.AlertCandidate{
		Day:                day,
		ReferenceProductID: src.ReferenceProductID,
		ProductName:        normalizeProductName(src.ProductName),
		ClosingQty:         src.ClosingQty,
		ClosingPrice:       closingPrice,
		StockValue:         stockValue,
		AvgOut30d:          src.AvgOut30d,
		DaysLeftEstimate:   daysLeft,
		RiskLevel:          risk,
		ReasonFlags:        flags,
	}, true
}

// normalizeProductName decodes HTML entities the catalog sync left behind and
// bounds the result to the column width.
func normalizeProductName(name string) string {
	name = strings.TrimSpace(html.UnescapeString(name))
	runes := []rune(name)
	if len(runes) > productNameMaxLen {
		return string(runes[:productNameMaxLen])
	}
	return name
}

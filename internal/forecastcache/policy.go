package forecastcache

import (
	"context"
	"fmt"

	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Forecaster produces a fresh forecast sequence for a coordinate.
type Forecaster interface {
	Forecast(ctx context.Context, coord model.Coordinate) ([]model.DailyForecast, error)
}

// CoordinateSource yields the coordinate for the location being resolved. It
// is consulted only on a cache miss.
type CoordinateSource func(ctx context.Context) (model.Coordinate, error)

// MetricsRecorder interface for recording metrics
type MetricsRecorder interface {
	RecordCacheHit(ctx context.Context, cacheType string)
	RecordCacheMiss(ctx context.Context, cacheType string)
}

const cacheType = "weekly_forecast"

// Resolution is the outcome of ResolveCurrent. ToPersist is nil on a hit and
// holds the full fresh sequence on a miss; the caller owns writing it back.
type Resolution struct {
	Current   model.DailyForecast
	ToPersist []model.DailyForecast
	Hit       bool
}

// Policy bounds weather-provider calls to at most one per location per day.
type Policy struct {
	forecaster Forecaster
	logger     *zap.Logger
	tele       *telemetry.Telemetry
	metrics    MetricsRecorder
}

func NewPolicy(forecaster Forecaster, logger *zap.Logger, tele *telemetry.Telemetry) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		forecaster: forecaster,
		logger:     logger.With(zap.String("component", "forecastcache")),
		tele:       tele,
	}
}

func (p *Policy) SetMetricsRecorder(metrics MetricsRecorder) {
	p.metrics = metrics
}

// ResolveCurrent returns today's entry from cached when present, without any
// upstream call. Otherwise it resolves the coordinate, fetches a fresh
// sequence and returns it for wholesale replacement of the cache.
func (p *Policy) ResolveCurrent(ctx context.Context, cached []model.DailyForecast, today string, source CoordinateSource) (Resolution, error) {
	ctx, span := p.tele.StartSpan(ctx, "forecastcache.ResolveCurrent",
		attribute.String("today", today),
		attribute.Int("cached_days", len(cached)),
	)
	defer span.End()

	if current, ok := Find(cached, today); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		if p.metrics != nil {
			p.metrics.RecordCacheHit(ctx, cacheType)
		}
		return Resolution{Current: current, Hit: true}, nil
	}

	span.SetAttributes(attribute.Bool("cache_hit", false))
	if p.metrics != nil {
		p.metrics.RecordCacheMiss(ctx, cacheType)
	}
	p.logger.Debug("Weekly cache miss", zap.String("today", today), zap.Int("cached_days", len(cached)))

	coord, err := source(ctx)
	if err != nil {
		return Resolution{}, err
	}

	fresh, err := p.forecaster.Forecast(ctx, coord)
	if err != nil {
		return Resolution{}, err
	}

	current, ok := Find(fresh, today)
	if !ok {
		p.logger.Warn("Fresh forecast does not cover today",
			zap.String("today", today),
			zap.Int("days", len(fresh)))
		return Resolution{}, model.NewFailure(model.KindNoForecastForToday,
			fmt.Errorf("%d fresh days, none dated %s", len(fresh), today))
	}

	return Resolution{Current: current, ToPersist: fresh}, nil
}

// Find returns the first entry dated day.
func Find(days []model.DailyForecast, day string) (model.DailyForecast, bool) {
	for _, d := range days {
		if d.Date == day {
			return d, true
		}
	}
	return model.DailyForecast{}, false
}

package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/internal/service"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MaxForecastDays caps the sequence returned to callers and persisted in the weekly cache.
const MaxForecastDays = 7

// Aggregator tries its providers in order and returns the first usable forecast.
// Data from different providers is never merged.
type Aggregator struct {
	providers []service.ForecastProvider
	logger    *zap.Logger
	tele      *telemetry.Telemetry
	metrics   MetricsRecorder
}

// MetricsRecorder interface for recording metrics
type MetricsRecorder interface {
	RecordFallback(ctx context.Context, failedProvider string)
}

// NewAggregator takes providers in priority order, primary first.
func NewAggregator(providers []service.ForecastProvider, logger *zap.Logger, tele *telemetry.Telemetry) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	agg := &Aggregator{
		providers: providers,
		logger:    logger.With(zap.String("component", "aggregator")),
		tele:      tele,
	}

	for i, p := range providers {
		agg.logger.Info("Registered forecast provider", zap.String("provider", p.Name()), zap.Int("priority", i))
	}

	return agg
}

// SetMetricsRecorder sets the metrics recorder for the aggregator
func (a *Aggregator) SetMetricsRecorder(metrics MetricsRecorder) {
	a.metrics = metrics
}

func (a *Aggregator) Forecast(ctx context.Context, coord model.Coordinate) ([]model.DailyForecast, error) {
	ctx, span := a.tele.StartSpan(ctx, "aggregator.Forecast",
		attribute.Float64("lat", coord.Latitude),
		attribute.Float64("lon", coord.Longitude),
	)
	defer span.End()

	reqLogger := a.logger
	if requestID, ok := ctx.Value(model.RequestIDKey).(string); ok && requestID != "" {
		reqLogger = a.logger.With(zap.String("request_id", requestID))
	}

	var errs []error
	for i, p := range a.providers {
		days, err := p.Forecast(ctx, coord)
		if err == nil {
			days = normalize(days)
			if len(days) > 0 {
				span.SetAttributes(
					attribute.String("provider", p.Name()),
					attribute.Int("days", len(days)),
					attribute.Bool("fallback", i > 0),
				)
				return days, nil
			}
			err = errors.New("provider returned no forecast days")
		}

		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))

		// a failure is only suppressed when another provider remains
		if i < len(a.providers)-1 {
			reqLogger.Warn("Forecast provider failed, falling back",
				zap.String("provider", p.Name()),
				zap.String("next", a.providers[i+1].Name()),
				zap.Error(err))
			a.tele.RecordError(ctx, err, map[string]interface{}{"provider": p.Name(), "suppressed": true})
			if a.metrics != nil {
				a.metrics.RecordFallback(ctx, p.Name())
			}
		}
	}

	err := errors.Join(errs...)
	if len(errs) == 0 {
		err = errors.New("no forecast providers configured")
	}

	span.SetAttributes(attribute.Bool("success", false))
	span.RecordError(err)
	reqLogger.Error("All forecast providers failed", zap.Error(err))

	return nil, model.NewFailure(model.KindWeatherUnavailable, err)
}

// normalize keeps the first entry for each date, in provider order, up to MaxForecastDays.
func normalize(days []model.DailyForecast) []model.DailyForecast {
	seen := make(map[string]struct{}, len(days))
	out := make([]model.DailyForecast, 0, len(days))
	for _, d := range days {
		if d.Date == "" {
			continue
		}
		if _, dup := seen[d.Date]; dup {
			continue
		}
		seen[d.Date] = struct{}{}
		out = append(out, d)
		if len(out) == MaxForecastDays {
			break
		}
	}
	return out
}

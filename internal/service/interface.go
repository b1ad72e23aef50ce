package service

import (
	"context"

	"github.com/vzahanych/area-insight/internal/model"
)

// ForecastProvider is implemented by one adapter per weather provider. Each
// adapter owns the translation of its wire format into DailyForecast values.
type ForecastProvider interface {
	Forecast(ctx context.Context, coord model.Coordinate) ([]model.DailyForecast, error)
	Name() string
}

// CoordinateResolver turns a postcode into a coordinate.
type CoordinateResolver interface {
	Resolve(ctx context.Context, postcode string) (model.Coordinate, error)
}

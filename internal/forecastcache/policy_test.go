package forecastcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vzahanych/area-insight/internal/model"
	"go.uber.org/zap/zaptest"
)

type countingForecaster struct {
	days  []model.DailyForecast
	err   error
	calls int
}

func (c *countingForecaster) Forecast(ctx context.Context, coord model.Coordinate) ([]model.DailyForecast, error) {
	c.calls++
	return c.days, c.err
}

type countingMetrics struct {
	hits, misses int
}

func (c *countingMetrics) RecordCacheHit(ctx context.Context, cacheType string)  { c.hits++ }
func (c *countingMetrics) RecordCacheMiss(ctx context.Context, cacheType string) { c.misses++ }

func weekFrom(start string) []model.DailyForecast {
	dates := map[string][]string{
		"2024-06-15": {"2024-06-15", "2024-06-16", "2024-06-17", "2024-06-18", "2024-06-19", "2024-06-20", "2024-06-21"},
		"2024-06-08": {"2024-06-08", "2024-06-09", "2024-06-10", "2024-06-11", "2024-06-12", "2024-06-13", "2024-06-14"},
	}[start]
	out := make([]model.DailyForecast, 0, len(dates))
	for i, d := range dates {
		out = append(out, model.DailyForecast{Date: d, Condition: "clear", TemperatureMin: float64(i), TemperatureMax: float64(i + 10)})
	}
	return out
}

type countingSource struct {
	coord model.Coordinate
	err   error
	calls int
}

func (c *countingSource) resolve(ctx context.Context) (model.Coordinate, error) {
	c.calls++
	return c.coord, c.err
}

func TestResolveCurrent_HitMakesNoCalls(t *testing.T) {
	forecaster := &countingForecaster{}
	source := &countingSource{}
	metrics := &countingMetrics{}
	p := NewPolicy(forecaster, zaptest.NewLogger(t), nil)
	p.SetMetricsRecorder(metrics)

	res, err := p.ResolveCurrent(context.Background(), weekFrom("2024-06-15"), "2024-06-17", source.resolve)
	require.NoError(t, err)

	assert.True(t, res.Hit)
	assert.Equal(t, "2024-06-17", res.Current.Date)
	assert.Nil(t, res.ToPersist)
	assert.Equal(t, 0, forecaster.calls)
	assert.Equal(t, 0, source.calls)
	assert.Equal(t, 1, metrics.hits)
}

func TestResolveCurrent_EmptyCacheFetchesWeek(t *testing.T) {
	forecaster := &countingForecaster{days: weekFrom("2024-06-15")}
	source := &countingSource{coord: model.Coordinate{Latitude: 51.501, Longitude: -0.1416}}
	metrics := &countingMetrics{}
	p := NewPolicy(forecaster, zaptest.NewLogger(t), nil)
	p.SetMetricsRecorder(metrics)

	res, err := p.ResolveCurrent(context.Background(), nil, "2024-06-15", source.resolve)
	require.NoError(t, err)

	assert.False(t, res.Hit)
	assert.Equal(t, "2024-06-15", res.Current.Date)
	assert.Len(t, res.ToPersist, 7)
	assert.Equal(t, 1, forecaster.calls)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, 1, metrics.misses)
}

func TestResolveCurrent_StaleCacheIsReplaced(t *testing.T) {
	forecaster := &countingForecaster{days: weekFrom("2024-06-15")}
	source := &countingSource{}
	p := NewPolicy(forecaster, zaptest.NewLogger(t), nil)

	res, err := p.ResolveCurrent(context.Background(), weekFrom("2024-06-08"), "2024-06-16", source.resolve)
	require.NoError(t, err)

	assert.Equal(t, "2024-06-16", res.Current.Date)
	assert.Equal(t, weekFrom("2024-06-15"), res.ToPersist)
}

func TestResolveCurrent_NoForecastForToday(t *testing.T) {
	forecaster := &countingForecaster{days: weekFrom("2024-06-08")}
	source := &countingSource{}
	p := NewPolicy(forecaster, zaptest.NewLogger(t), nil)

	res, err := p.ResolveCurrent(context.Background(), nil, "2024-06-30", source.resolve)
	assert.ErrorIs(t, err, model.ErrNoForecastForToday)
	assert.Nil(t, res.ToPersist)
}

func TestResolveCurrent_PropagatesFailures(t *testing.T) {
	t.Run("resolver", func(t *testing.T) {
		forecaster := &countingForecaster{}
		source := &countingSource{err: model.NewFailure(model.KindLocationUnresolvable, errors.New("404"))}
		p := NewPolicy(forecaster, zaptest.NewLogger(t), nil)

		_, err := p.ResolveCurrent(context.Background(), nil, "2024-06-15", source.resolve)
		assert.ErrorIs(t, err, model.ErrLocationUnresolvable)
		assert.Equal(t, 0, forecaster.calls)
	})

	t.Run("aggregator", func(t *testing.T) {
		forecaster := &countingForecaster{err: model.NewFailure(model.KindWeatherUnavailable, errors.New("both down"))}
		source := &countingSource{}
		p := NewPolicy(forecaster, zaptest.NewLogger(t), nil)

		_, err := p.ResolveCurrent(context.Background(), nil, "2024-06-15", source.resolve)
		assert.ErrorIs(t, err, model.ErrWeatherUnavailable)
	})
}

func TestFind(t *testing.T) {
	days := []model.DailyForecast{{Date: "2024-06-15", Condition: "a"}, {Date: "2024-06-15", Condition: "b"}}

	got, ok := Find(days, "2024-06-15")
	assert.True(t, ok)
	assert.Equal(t, "a", got.Condition)

	_, ok = Find(days, "2024-06-16")
	assert.False(t, ok)
}

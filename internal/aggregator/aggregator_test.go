package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/internal/service"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.uber.org/zap/zaptest"
)

type mockProvider struct {
	name  string
	days  []model.DailyForecast
	err   error
	mu    sync.Mutex
	calls []model.Coordinate
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Forecast(ctx context.Context, coord model.Coordinate) ([]model.DailyForecast, error) {
	m.mu.Lock()
	m.calls = append(m.calls, coord)
	m.mu.Unlock()
	return m.days, m.err
}

type mockMetrics struct {
	fallbacks []string
}

func (m *mockMetrics) RecordFallback(ctx context.Context, failedProvider string) {
	m.fallbacks = append(m.fallbacks, failedProvider)
}

func week(condition string) []model.DailyForecast {
	dates := []string{"2024-06-15", "2024-06-16", "2024-06-17", "2024-06-18", "2024-06-19", "2024-06-20", "2024-06-21"}
	out := make([]model.DailyForecast, 0, len(dates))
	for _, d := range dates {
		out = append(out, model.DailyForecast{Date: d, Condition: condition, TemperatureMin: 10, TemperatureMax: 20})
	}
	return out
}

func newTestAggregator(t *testing.T, providers ...service.ForecastProvider) (*Aggregator, *mockMetrics) {
	agg := NewAggregator(providers, zaptest.NewLogger(t), &telemetry.Telemetry{})
	metrics := &mockMetrics{}
	agg.SetMetricsRecorder(metrics)
	return agg, metrics
}

func TestAggregator_PrimarySuccess(t *testing.T) {
	primary := &mockProvider{name: "7timer", days: week("clear")}
	fallback := &mockProvider{name: "open-meteo", days: week("cloudy")}
	agg, metrics := newTestAggregator(t, primary, fallback)

	days, err := agg.Forecast(context.Background(), model.Coordinate{Latitude: 51.5, Longitude: -0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(days) != 7 || days[0].Condition != "clear" {
		t.Errorf("expected primary week, got %+v", days)
	}
	if len(fallback.calls) != 0 {
		t.Errorf("fallback should not be called, got %d calls", len(fallback.calls))
	}
	if len(metrics.fallbacks) != 0 {
		t.Errorf("expected no fallback metrics, got %v", metrics.fallbacks)
	}
}

func TestAggregator_FallbackOnPrimaryFailure(t *testing.T) {
	coord := model.Coordinate{Latitude: 51.5, Longitude: -0.1}
	primary := &mockProvider{name: "7timer", err: errors.New("7timer returned status 503")}
	fallback := &mockProvider{name: "open-meteo", days: []model.DailyForecast{
		{Date: "2024-06-15", Condition: "rain (slight)", TemperatureMin: 11, TemperatureMax: 18},
	}}
	agg, metrics := newTestAggregator(t, primary, fallback)

	days, err := agg.Forecast(context.Background(), coord)
	if err != nil {
		t.Fatalf("fallback result should hide the primary failure, got %v", err)
	}

	if len(days) != 1 || days[0].Condition != "rain (slight)" {
		t.Errorf("unexpected fallback days: %+v", days)
	}
	if len(primary.calls) != 1 || len(fallback.calls) != 1 {
		t.Errorf("expected exactly one attempt each, got primary=%d fallback=%d", len(primary.calls), len(fallback.calls))
	}
	if fallback.calls[0] != coord {
		t.Errorf("fallback called with %+v, want %+v", fallback.calls[0], coord)
	}
	if len(metrics.fallbacks) != 1 || metrics.fallbacks[0] != "7timer" {
		t.Errorf("expected suppressed primary failure to be recorded, got %v", metrics.fallbacks)
	}
}

func TestAggregator_FallbackOnEmptyPrimary(t *testing.T) {
	primary := &mockProvider{name: "7timer"}
	fallback := &mockProvider{name: "open-meteo", days: week("fog")}
	agg, _ := newTestAggregator(t, primary, fallback)

	days, err := agg.Forecast(context.Background(), model.Coordinate{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days[0].Condition != "fog" {
		t.Errorf("expected fallback data, got %+v", days[0])
	}
}

func TestAggregator_BothFail(t *testing.T) {
	primary := &mockProvider{name: "7timer", err: errors.New("boom")}
	fallback := &mockProvider{name: "open-meteo", err: model.NewFailure(model.KindUpstreamTransport, errors.New("dial tcp"))}
	agg, metrics := newTestAggregator(t, primary, fallback)

	days, err := agg.Forecast(context.Background(), model.Coordinate{})
	if days != nil {
		t.Errorf("expected no data, got %+v", days)
	}
	if !errors.Is(err, model.ErrWeatherUnavailable) {
		t.Fatalf("expected WeatherUnavailable, got %v", err)
	}
	if !model.IsTransport(err) {
		t.Errorf("transport cause should remain visible in the chain")
	}
	if len(metrics.fallbacks) != 1 {
		t.Errorf("only the primary failure is a suppressed fallback, got %v", metrics.fallbacks)
	}
}

func TestAggregator_NoProviders(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, err := agg.Forecast(context.Background(), model.Coordinate{})
	if !errors.Is(err, model.ErrWeatherUnavailable) {
		t.Fatalf("expected WeatherUnavailable, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	in := append(week("clear"), model.DailyForecast{Date: "2024-06-22"}, model.DailyForecast{Date: "2024-06-15", Condition: "dup"})
	in = append([]model.DailyForecast{{Date: ""}}, in...)

	out := normalize(in)
	if len(out) != MaxForecastDays {
		t.Fatalf("expected %d days, got %d", MaxForecastDays, len(out))
	}
	if out[0].Date != "2024-06-15" || out[0].Condition != "clear" {
		t.Errorf("expected first occurrence to win, got %+v", out[0])
	}
	for i := 1; i < len(out); i++ {
		if out[i].Date == out[i-1].Date {
			t.Errorf("duplicate date %s", out[i].Date)
		}
	}
}

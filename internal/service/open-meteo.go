package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const unknownCondition = "unknown"

var weatherCodeLabels = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "cloudy",
	45: "fog",
	48: "depositing rime fog",
	51: "drizzle (light)",
	53: "drizzle (moderate)",
	55: "drizzle (dense intensity)",
	56: "freezing drizzle (light)",
	57: "freezing drizzle (dense intensity)",
	61: "rain (slight)",
	63: "rain (moderate)",
	65: "rain (heavy intensity)",
	66: "freezing rain (light)",
	67: "freezing rain (heavy intensity)",
	71: "snow fall (slight)",
	73: "snow fall (moderate)",
	75: "snow fall (heavy intensity)",
	77: "snow grains",
	80: "rain showers (slight)",
	81: "rain showers (moderate)",
	82: "rain showers (violent)",
	85: "snow showers (slight)",
	86: "snow showers (heavy)",
	95: "thunderstorm (slight)",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

// ConditionForCode maps a WMO weather code to its label.
func ConditionForCode(code int) string {
	if label, ok := weatherCodeLabels[code]; ok {
		return label
	}
	return unknownCondition
}

type OpenMeteoService struct {
	baseURL  string
	upstream *Upstream
	zones    TimezoneFinder
	logger   *zap.Logger
	tele     *telemetry.Telemetry
}

type openMeteoResponse struct {
	Timezone string `json:"timezone"`
	Daily    *struct {
		Time           []string   `json:"time"`
		WeatherCode    []*int     `json:"weather_code"`
		TemperatureMax []*float64 `json:"temperature_2m_max"`
		TemperatureMin []*float64 `json:"temperature_2m_min"`
		WindSpeedMax   []*float64 `json:"wind_speed_10m_max"`
	} `json:"daily"`
}

func NewOpenMeteoService(cfg config.ProviderConfig, zones TimezoneFinder, logger *zap.Logger, tele *telemetry.Telemetry) *OpenMeteoService {
	return NewOpenMeteoServiceWithUpstream(cfg.BaseURL, NewUpstream("open-meteo", cfg, logger, tele), zones, logger, tele)
}

func NewOpenMeteoServiceWithUpstream(baseURL string, upstream *Upstream, zones TimezoneFinder, logger *zap.Logger, tele *telemetry.Telemetry) *OpenMeteoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenMeteoService{
		baseURL:  baseURL,
		upstream: upstream,
		zones:    zones,
		logger:   logger,
		tele:     tele,
	}
}

func (s *OpenMeteoService) Name() string {
	return "open-meteo"
}

func (s *OpenMeteoService) Forecast(ctx context.Context, coord model.Coordinate) ([]model.DailyForecast, error) {
	ctx, span := s.tele.StartSpan(ctx, "open-meteo.Forecast",
		attribute.Float64("lat", coord.Latitude),
		attribute.Float64("lon", coord.Longitude),
	)
	defer span.End()

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	q.Set("daily", strings.Join([]string{
		"weather_code",
		"temperature_2m_max",
		"temperature_2m_min",
		"wind_speed_10m_max",
	}, ","))
	q.Set("timezone", s.timezoneFor(coord))
	u.RawQuery = q.Encode()

	var resp openMeteoResponse
	if err := s.upstream.GetJSON(ctx, u.String(), &resp); err != nil {
		return nil, err
	}

	if resp.Daily == nil || len(resp.Daily.Time) == 0 {
		return nil, errors.New("open-meteo response has no daily block")
	}

	n := len(resp.Daily.Time)
	if len(resp.Daily.WeatherCode) != n || len(resp.Daily.TemperatureMax) != n || len(resp.Daily.TemperatureMin) != n {
		return nil, fmt.Errorf("open-meteo daily arrays differ in length (time=%d code=%d max=%d min=%d)",
			n, len(resp.Daily.WeatherCode), len(resp.Daily.TemperatureMax), len(resp.Daily.TemperatureMin))
	}

	// days past the model horizon come back as nulls
	days := make([]model.DailyForecast, 0, n)
	for i := 0; i < n; i++ {
		tmin, tmax := resp.Daily.TemperatureMin[i], resp.Daily.TemperatureMax[i]
		if tmin == nil || tmax == nil {
			continue
		}
		condition := unknownCondition
		if code := resp.Daily.WeatherCode[i]; code != nil {
			condition = ConditionForCode(*code)
		}
		days = append(days, model.DailyForecast{
			Date:           resp.Daily.Time[i],
			Condition:      condition,
			TemperatureMin: *tmin,
			TemperatureMax: *tmax,
		})
	}
	if len(days) == 0 {
		return nil, errors.New("open-meteo response has no day with temperatures")
	}

	span.SetAttributes(
		attribute.Int("days", len(days)),
		attribute.String("timezone", resp.Timezone),
	)
	s.logger.Debug("Open-Meteo forecast fetched", zap.Int("days", len(days)), zap.String("timezone", resp.Timezone))

	return days, nil
}

// timezoneFor buckets days by the location's own timezone, letting the provider
// decide when no finder is configured.
func (s *OpenMeteoService) timezoneFor(coord model.Coordinate) string {
	if s.zones == nil {
		return "auto"
	}
	name, err := s.zones.Timezone(coord)
	if err != nil {
		s.logger.Debug("Timezone lookup failed", zap.Error(err))
		return "auto"
	}
	return name
}

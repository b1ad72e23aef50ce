package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const sevenTimerDateLayout = "20060102"

// SevenTimerService reads the 7Timer civil-light product. Conditions are
// passed through in the provider's own vocabulary.
type SevenTimerService struct {
	baseURL  string
	upstream *Upstream
	logger   *zap.Logger
	tele     *telemetry.Telemetry
}

type sevenTimerResponse struct {
	Product    string `json:"product"`
	Init       string `json:"init"`
	Dataseries []struct {
		Date    int    `json:"date"`
		Weather string `json:"weather"`
		Temp2m  struct {
			Max float64 `json:"max"`
			Min float64 `json:"min"`
		} `json:"temp2m"`
		Wind10mMax int `json:"wind10m_max"`
	} `json:"dataseries"`
}

func NewSevenTimerService(cfg config.ProviderConfig, logger *zap.Logger, tele *telemetry.Telemetry) *SevenTimerService {
	return NewSevenTimerServiceWithUpstream(cfg.BaseURL, NewUpstream("7timer", cfg, logger, tele), logger, tele)
}

func NewSevenTimerServiceWithUpstream(baseURL string, upstream *Upstream, logger *zap.Logger, tele *telemetry.Telemetry) *SevenTimerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SevenTimerService{
		baseURL:  baseURL,
		upstream: upstream,
		logger:   logger,
		tele:     tele,
	}
}

func (s *SevenTimerService) Name() string {
	return "7timer"
}

func (s *SevenTimerService) Forecast(ctx context.Context, coord model.Coordinate) ([]model.DailyForecast, error) {
	ctx, span := s.tele.StartSpan(ctx, "7timer.Forecast",
		attribute.Float64("lat", coord.Latitude),
		attribute.Float64("lon", coord.Longitude),
	)
	defer span.End()

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	q.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	q.Set("lang", "en")
	q.Set("unit", "metric")
	q.Set("output", "json")
	u.RawQuery = q.Encode()

	var resp sevenTimerResponse
	if err := s.upstream.GetJSON(ctx, u.String(), &resp); err != nil {
		return nil, err
	}

	if len(resp.Dataseries) == 0 {
		return nil, errors.New("7timer response has no dataseries")
	}

	days := make([]model.DailyForecast, 0, len(resp.Dataseries))
	for _, d := range resp.Dataseries {
		date, err := normalizePackedDate(d.Date)
		if err != nil {
			return nil, err
		}
		days = append(days, model.DailyForecast{
			Date:           date,
			Condition:      ConditionForCivilLight(d.Weather),
			TemperatureMin: d.Temp2m.Min,
			TemperatureMax: d.Temp2m.Max,
		})
	}

	span.SetAttributes(attribute.Int("days", len(days)))
	s.logger.Debug("7timer forecast fetched", zap.Int("days", len(days)))

	return days, nil
}

// civilLightLabels maps 7Timer civil-light weather types onto the same
// vocabulary as weatherCodeLabels.
var civilLightLabels = map[string]string{
	"clear":     "clear sky",
	"pcloudy":   "partly cloudy",
	"mcloudy":   "cloudy",
	"cloudy":    "cloudy",
	"humid":     "fog",
	"lightrain": "rain (slight)",
	"oshower":   "rain showers (slight)",
	"ishower":   "rain showers (slight)",
	"rain":      "rain (moderate)",
	"lightsnow": "snow fall (slight)",
	"snow":      "snow fall (moderate)",
	"rainsnow":  "freezing rain (light)",
	"ts":        "thunderstorm (slight)",
	"tsrain":    "thunderstorm (slight)",
}

// ConditionForCivilLight maps a 7Timer weather type to its label.
func ConditionForCivilLight(weather string) string {
	if label, ok := civilLightLabels[weather]; ok {
		return label
	}
	return unknownCondition
}

// normalizePackedDate converts an integer like 20240615 to "2024-06-15".
func normalizePackedDate(packed int) (string, error) {
	t, err := time.Parse(sevenTimerDateLayout, fmt.Sprintf("%08d", packed))
	if err != nil {
		return "", fmt.Errorf("invalid 7timer date %d: %w", packed, err)
	}
	return t.Format(model.DateLayout), nil
}

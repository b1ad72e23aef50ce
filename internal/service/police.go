package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PoliceService queries street-level crime records around a point.
type PoliceService struct {
	baseURL  string
	upstream *Upstream
	logger   *zap.Logger
	tele     *telemetry.Telemetry
}

func NewPoliceService(cfg config.ProviderConfig, logger *zap.Logger, tele *telemetry.Telemetry) *PoliceService {
	return NewPoliceServiceWithUpstream(cfg.BaseURL, NewUpstream("police", cfg, logger, tele), logger, tele)
}

func NewPoliceServiceWithUpstream(baseURL string, upstream *Upstream, logger *zap.Logger, tele *telemetry.Telemetry) *PoliceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoliceService{
		baseURL:  strings.TrimRight(baseURL, "/"),
		upstream: upstream,
		logger:   logger,
		tele:     tele,
	}
}

// StreetCrimes returns the provider's records untouched. An empty month lets
// the provider choose its latest month.
func (s *PoliceService) StreetCrimes(ctx context.Context, category string, coord model.Coordinate, month string) ([]map[string]interface{}, error) {
	ctx, span := s.tele.StartSpan(ctx, "police.StreetCrimes",
		attribute.String("category", category),
		attribute.String("month", month),
	)
	defer span.End()

	u, err := url.Parse(s.baseURL + "/" + url.PathEscape(category))
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	if month != "" {
		q.Set("date", month)
	}
	u.RawQuery = q.Encode()

	var records []map[string]interface{}
	if err := s.upstream.GetJSON(ctx, u.String(), &records); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

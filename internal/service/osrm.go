package service

import (
	"context"
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

// RouteService fetches a route summary between two points from an OSRM server.
type RouteService struct {
	baseURL  string
	upstream *Upstream
	logger   *zap.Logger
	tele     *telemetry.Telemetry
}

type osrmResponse struct {
	Code      string        `json:"code"`
	Routes    []model.Route `json:"routes"`
	Waypoints []struct {
		Hint     string    `json:"hint"`
		Distance float64   `json:"distance"`
		Name     string    `json:"name"`
		Location []float64 `json:"location"`
	} `json:"waypoints"`
}

func NewRouteService(cfg config.ProviderConfig, logger *zap.Logger, tele *telemetry.Telemetry) *RouteService {
	return NewRouteServiceWithUpstream(cfg.BaseURL, NewUpstream("osrm", cfg, logger, tele), logger, tele)
}

func NewRouteServiceWithUpstream(baseURL string, upstream *Upstream, logger *zap.Logger, tele *telemetry.Telemetry) *RouteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteService{
		baseURL:  strings.TrimRight(baseURL, "/"),
		upstream: upstream,
		logger:   logger,
		tele:     tele,
	}
}

// Route maps the provider response one-to-one. Any failure is reported as
// model.ErrRouteUnavailable.
func (s *RouteService) Route(ctx context.Context, mode string, origin, destination model.Coordinate) (model.RouteSummary, error) {
	ctx, span := s.tele.StartSpan(ctx, "osrm.Route", attribute.String("mode", mode))
	defer span.End()

	u, err := url.Parse(fmt.Sprintf("%s/%s/%s;%s", s.baseURL, url.PathEscape(mode), lonLat(origin), lonLat(destination)))
	if err != nil {
		return model.RouteSummary{}, model.NewFailure(model.KindRouteUnavailable, err)
	}

	q := u.Query()
	q.Set("overview", "false")
	u.RawQuery = q.Encode()

	var resp osrmResponse
	if err := s.upstream.GetJSON(ctx, u.String(), &resp); err != nil {
		s.logger.Warn("Route lookup failed", zap.String("mode", mode), zap.Error(err))
		return model.RouteSummary{}, model.NewFailure(model.KindRouteUnavailable, err)
	}

	summary := model.RouteSummary{
		StatusCode: resp.Code,
		Routes:     resp.Routes,
		Waypoints:  make([]model.Waypoint, 0, len(resp.Waypoints)),
	}
	for _, wp := range resp.Waypoints {
		w := model.Waypoint{
			Distance: wp.Distance,
			Name:     wp.Name,
			Hint:     wp.Hint,
		}
		if len(wp.Location) >= 2 {
			w.Coordinate = model.Coordinate{Longitude: wp.Location[0], Latitude: wp.Location[1]}
		}
		summary.Waypoints = append(summary.Waypoints, w)
	}

	span.SetAttributes(
		attribute.String("code", resp.Code),
		attribute.Int("routes", len(resp.Routes)),
	)

	return summary, nil
}

func lonLat(c model.Coordinate) string {
	return strconv.FormatFloat(c.Longitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Latitude, 'f', -1, 64)
}

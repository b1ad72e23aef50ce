package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vzahanych/area-insight/internal/forecastcache"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/internal/notify"
	"github.com/vzahanych/area-insight/internal/service"
	"github.com/vzahanych/area-insight/internal/store"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const routeUnresolvableMessage = "Invalid postcode(s) or unable to retrieve coordinates"

type Forecaster interface {
	Forecast(ctx context.Context, coord model.Coordinate) ([]model.DailyForecast, error)
}

type IncidentFetcher interface {
	Fetch(ctx context.Context, category string, coord model.Coordinate, month string) ([]model.IncidentRecord, error)
}

type RouteFetcher interface {
	Route(ctx context.Context, mode string, origin, destination model.Coordinate) (model.RouteSummary, error)
}

// Deps groups the collaborators of Service. Publisher may be nil.
type Deps struct {
	Resolver  service.CoordinateResolver
	Weather   Forecaster
	Incidents IncidentFetcher
	Routes    RouteFetcher
	Cache     *forecastcache.Policy
	Store     store.LocationStore
	Publisher notify.Publisher
}

type Options struct {
	// CallTimeout bounds each operation. Zero disables the bound.
	CallTimeout time.Duration
	// Location is the calendar used for "today". Nil means time.Local.
	Location *time.Location
	Now      func() time.Time
}

// Service exposes the downstream operations: weather, incidents, route and
// combined location info.
type Service struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	tele   *telemetry.Telemetry
}

func NewService(deps Deps, opts Options, logger *zap.Logger, tele *telemetry.Telemetry) *Service {
	if deps.Publisher == nil {
		deps.Publisher = notify.Noop{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logger.With(zap.String("component", "insight")),
		tele:   tele,
	}
}

// CombinedOptions selects the optional parts of a combined lookup.
type CombinedOptions struct {
	IncludeIncidents bool
	Category         string
	Month            string
}

// CombinedInfo is a location record enriched with today's forecast. The weekly
// sequence is deliberately not part of it.
type CombinedInfo struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Postcode       string                 `json:"postcode"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
	CurrentWeather model.DailyForecast    `json:"current_weather"`
	Incidents      []model.IncidentRecord `json:"incidents,omitempty"`
	IncidentsError string                 `json:"incidents_error,omitempty"`
}

// Today returns the current calendar date in the configured location.
func (s *Service) Today() string {
	return model.DateOf(s.opts.Now().In(s.opts.Location))
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.CallTimeout)
}

func (s *Service) GetWeather(ctx context.Context, postcode string) ([]model.DailyForecast, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.tele.StartSpan(ctx, "insight.GetWeather", attribute.String("postcode", postcode))
	defer span.End()

	coord, err := s.deps.Resolver.Resolve(ctx, postcode)
	if err != nil {
		return nil, err
	}
	return s.deps.Weather.Forecast(ctx, coord)
}

func (s *Service) GetIncidents(ctx context.Context, category, postcode, month string) ([]model.IncidentRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.tele.StartSpan(ctx, "insight.GetIncidents",
		attribute.String("postcode", postcode),
		attribute.String("category", category),
	)
	defer span.End()

	coord, err := s.deps.Resolver.Resolve(ctx, postcode)
	if err != nil {
		return nil, err
	}
	return s.deps.Incidents.Fetch(ctx, category, coord, month)
}

// GetRoute resolves both postcodes concurrently before asking for a route.
func (s *Service) GetRoute(ctx context.Context, mode, startPostcode, endPostcode string) (model.RouteSummary, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.tele.StartSpan(ctx, "insight.GetRoute", attribute.String("mode", mode))
	defer span.End()

	var (
		wg                  sync.WaitGroup
		origin, destination model.Coordinate
		originErr, destErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		origin, originErr = s.deps.Resolver.Resolve(ctx, startPostcode)
	}()
	go func() {
		defer wg.Done()
		destination, destErr = s.deps.Resolver.Resolve(ctx, endPostcode)
	}()
	wg.Wait()

	if err := errors.Join(originErr, destErr); err != nil {
		return model.RouteSummary{}, model.NewFailure(model.KindLocationUnresolvable, err).WithMessage(routeUnresolvableMessage)
	}

	return s.deps.Routes.Route(ctx, mode, origin, destination)
}

// GetCombinedLocationInfoByID loads the record and delegates to GetCombinedLocationInfo.
func (s *Service) GetCombinedLocationInfoByID(ctx context.Context, locationID string, opts CombinedOptions) (CombinedInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.deps.Store.GetLocation(ctx, locationID)
	if err != nil {
		return CombinedInfo{}, err
	}
	return s.GetCombinedLocationInfo(ctx, rec, opts)
}

// GetCombinedLocationInfo attaches today's forecast to rec, refreshing the
// weekly cache when it does not cover today. The postcode is resolved at most
// once even when incidents are requested alongside the weather.
func (s *Service) GetCombinedLocationInfo(ctx context.Context, rec model.LocationRecord, opts CombinedOptions) (CombinedInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ctx, span := s.tele.StartSpan(ctx, "insight.GetCombinedLocationInfo",
		attribute.String("location_id", rec.ID),
		attribute.Bool("include_incidents", opts.IncludeIncidents),
	)
	defer span.End()

	source := s.memoizedSource(CompactPostcode(rec.Postcode))

	var (
		wg           sync.WaitGroup
		incidents    []model.IncidentRecord
		incidentsErr error
	)
	if opts.IncludeIncidents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord, err := source(ctx)
			if err != nil {
				incidentsErr = err
				return
			}
			incidents, incidentsErr = s.deps.Incidents.Fetch(ctx, opts.Category, coord, opts.Month)
		}()
	}

	current, _, err := s.refresh(ctx, rec, source)
	wg.Wait()
	if err != nil {
		return CombinedInfo{}, err
	}

	info := CombinedInfo{
		ID:             rec.ID,
		Name:           rec.Name,
		Postcode:       rec.Postcode,
		Attributes:     rec.Attributes,
		CurrentWeather: current,
		Incidents:      incidents,
	}
	if incidentsErr != nil {
		s.logger.Warn("Incidents unavailable for combined lookup",
			zap.String("location_id", rec.ID),
			zap.Error(incidentsErr))
		info.Incidents = nil
		info.IncidentsError = model.AsFailure(incidentsErr).Message
	}

	return info, nil
}

// RefreshLocation makes sure rec's weekly cache covers today, fetching at most
// once. It reports whether a fresh sequence was fetched and stored.
func (s *Service) RefreshLocation(ctx context.Context, rec model.LocationRecord) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, persisted, err := s.refresh(ctx, rec, s.memoizedSource(CompactPostcode(rec.Postcode)))
	return persisted, err
}

// refresh returns today's forecast and whether a fresh week was written back.
// A failed write is logged, not returned: the caller still gets today's
// forecast and the next call refetches.
func (s *Service) refresh(ctx context.Context, rec model.LocationRecord, source forecastcache.CoordinateSource) (model.DailyForecast, bool, error) {
	cached, err := s.deps.Store.ReadCachedWeekly(ctx, rec.ID)
	if err != nil {
		return model.DailyForecast{}, false, err
	}

	today := s.Today()
	res, err := s.deps.Cache.ResolveCurrent(ctx, cached, today, source)
	if err != nil {
		return model.DailyForecast{}, false, err
	}

	if res.ToPersist == nil {
		return res.Current, false, nil
	}

	if err := s.deps.Store.WriteCachedWeekly(ctx, rec.ID, res.ToPersist); err != nil {
		s.logger.Error("Failed to persist weekly forecast", zap.String("location_id", rec.ID), zap.Error(err))
		return res.Current, false, nil
	}
	s.publish(ctx, rec, res)

	return res.Current, true, nil
}

func (s *Service) publish(ctx context.Context, rec model.LocationRecord, res forecastcache.Resolution) {
	event := notify.ForecastRefreshed{
		LocationID:  rec.ID,
		Postcode:    rec.Postcode,
		Current:     res.Current,
		Days:        res.ToPersist,
		RefreshedAt: s.opts.Now().UTC(),
	}
	if err := s.deps.Publisher.PublishForecastRefreshed(ctx, event); err != nil {
		s.logger.Warn("Failed to publish forecast refresh", zap.String("location_id", rec.ID), zap.Error(err))
	}
}

// memoizedSource resolves postcode on first use and replays the result to
// every later caller, including concurrent ones.
func (s *Service) memoizedSource(postcode string) forecastcache.CoordinateSource {
	var (
		once  sync.Once
		coord model.Coordinate
		err   error
	)
	return func(ctx context.Context) (model.Coordinate, error) {
		once.Do(func() {
			coord, err = s.deps.Resolver.Resolve(ctx, postcode)
		})
		return coord, err
	}
}

// CompactPostcode strips all whitespace, so "SW1A 1AA" becomes "SW1A1AA".
func CompactPostcode(postcode string) string {
	return strings.Join(strings.Fields(postcode), "")
}

// ParseLocation loads a named IANA zone, falling back to host local time for "".
func ParseLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

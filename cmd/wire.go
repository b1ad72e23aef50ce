package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/vzahanych/area-insight/internal/aggregator"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/forecastcache"
	"github.com/vzahanych/area-insight/internal/incident"
	"github.com/vzahanych/area-insight/internal/insight"
	"github.com/vzahanych/area-insight/internal/notify"
	"github.com/vzahanych/area-insight/internal/server/handlers"
	"github.com/vzahanych/area-insight/internal/service"
	"github.com/vzahanych/area-insight/internal/store"
	"go.uber.org/zap"
)

// app holds the wired components shared by the server and lookup commands.
type app struct {
	insight   *insight.Service
	store     store.LocationStore
	publisher notify.Publisher
	metrics   *handlers.AppMetrics
	location  *time.Location
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	metrics := handlers.NewAppMetrics()

	upstream := func(name string, pc config.ProviderConfig) *service.Upstream {
		up := service.NewUpstream(name, pc, log.Named(name), tele)
		up.SetMetricsRecorder(metrics)
		return up
	}

	p := cfg.Providers
	resolver := service.NewPostcodeResolverWithUpstream(p.Postcode.BaseURL, upstream("postcode", p.Postcode), log.Named("postcode"), tele)
	primary := service.NewSevenTimerServiceWithUpstream(p.PrimaryWeather.BaseURL, upstream("7timer", p.PrimaryWeather), log.Named("7timer"), tele)

	var zones service.TimezoneFinder
	if finder, err := service.NewTimezoneFinder(); err != nil {
		log.Warn("Timezone finder unavailable, fallback provider will pick its own zone", zap.Error(err))
	} else {
		zones = finder
	}
	fallback := service.NewOpenMeteoServiceWithUpstream(p.FallbackWeather.BaseURL, upstream("open-meteo", p.FallbackWeather), zones, log.Named("open-meteo"), tele)

	agg := aggregator.NewAggregator([]service.ForecastProvider{primary, fallback}, log.Named("aggregator"), tele)
	agg.SetMetricsRecorder(metrics)

	police := service.NewPoliceServiceWithUpstream(p.Incidents.BaseURL, upstream("police", p.Incidents), log.Named("police"), tele)
	routes := service.NewRouteServiceWithUpstream(p.Routing.BaseURL, upstream("osrm", p.Routing), log.Named("osrm"), tele)

	policy := forecastcache.NewPolicy(agg, log.Named("forecastcache"), tele)
	policy.SetMetricsRecorder(metrics)

	loc, err := insight.ParseLocation(cfg.Cache.Timezone)
	if err != nil {
		return nil, err
	}

	st, err := store.New(ctx, cfg.Store, log.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open location store: %w", err)
	}

	pub, err := notify.New(cfg.Notify, log.Named("notify"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	svc := insight.NewService(insight.Deps{
		Resolver:  resolver,
		Weather:   agg,
		Incidents: incident.NewFetcher(police, cfg.Geo.RadiusMiles, log.Named("incident"), tele),
		Routes:    routes,
		Cache:     policy,
		Store:     st,
		Publisher: pub,
	}, insight.Options{
		CallTimeout: time.Duration(cfg.Server.CallTimeout) * time.Second,
		Location:    loc,
	}, log.Named("insight"), tele)

	return &app{
		insight:   svc,
		store:     st,
		publisher: pub,
		metrics:   metrics,
		location:  loc,
	}, nil
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		log.Warn("Failed to close publisher", zap.Error(err))
	}
	a.store.Close()
	if err := tele.Shutdown(context.Background()); err != nil {
		log.Warn("Error during telemetry shutdown", zap.Error(err))
	}
}

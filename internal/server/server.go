package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/server/handlers"
	"github.com/vzahanych/area-insight/internal/server/middlewares"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Deps are the collaborators served over HTTP. Metrics and Readiness may be nil.
type Deps struct {
	Insight   handlers.InsightService
	Metrics   *handlers.AppMetrics
	Readiness map[string]handlers.ReadinessCheck
}

type Server struct {
	engine *gin.Engine
	server *http.Server
	deps   Deps
	http   *middlewares.MetricsMiddleware
	logger *zap.Logger
	tele   *telemetry.Telemetry
}

func NewServer(deps Deps, logger *zap.Logger, tele *telemetry.Telemetry) *Server {
	if deps.Metrics == nil {
		deps.Metrics = handlers.NewAppMetrics()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	httpMetrics := middlewares.NewMetricsMiddleware(logger, tele)

	engine.Use(middlewares.RequestIDMiddleware(logger))
	engine.Use(middlewares.LoggingMiddleware(logger, true, "/health/live", "/health/ready", "/metrics"))
	engine.Use(middlewares.RecoveryMiddleware(logger, true))
	engine.Use(middlewares.TelemetryMiddleware(logger, tele))
	engine.Use(httpMetrics.Handler())

	s := &Server{
		engine: engine,
		deps:   deps,
		http:   httpMetrics,
		logger: logger,
		tele:   tele,
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	insight := handlers.NewInsightHandler(s.deps.Insight, s.logger)

	// Business endpoints
	s.engine.GET("/weather", insight.GetWeather)
	s.engine.GET("/incidents", insight.GetIncidents)
	s.engine.GET("/crime", insight.GetIncidents)
	s.engine.GET("/route", insight.GetRoute)
	s.engine.GET("/locations/:id/combined", insight.GetCombined)

	// Health endpoints (Kubernetes friendly)
	health := handlers.NewHealthHandler(s.logger, s.deps.Readiness)
	s.engine.GET("/health", health.Health)
	s.engine.GET("/health/live", health.Liveness)
	s.engine.GET("/health/ready", health.Readiness)

	// Monitoring endpoints
	s.engine.GET("/metrics", handlers.NewMetricsHandler(s.logger, s.deps.Metrics, s.http).ServeMetrics)
}

// Handler exposes the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Start() error {
	cfg := config.GetConfig()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

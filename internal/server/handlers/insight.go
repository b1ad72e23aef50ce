package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/area-insight/internal/insight"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/internal/server/utils"
	"go.uber.org/zap"
)

type InsightService interface {
	GetWeather(ctx context.Context, postcode string) ([]model.DailyForecast, error)
	GetIncidents(ctx context.Context, category, postcode, month string) ([]model.IncidentRecord, error)
	GetRoute(ctx context.Context, mode, startPostcode, endPostcode string) (model.RouteSummary, error)
	GetCombinedLocationInfoByID(ctx context.Context, locationID string, opts insight.CombinedOptions) (insight.CombinedInfo, error)
}

type InsightHandler struct {
	svc    InsightService
	logger *zap.Logger
}

func NewInsightHandler(svc InsightService, logger *zap.Logger) *InsightHandler {
	return &InsightHandler{
		svc:    svc,
		logger: logger,
	}
}

// bind decodes and validates the query into req, answering 400 itself when
// that fails.
func (h *InsightHandler) bind(c *gin.Context, reqLogger *zap.Logger, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		reqLogger.Warn("Invalid request parameters", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request parameters",
			Code:    "INVALID_PARAMS",
			Details: err.Error(),
		})
		return false
	}

	if verrs := utils.ValidateStruct(req); len(verrs) > 0 {
		reqLogger.Warn("Request failed validation", zap.Any("fields", verrs))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "Invalid request parameters",
			Code:   "INVALID_PARAMS",
			Fields: verrs,
		})
		return false
	}
	return true
}

func (h *InsightHandler) requestLogger(c *gin.Context) *zap.Logger {
	return h.logger.With(zap.String("request_id", utils.GetRequestIDFromGinContext(c)))
}

func (h *InsightHandler) GetWeather(c *gin.Context) {
	ctx := utils.GetContextFromGinContext(c)
	reqLogger := h.requestLogger(c)

	var req WeatherRequest
	if !h.bind(c, reqLogger, &req) {
		return
	}

	days, err := h.svc.GetWeather(ctx, req.Postcode)
	if err != nil {
		respondError(c, reqLogger, err)
		return
	}

	reqLogger.Info("Weather request completed", zap.String("postcode", req.Postcode), zap.Int("days", len(days)))
	c.JSON(http.StatusOK, days)
}

func (h *InsightHandler) GetIncidents(c *gin.Context) {
	ctx := utils.GetContextFromGinContext(c)
	reqLogger := h.requestLogger(c)

	var req IncidentsRequest
	if !h.bind(c, reqLogger, &req) {
		return
	}

	incidents, err := h.svc.GetIncidents(ctx, req.Category, req.Postcode, req.Month)
	if err != nil {
		respondError(c, reqLogger, err)
		return
	}

	reqLogger.Info("Incidents request completed",
		zap.String("postcode", req.Postcode),
		zap.String("category", req.Category),
		zap.Int("count", len(incidents)))
	c.JSON(http.StatusOK, incidents)
}

func (h *InsightHandler) GetRoute(c *gin.Context) {
	ctx := utils.GetContextFromGinContext(c)
	reqLogger := h.requestLogger(c)

	var req RouteRequest
	if !h.bind(c, reqLogger, &req) {
		return
	}

	summary, err := h.svc.GetRoute(ctx, req.Mode, req.StartPostcode, req.EndPostcode)
	if err != nil {
		respondError(c, reqLogger, err)
		return
	}

	reqLogger.Info("Route request completed", zap.String("mode", req.Mode), zap.Int("routes", len(summary.Routes)))
	c.JSON(http.StatusOK, summary)
}

func (h *InsightHandler) GetCombined(c *gin.Context) {
	ctx := utils.GetContextFromGinContext(c)
	reqLogger := h.requestLogger(c)

	var req CombinedRequest
	if !h.bind(c, reqLogger, &req) {
		return
	}

	id := c.Param("id")
	info, err := h.svc.GetCombinedLocationInfoByID(ctx, id, insight.CombinedOptions{
		IncludeIncidents: req.Include == "incidents",
		Category:         req.Category,
		Month:            req.Month,
	})
	if err != nil {
		respondError(c, reqLogger.With(zap.String("location_id", id)), err)
		return
	}

	c.JSON(http.StatusOK, info)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/area-insight/internal/model"
	"go.uber.org/zap"
)

// StatusFor maps the outermost failure kind to the HTTP status returned to the
// caller. Untagged errors count as transport faults.
func StatusFor(err error) int {
	switch model.AsFailure(err).Kind {
	case model.KindLocationUnresolvable:
		return http.StatusBadRequest
	case model.KindLocationNotFound:
		return http.StatusNotFound
	case model.KindUpstreamTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := StatusFor(err)
	payload := model.PayloadOf(err)

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Int("status", status), zap.String("code", payload.Code), zap.Error(err))
	} else {
		logger.Warn("Request rejected", zap.Int("status", status), zap.String("code", payload.Code), zap.Error(err))
	}

	_ = c.Error(err)
	c.JSON(status, ErrorResponse{Error: payload.Error, Code: payload.Code})
}

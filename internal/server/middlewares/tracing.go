package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/area-insight/internal/server/utils"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func TelemetryMiddleware(logger *zap.Logger, tele *telemetry.Telemetry) gin.HandlerFunc {
	propagator := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		spanName := c.Request.Method + " " + route
		ctx, span := tele.StartSpan(ctx, spanName,
			attribute.String("request.id", c.GetString(RequestIDKey)),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.url", c.Request.URL.String()),
			attribute.String("http.route", route),
			attribute.String("user_agent", c.Request.UserAgent()),
			attribute.String("remote_addr", c.ClientIP()),
		)
		if id := c.Param("id"); id != "" {
			span.SetAttributes(attribute.String("location_id", id))
		}

		c.Set(utils.SpanContextKey, ctx)
		c.Request = c.Request.WithContext(ctx)

		if tele.IsEnabled() {
			logger.Debug("Started tracing span",
				zap.String("span_name", spanName),
				zap.String("trace_id", span.SpanContext().TraceID().String()))
		}

		defer func() {
			status := c.Writer.Status()
			span.SetAttributes(
				attribute.Int("http.status_code", status),
				attribute.Int("http.response_size", c.Writer.Size()),
			)

			if status >= http.StatusBadRequest {
				span.SetAttributes(attribute.Bool("error", true))
				if len(c.Errors) > 0 {
					span.SetAttributes(attribute.String("error.message", c.Errors.String()))
				}
			}
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			span.End()
		}()

		c.Next()
	}
}

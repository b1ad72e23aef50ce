package handlers

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/area-insight/internal/server/middlewares"
	"go.uber.org/zap"
)

// AppMetrics counts cache, provider and fallback events. It satisfies the
// recorder interfaces of the upstream, aggregator and forecast cache packages.
type AppMetrics struct {
	mutex          sync.RWMutex
	cacheHits      map[string]int64
	cacheMisses    map[string]int64
	providerCalls  map[string]int64
	providerErrors map[string]int64
	fallbacks      map[string]int64
}

func NewAppMetrics() *AppMetrics {
	return &AppMetrics{
		cacheHits:      make(map[string]int64),
		cacheMisses:    make(map[string]int64),
		providerCalls:  make(map[string]int64),
		providerErrors: make(map[string]int64),
		fallbacks:      make(map[string]int64),
	}
}

func (m *AppMetrics) RecordCacheHit(ctx context.Context, cacheType string) {
	m.mutex.Lock()
	m.cacheHits[cacheType]++
	m.mutex.Unlock()
}

func (m *AppMetrics) RecordCacheMiss(ctx context.Context, cacheType string) {
	m.mutex.Lock()
	m.cacheMisses[cacheType]++
	m.mutex.Unlock()
}

func (m *AppMetrics) RecordServiceCall(ctx context.Context, service string, success bool) {
	m.mutex.Lock()
	m.providerCalls[service]++
	if !success {
		m.providerErrors[service]++
	}
	m.mutex.Unlock()
}

// RecordFallback counts a suppressed failure of failedProvider.
func (m *AppMetrics) RecordFallback(ctx context.Context, failedProvider string) {
	m.mutex.Lock()
	m.fallbacks[failedProvider]++
	m.mutex.Unlock()
}

type HTTPMetricsSource interface {
	Snapshot() middlewares.HTTPSnapshot
}

type MetricsHandler struct {
	logger     *zap.Logger
	appMetrics *AppMetrics
	http       HTTPMetricsSource
}

func NewMetricsHandler(logger *zap.Logger, app *AppMetrics, httpSource HTTPMetricsSource) *MetricsHandler {
	return &MetricsHandler{
		logger:     logger,
		appMetrics: app,
		http:       httpSource,
	}
}

// ServeMetrics exposes the counters in Prometheus text format.
func (h *MetricsHandler) ServeMetrics(c *gin.Context) {
	var b strings.Builder

	if h.http != nil {
		snap := h.http.Snapshot()

		writeHeader(&b, "http_requests_total", "Total number of HTTP requests", "counter")
		writeSeries(&b, "http_requests_total", "route_status", snap.RequestsTotal)

		writeHeader(&b, "http_request_duration_seconds_avg", "Average duration of HTTP requests", "gauge")
		b.WriteString("http_request_duration_seconds_avg " + strconv.FormatFloat(snap.AvgDurationSeconds, 'f', 6, 64) + "\n")

		writeHeader(&b, "http_active_requests", "Number of active HTTP requests", "gauge")
		b.WriteString("http_active_requests " + strconv.FormatInt(snap.ActiveRequests, 10) + "\n")
	}

	if h.appMetrics != nil {
		m := h.appMetrics
		m.mutex.RLock()
		writeHeader(&b, "forecast_cache_hits_total", "Combined lookups answered from the weekly cache", "counter")
		writeSeries(&b, "forecast_cache_hits_total", "cache", m.cacheHits)
		writeHeader(&b, "forecast_cache_misses_total", "Combined lookups that refetched the week", "counter")
		writeSeries(&b, "forecast_cache_misses_total", "cache", m.cacheMisses)
		writeHeader(&b, "provider_calls_total", "Total upstream provider calls", "counter")
		writeSeries(&b, "provider_calls_total", "provider", m.providerCalls)
		writeHeader(&b, "provider_errors_total", "Total failed upstream provider calls", "counter")
		writeSeries(&b, "provider_errors_total", "provider", m.providerErrors)
		writeHeader(&b, "weather_fallbacks_total", "Weather provider failures absorbed by fallback", "counter")
		writeSeries(&b, "weather_fallbacks_total", "provider", m.fallbacks)
		m.mutex.RUnlock()
	}

	c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	c.String(http.StatusOK, b.String())
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString("# HELP " + name + " " + help + "\n")
	b.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeSeries(b *strings.Builder, name, label string, values map[string]int64) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(name + "{" + label + "=\"" + k + "\"} " + strconv.FormatInt(values[k], 10) + "\n")
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Success band shared by every upstream provider.
const (
	minSuccessStatus = 200
	maxSuccessStatus = 226
)

// CallRecorder receives one observation per upstream call.
type CallRecorder interface {
	RecordServiceCall(ctx context.Context, service string, success bool)
}

// StatusError reports a well-formed response outside the success band.
type StatusError struct {
	Service    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
}

// Upstream performs single-attempt GET requests against one provider behind a
// circuit breaker. It never retries.
type Upstream struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	tele    *telemetry.Telemetry
	metrics CallRecorder
}

func NewUpstream(name string, cfg config.ProviderConfig, logger *zap.Logger, tele *telemetry.Telemetry) *Upstream {
	return NewUpstreamWithClient(name, cfg, &http.Client{Timeout: cfg.TimeoutDuration()}, logger, tele)
}

func NewUpstreamWithClient(name string, cfg config.ProviderConfig, client *http.Client, logger *zap.Logger, tele *telemetry.Telemetry) *Upstream {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", name))

	threshold := cfg.Breaker.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         name,
		MaxRequests:  cfg.Breaker.MaxRequests,
		Interval:     time.Duration(cfg.Breaker.Interval) * time.Second,
		Timeout:      time.Duration(cfg.Breaker.OpenTimeout) * time.Second,
		IsSuccessful: countsAsHealthy,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Upstream{
		name:    name,
		client:  client,
		breaker: cb,
		logger:  logger,
		tele:    tele,
	}
}

// countsAsHealthy keeps caller-caused rejections (4xx other than 429) out of
// the breaker's failure count; only transport faults, 5xx and 429 trip it.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode != http.StatusTooManyRequests && se.StatusCode < http.StatusInternalServerError
	}
	return false
}

func (u *Upstream) SetMetricsRecorder(metrics CallRecorder) {
	u.metrics = metrics
}

func (u *Upstream) Name() string {
	return u.name
}

// GetJSON fetches rawURL and decodes the body into out. Connectivity faults,
// timeouts and an open breaker surface as model.ErrUpstreamTransport; a status
// outside the success band surfaces as *StatusError.
func (u *Upstream) GetJSON(ctx context.Context, rawURL string, out interface{}) error {
	ctx, span := u.tele.StartSpan(ctx, u.name+".GetJSON",
		attribute.String("service", u.name),
		attribute.String("http.url", rawURL),
	)
	defer span.End()

	body, err := u.fetch(ctx, rawURL)
	if err == nil {
		if err = json.Unmarshal(body, out); err != nil {
			err = fmt.Errorf("decode %s response: %w", u.name, err)
		}
	}

	if u.metrics != nil {
		u.metrics.RecordServiceCall(ctx, u.name, err == nil)
	}

	if err != nil {
		span.SetAttributes(attribute.Bool("success", false))
		span.RecordError(err)
		u.logger.Debug("Upstream call failed", zap.String("url", rawURL), zap.Error(err))
		return err
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (u *Upstream) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	result, err := u.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := u.client.Do(req)
		if err != nil {
			return nil, model.NewFailure(model.KindUpstreamTransport, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < minSuccessStatus || resp.StatusCode > maxSuccessStatus {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, &StatusError{Service: u.name, StatusCode: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, model.NewFailure(model.KindUpstreamTransport, err)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, model.NewFailure(model.KindUpstreamTransport, fmt.Errorf("%s: %w", u.name, err))
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}

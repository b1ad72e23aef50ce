package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PostcodeResolver resolves postcodes through a getthedata-style lookup API.
// It keeps no state between calls.
type PostcodeResolver struct {
	baseURL  string
	upstream *Upstream
	logger   *zap.Logger
	tele     *telemetry.Telemetry
}

type postcodeResponse struct {
	Status string `json:"status"`
	Data   *struct {
		Postcode  string    `json:"postcode"`
		Latitude  flexFloat `json:"latitude"`
		Longitude flexFloat `json:"longitude"`
	} `json:"data"`
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}

	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid coordinate %q: %w", raw, err)
	}
	f.Value = v
	f.Set = true
	return nil
}

func NewPostcodeResolver(cfg config.ProviderConfig, logger *zap.Logger, tele *telemetry.Telemetry) *PostcodeResolver {
	return NewPostcodeResolverWithUpstream(cfg.BaseURL, NewUpstream("postcode", cfg, logger, tele), logger, tele)
}

func NewPostcodeResolverWithUpstream(baseURL string, upstream *Upstream, logger *zap.Logger, tele *telemetry.Telemetry) *PostcodeResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostcodeResolver{
		baseURL:  strings.TrimRight(baseURL, "/"),
		upstream: upstream,
		logger:   logger,
		tele:     tele,
	}
}

// Resolve looks the postcode up verbatim. Any failure, including a transport
// fault, is reported as model.ErrLocationUnresolvable.
func (r *PostcodeResolver) Resolve(ctx context.Context, postcode string) (model.Coordinate, error) {
	ctx, span := r.tele.StartSpan(ctx, "postcode.Resolve", attribute.String("postcode", postcode))
	defer span.End()

	u := r.baseURL + "/" + url.PathEscape(postcode)

	var resp postcodeResponse
	if err := r.upstream.GetJSON(ctx, u, &resp); err != nil {
		r.logger.Warn("Postcode lookup failed", zap.String("postcode", postcode), zap.Error(err))
		return model.Coordinate{}, model.NewFailure(model.KindLocationUnresolvable, err)
	}

	if resp.Data == nil || !resp.Data.Latitude.Set || !resp.Data.Longitude.Set {
		err := errors.New("postcode response carries no coordinates")
		if resp.Status != "" {
			err = fmt.Errorf("postcode response status %q carries no coordinates", resp.Status)
		}
		r.logger.Warn("Postcode lookup returned no coordinates", zap.String("postcode", postcode))
		return model.Coordinate{}, model.NewFailure(model.KindLocationUnresolvable, err)
	}

	coord := model.Coordinate{
		Latitude:  resp.Data.Latitude.Value,
		Longitude: resp.Data.Longitude.Value,
	}
	span.SetAttributes(
		attribute.Float64("lat", coord.Latitude),
		attribute.Float64("lon", coord.Longitude),
	)

	return coord, nil
}

package incident

import (
	"context"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/vzahanych/area-insight/internal/geo"
	"github.com/vzahanych/area-insight/internal/model"
	"github.com/vzahanych/area-insight/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AllCategories is the provider's catch-all category.
const AllCategories = "all-crime"

// Source returns raw incident records around a point.
type Source interface {
	StreetCrimes(ctx context.Context, category string, coord model.Coordinate, month string) ([]map[string]interface{}, error)
}

type Fetcher struct {
	source      Source
	radiusMiles float64
	logger      *zap.Logger
	tele        *telemetry.Telemetry
}

// record is the typed view of a provider record. Coordinates arrive as
// strings or numbers depending on the provider, so they are decoded weakly.
type record struct {
	Category string `mapstructure:"category"`
	Month    string `mapstructure:"month"`
	Location *struct {
		Latitude  string `mapstructure:"latitude"`
		Longitude string `mapstructure:"longitude"`
	} `mapstructure:"location"`
}

func NewFetcher(source Source, radiusMiles float64, logger *zap.Logger, tele *telemetry.Telemetry) *Fetcher {
	if radiusMiles <= 0 {
		radiusMiles = geo.DefaultRadiusMiles
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		source:      source,
		radiusMiles: radiusMiles,
		logger:      logger.With(zap.String("component", "incident")),
		tele:        tele,
	}
}

// Fetch returns the incidents within the configured radius of coord, in
// provider order. Records without a usable coordinate are dropped.
func (f *Fetcher) Fetch(ctx context.Context, category string, coord model.Coordinate, month string) ([]model.IncidentRecord, error) {
	if category == "" {
		category = AllCategories
	}

	ctx, span := f.tele.StartSpan(ctx, "incident.Fetch",
		attribute.String("category", category),
		attribute.String("month", month),
		attribute.Float64("radius_miles", f.radiusMiles),
	)
	defer span.End()

	raw, err := f.source.StreetCrimes(ctx, category, coord, month)
	if err != nil {
		f.logger.Warn("Incident lookup failed", zap.String("category", category), zap.Error(err))
		return nil, model.NewFailure(model.KindIncidentDataUnavailable, err)
	}

	out := make([]model.IncidentRecord, 0, len(raw))
	dropped := 0
	for _, attrs := range raw {
		rec, ok := lift(attrs)
		if !ok {
			dropped++
			continue
		}
		if !geo.WithinRadius(coord, rec.Coordinate, f.radiusMiles) {
			continue
		}
		out = append(out, rec)
	}

	span.SetAttributes(
		attribute.Int("received", len(raw)),
		attribute.Int("kept", len(out)),
		attribute.Int("dropped", dropped),
	)
	if dropped > 0 {
		f.logger.Debug("Dropped incidents without coordinates", zap.Int("dropped", dropped))
	}

	return out, nil
}

func lift(attrs map[string]interface{}) (model.IncidentRecord, bool) {
	var rec record
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rec,
	})
	if err != nil {
		return model.IncidentRecord{}, false
	}
	if err := dec.Decode(attrs); err != nil || rec.Location == nil {
		return model.IncidentRecord{}, false
	}

	lat, err := parseCoordinate(rec.Location.Latitude)
	if err != nil {
		return model.IncidentRecord{}, false
	}
	lon, err := parseCoordinate(rec.Location.Longitude)
	if err != nil {
		return model.IncidentRecord{}, false
	}

	return model.IncidentRecord{
		Category:      rec.Category,
		Coordinate:    model.Coordinate{Latitude: lat, Longitude: lon},
		Month:         rec.Month,
		RawAttributes: attrs,
	}, true
}

func parseCoordinate(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

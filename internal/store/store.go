package store

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
	"go.uber.org/zap"
)

// LocationStore holds location records and the weekly forecast cached on each.
type LocationStore interface {
	GetLocation(ctx context.Context, id string) (model.LocationRecord, error)
	ListLocations(ctx context.Context) ([]model.LocationRecord, error)
	UpsertLocation(ctx context.Context, rec model.LocationRecord) error
	// ReadCachedWeekly returns nil when the location has no cached forecast.
	ReadCachedWeekly(ctx context.Context, locationID string) ([]model.DailyForecast, error)
	// WriteCachedWeekly replaces the cached forecast wholesale.
	WriteCachedWeekly(ctx context.Context, locationID string, days []model.DailyForecast) error
	Close()
}

// New opens the store selected by cfg.Driver and seeds it from cfg.SeedFile when set.
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (LocationStore, error) {
	var s LocationStore
	switch cfg.Driver {
	case "", "memory":
		s = NewMemoryStore()
	case "postgres":
		pg := NewPostgresStore(NewDB(cfg))
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		s = pg
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if cfg.SeedFile != "" {
		n, err := Seed(ctx, s, cfg.SeedFile)
		if err != nil {
			s.Close()
			return nil, err
		}
		logger.Info("Seeded location store", zap.String("file", cfg.SeedFile), zap.Int("locations", n))
	}

	return s, nil
}

// Seed loads a JSON array of location records from path into s. Existing
// records with the same id are overwritten.
func Seed(ctx context.Context, s LocationStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var records []model.LocationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	for _, rec := range records {
		if rec.ID == "" {
			return 0, fmt.Errorf("seed record %q has no id", rec.Name)
		}
		if err := s.UpsertLocation(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func notFound(id string) error {
	return model.NewFailure(model.KindLocationNotFound, fmt.Errorf("location %q", id))
}

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/vzahanych/area-insight/internal/model"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.LocationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.LocationRecord)}
}

func (s *MemoryStore) GetLocation(ctx context.Context, id string) (model.LocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return model.LocationRecord{}, notFound(id)
	}
	return clone(rec), nil
}

func (s *MemoryStore) ListLocations(ctx context.Context) ([]model.LocationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.LocationRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, clone(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpsertLocation(ctx context.Context, rec model.LocationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = clone(rec)
	return nil
}

func (s *MemoryStore) ReadCachedWeekly(ctx context.Context, locationID string) ([]model.DailyForecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[locationID]
	if !ok {
		return nil, notFound(locationID)
	}
	if len(rec.WeeklyWeather) == 0 {
		return nil, nil
	}
	return append([]model.DailyForecast(nil), rec.WeeklyWeather...), nil
}

func (s *MemoryStore) WriteCachedWeekly(ctx context.Context, locationID string, days []model.DailyForecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[locationID]
	if !ok {
		return notFound(locationID)
	}
	rec.WeeklyWeather = append([]model.DailyForecast(nil), days...)
	s.records[locationID] = rec
	return nil
}

func (s *MemoryStore) Close() {}

// clone copies the slices a caller could otherwise mutate in place.
func clone(rec model.LocationRecord) model.LocationRecord {
	if rec.WeeklyWeather != nil {
		rec.WeeklyWeather = append([]model.DailyForecast(nil), rec.WeeklyWeather...)
	}
	if rec.Attributes != nil {
		attrs := make(map[string]interface{}, len(rec.Attributes))
		for k, v := range rec.Attributes {
			attrs[k] = v
		}
		rec.Attributes = attrs
	}
	return rec
}

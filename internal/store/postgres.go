package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/model"
)

// DB is the process-wide Postgres handle. The pool is opened on first use
// and released by Close.
type DB struct {
	dsn      string
	maxConns int32

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func NewDB(cfg config.StoreConfig) *DB {
	return &DB{dsn: cfg.DSN, maxConns: cfg.MaxConns}
}

func (d *DB) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pool != nil {
		return d.pool, nil
	}

	pcfg, err := pgxpool.ParseConfig(d.dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if d.maxConns > 0 {
		pcfg.MaxConns = d.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	d.pool = pool
	return pool, nil
}

func (d *DB) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pool != nil {
		d.pool.Close()
		d.pool = nil
	}
}

type PostgresStore struct {
	db *DB
}

func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS locations (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    postcode       TEXT NOT NULL,
    attributes     JSONB NOT NULL DEFAULT '{}'::jsonb,
    weekly_weather JSONB,
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.db.Pool(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create locations table: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLocation(ctx context.Context, id string) (model.LocationRecord, error) {
	pool, err := s.db.Pool(ctx)
	if err != nil {
		return model.LocationRecord{}, err
	}

	row := pool.QueryRow(ctx,
		`SELECT id, name, postcode, attributes, weekly_weather FROM locations WHERE id = $1`, id)

	rec, err := scanLocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LocationRecord{}, notFound(id)
	}
	return rec, err
}

func (s *PostgresStore) ListLocations(ctx context.Context) ([]model.LocationRecord, error) {
	pool, err := s.db.Pool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx,
		`SELECT id, name, postcode, attributes, weekly_weather FROM locations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LocationRecord
	for rows.Next() {
		rec, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertLocation(ctx context.Context, rec model.LocationRecord) error {
	pool, err := s.db.Pool(ctx)
	if err != nil {
		return err
	}

	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return err
	}
	if rec.Attributes == nil {
		attrs = []byte("{}")
	}

	var weekly []byte
	if len(rec.WeeklyWeather) > 0 {
		if weekly, err = json.Marshal(rec.WeeklyWeather); err != nil {
			return err
		}
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO locations (id, name, postcode, attributes, weekly_weather)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			postcode = EXCLUDED.postcode,
			attributes = EXCLUDED.attributes,
			weekly_weather = COALESCE(EXCLUDED.weekly_weather, locations.weekly_weather),
			updated_at = now()`,
		rec.ID, rec.Name, rec.Postcode, attrs, weekly)
	return err
}

func (s *PostgresStore) ReadCachedWeekly(ctx context.Context, locationID string) ([]model.DailyForecast, error) {
	pool, err := s.db.Pool(ctx)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = pool.QueryRow(ctx, `SELECT weekly_weather FROM locations WHERE id = $1`, locationID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(locationID)
	}
	if err != nil {
		return nil, err
	}
	return decodeWeekly(raw)
}

func (s *PostgresStore) WriteCachedWeekly(ctx context.Context, locationID string, days []model.DailyForecast) error {
	pool, err := s.db.Pool(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(days)
	if err != nil {
		return err
	}

	tag, err := pool.Exec(ctx,
		`UPDATE locations SET weekly_weather = $2, updated_at = now() WHERE id = $1`, locationID, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(locationID)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func scanLocation(row pgx.Row) (model.LocationRecord, error) {
	var (
		rec    model.LocationRecord
		attrs  []byte
		weekly []byte
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Postcode, &attrs, &weekly); err != nil {
		return model.LocationRecord{}, err
	}

	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.Attributes); err != nil {
			return model.LocationRecord{}, fmt.Errorf("decode attributes of %s: %w", rec.ID, err)
		}
	}

	days, err := decodeWeekly(weekly)
	if err != nil {
		return model.LocationRecord{}, fmt.Errorf("decode weekly weather of %s: %w", rec.ID, err)
	}
	rec.WeeklyWeather = days
	return rec, nil
}

func decodeWeekly(raw []byte) ([]model.DailyForecast, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var days []model.DailyForecast
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, err
	}
	return days, nil
}

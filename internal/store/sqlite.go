package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i474232898/irrigation-assistant/internal/weather"
)

// SQLiteLog is a forecast log kept in an SQLite table. Each batch is written
// in one transaction; a single connection serializes writers.
type SQLiteLog struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLiteLog opens (or creates) the database at path and runs the schema
// migration.
func OpenSQLiteLog(path string) (*SQLiteLog, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %v: %w", path, err, weather.ErrStoreUnavailable)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %v: %w", err, weather.ErrStoreUnavailable)
	}
	return &SQLiteLog{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forecast_log (
    id                         INTEGER PRIMARY KEY AUTOINCREMENT,
    location_name              TEXT    NOT NULL,
    latitude                   REAL    NOT NULL,
    longitude                  REAL    NOT NULL,
    forecast_time_unix_nano    INTEGER NOT NULL,
    temp_c                     REAL    NOT NULL,
    feels_like_c               REAL    NOT NULL,
    temp_min_c                 REAL    NOT NULL,
    temp_max_c                 REAL    NOT NULL,
    humidity_percent           REAL    NOT NULL,
    weather_condition          TEXT    NOT NULL,
    wind_speed_mps             REAL    NOT NULL,
    precipitation_prob_percent REAL    NOT NULL,
    cloudiness_percent         REAL    NOT NULL,
    fetched_at_unix_nano       INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_forecast_log_fetched ON forecast_log (fetched_at_unix_nano)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts all records in one transaction.
func (s *SQLiteLog) Append(ctx context.Context, records []weather.ForecastRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %v: %w", err, weather.ErrStoreUnavailable)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO forecast_log
    (location_name, latitude, longitude, forecast_time_unix_nano,
     temp_c, feels_like_c, temp_min_c, temp_max_c, humidity_percent,
     weather_condition, wind_speed_mps, precipitation_prob_percent,
     cloudiness_percent, fetched_at_unix_nano)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %v: %w", err, weather.ErrStoreUnavailable)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.LocationName,
			r.Latitude,
			r.Longitude,
			r.ForecastTime.UnixNano(),
			r.TempC,
			r.FeelsLikeC,
			r.TempMinC,
			r.TempMaxC,
			r.HumidityPercent,
			r.WeatherCondition,
			r.WindSpeedMPS,
			r.PrecipitationProbPercent,
			r.CloudinessPercent,
			r.FetchedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert: %v: %w", err, weather.ErrStoreUnavailable)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %v: %w", err, weather.ErrStoreUnavailable)
	}
	return nil
}

// ReadAll returns every record in insertion order.
func (s *SQLiteLog) ReadAll(ctx context.Context) ([]weather.ForecastRecord, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM forecast_log ORDER BY id`)
}

// ReadSince returns records fetched at or after since, in insertion order.
// An empty match on a non-empty log is an empty slice.
func (s *SQLiteLog) ReadSince(ctx context.Context, since time.Time) ([]weather.ForecastRecord, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM forecast_log`).Scan(&n); err != nil {
		return nil, fmt.Errorf("count: %v: %w", err, weather.ErrStoreUnavailable)
	}
	if n == 0 {
		return nil, weather.ErrStoreEmpty
	}

	out, err := s.query(ctx,
		`SELECT `+selectColumns+` FROM forecast_log WHERE fetched_at_unix_nano >= ? ORDER BY id`,
		since.UnixNano(),
	)
	if errors.Is(err, weather.ErrStoreEmpty) {
		return []weather.ForecastRecord{}, nil
	}
	return out, err
}

const selectColumns = `location_name, latitude, longitude, forecast_time_unix_nano,
       temp_c, feels_like_c, temp_min_c, temp_max_c, humidity_percent,
       weather_condition, wind_speed_mps, precipitation_prob_percent,
       cloudiness_percent, fetched_at_unix_nano`

func (s *SQLiteLog) query(ctx context.Context, q string, args ...any) ([]weather.ForecastRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %v: %w", err, weather.ErrStoreUnavailable)
	}
	defer rows.Close()

	var out []weather.ForecastRecord
	for rows.Next() {
		var (
			r                     weather.ForecastRecord
			forecastNano, fetched int64
		)
		if err := rows.Scan(
			&r.LocationName, &r.Latitude, &r.Longitude, &forecastNano,
			&r.TempC, &r.FeelsLikeC, &r.TempMinC, &r.TempMaxC, &r.HumidityPercent,
			&r.WeatherCondition, &r.WindSpeedMPS, &r.PrecipitationProbPercent,
			&r.CloudinessPercent, &fetched,
		); err != nil {
			return nil, fmt.Errorf("scan: %v: %w", err, weather.ErrStoreUnavailable)
		}
		r.ForecastTime = time.Unix(0, forecastNano).UTC()
		r.FetchedAt = time.Unix(0, fetched).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %v: %w", err, weather.ErrStoreUnavailable)
	}
	if len(out) == 0 {
		return nil, weather.ErrStoreEmpty
	}
	return out, nil
}

// Close releases all database resources.
func (s *SQLiteLog) Close() error {
	return s.db.Close()
}

var _ weather.ForecastLog = (*SQLiteLog)(nil)
